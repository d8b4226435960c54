package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"

	"gorm.io/gorm"
)

// Scoring constants. Weights and thresholds are fixed, not learned.
const (
	ReputationWindowDays = 7
	DefaultScore         = 50

	HelpfulPostLikes    = 5
	HelpfulPostComments = 3

	HelpfulPostWeight      = 3.0
	MarketplaceWeight      = 5.0
	ViolationPenalty       = 15.0
	WarningPenalty         = 5.0
	ConsistencyCap         = 15.0
	EngagementCap          = 20.0
	RateLimitWindow        = time.Hour
	LowScoreCooldownPeriod = 24 * time.Hour
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidScore = errors.New("score must be between 0 and 100")
)

// PostingCheck is the result of a posting-allowed check. A denied check
// always carries a human-readable reason.
type PostingCheck struct {
	Allowed     bool   `json:"allowed"`
	Reason      string `json:"reason,omitempty"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
}

// ReputationService converts community participation signals into a 0-100
// trust score, tier, perks and restrictions.
type ReputationService struct {
	db   *gorm.DB
	repo *repository.SignalRepository
	mu   sync.Mutex
}

func NewReputationService(db *gorm.DB) *ReputationService {
	return &ReputationService{
		db:   db,
		repo: repository.NewSignalRepository(db),
	}
}

// CalculateUserScore recomputes a user's score from the 7-day behavior
// window and persists the derived tier, perks and restrictions. The result
// is deterministic given identical history. A previous manual override is
// superseded and its active flag cleared.
func (s *ReputationService) CalculateUserScore(userID uint) (int, error) {
	if _, err := s.repo.GetUser(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	now := time.Now()
	since := now.Add(-ReputationWindowDays * 24 * time.Hour)

	posts, err := s.repo.PostsSince(userID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to load posts: %w", err)
	}

	messages, err := s.repo.MessageCountSince(userID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	logs, err := s.repo.ModerationLogsSince(userID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to load moderation logs: %w", err)
	}

	ratings, err := s.repo.RatingsSince(userID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to load ratings: %w", err)
	}

	totalPosts := len(posts)
	helpfulPosts := 0
	for _, post := range posts {
		if post.LikeCount >= HelpfulPostLikes || post.CommentCount >= HelpfulPostComments {
			helpfulPosts++
		}
	}

	violations := 0
	warnings := 0
	for _, entry := range logs {
		if entry.Action == models.ActionWarn {
			warnings++
		} else {
			violations++
		}
	}

	consistency := math.Min(float64(totalPosts)/ReputationWindowDays*10, ConsistencyCap)
	engagement := math.Min(float64(messages+int64(totalPosts))/20*15, EngagementCap)

	marketplaceRating := 0.0
	if len(ratings) > 0 {
		sum := 0.0
		for _, rating := range ratings {
			sum += float64(rating.Rating)
		}
		marketplaceRating = sum / float64(len(ratings))
	}

	raw := float64(DefaultScore) +
		HelpfulPostWeight*float64(helpfulPosts) +
		consistency +
		engagement +
		MarketplaceWeight*marketplaceRating -
		ViolationPenalty*float64(violations) -
		WarningPenalty*float64(warnings)

	score := clampScore(int(math.Round(raw)))

	s.mu.Lock()
	defer s.mu.Unlock()

	reputation, err := s.getOrCreateReputation(userID)
	if err != nil {
		return 0, err
	}

	reputation.Score = score
	reputation.Tier = TierForScore(score)
	reputation.HelpfulPosts = helpfulPosts
	reputation.TotalPosts = totalPosts
	reputation.Violations = violations
	reputation.Warnings = warnings
	reputation.Consistency = consistency
	reputation.Engagement = engagement
	reputation.MarketplaceRating = marketplaceRating
	applyPerks(reputation, score)
	applyRestrictions(reputation, score, now)
	reputation.OverrideActive = false
	reputation.History = reputation.History.Append(models.ReputationEvent{
		Timestamp: now,
		Score:     score,
		Reason:    "recalculated",
	})
	reputation.LastCalculated = now

	if err := s.db.Save(reputation).Error; err != nil {
		return 0, fmt.Errorf("failed to save reputation: %w", err)
	}

	log.Printf("Recalculated reputation for user %d: score=%d tier=%s", userID, score, reputation.Tier)
	return score, nil
}

// GetReputation returns a user's reputation record, creating it lazily at
// the default score on first access.
func (s *ReputationService) GetReputation(userID uint) (*models.UserReputation, error) {
	if _, err := s.repo.GetUser(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateReputation(userID)
}

// CheckPostingAllowed enforces the cooldown first, then the hourly rate
// limit against the trailing 60-minute post count.
func (s *ReputationService) CheckPostingAllowed(userID uint) (PostingCheck, error) {
	user, err := s.repo.GetUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PostingCheck{}, ErrUserNotFound
		}
		return PostingCheck{}, err
	}

	now := time.Now()

	if user.IsBanned(now) {
		check := PostingCheck{
			Allowed: false,
			Reason:  "account suspended: " + user.BanReason,
		}
		if user.BannedUntil != nil {
			check.WaitSeconds = int(user.BannedUntil.Sub(now).Seconds())
		}
		return check, nil
	}

	s.mu.Lock()
	reputation, err := s.getOrCreateReputation(userID)
	s.mu.Unlock()
	if err != nil {
		return PostingCheck{}, err
	}

	if reputation.CooldownUntil != nil && reputation.CooldownUntil.After(now) {
		wait := int(reputation.CooldownUntil.Sub(now).Seconds())
		return PostingCheck{
			Allowed:     false,
			Reason:      fmt.Sprintf("posting cooldown active, try again in %s", reputation.CooldownUntil.Sub(now).Round(time.Minute)),
			WaitSeconds: wait,
		}, nil
	}

	windowStart := now.Add(-RateLimitWindow)
	recentPosts, err := s.repo.PostCountSince(userID, windowStart)
	if err != nil {
		return PostingCheck{}, fmt.Errorf("failed to count recent posts: %w", err)
	}

	if recentPosts >= int64(reputation.MaxPostsPerHour) {
		check := PostingCheck{
			Allowed: false,
			Reason:  fmt.Sprintf("hourly posting limit of %d reached", reputation.MaxPostsPerHour),
		}
		oldest, err := s.repo.OldestPostSince(userID, windowStart)
		if err == nil && oldest != nil {
			check.WaitSeconds = int(oldest.CreatedAt.Add(RateLimitWindow).Sub(now).Seconds())
			if check.WaitSeconds < 0 {
				check.WaitSeconds = 0
			}
		}
		return check, nil
	}

	return PostingCheck{Allowed: true}, nil
}

// ManualOverride replaces the computed score with a reviewer-supplied one
// and rederives tier, perks and restrictions from the new value. The
// override is an audit annotation: the next automatic recalculation
// supersedes it.
func (s *ReputationService) ManualOverride(userID uint, score int, by string, reason string) error {
	if score < 0 || score > 100 {
		return ErrInvalidScore
	}
	if _, err := s.repo.GetUser(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reputation, err := s.getOrCreateReputation(userID)
	if err != nil {
		return err
	}

	now := time.Now()
	reputation.Score = score
	reputation.Tier = TierForScore(score)
	applyPerks(reputation, score)
	applyRestrictions(reputation, score, now)
	reputation.OverrideActive = true
	reputation.OverrideBy = by
	reputation.OverrideReason = reason
	reputation.OverrideAt = &now
	reputation.History = reputation.History.Append(models.ReputationEvent{
		Timestamp: now,
		Score:     score,
		Reason:    fmt.Sprintf("manual override by %s: %s", by, reason),
	})

	if err := s.db.Save(reputation).Error; err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}

	log.Printf("Manual reputation override for user %d: score=%d by=%s", userID, score, by)
	return nil
}

// getOrCreateReputation loads the reputation record, creating it at the
// default score on first interaction. Caller holds s.mu.
func (s *ReputationService) getOrCreateReputation(userID uint) (*models.UserReputation, error) {
	var reputation models.UserReputation
	err := s.db.Where("user_id = ?", userID).First(&reputation).Error
	if err == nil {
		return &reputation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	reputation = models.UserReputation{
		UserID:           userID,
		Score:            DefaultScore,
		Tier:             TierForScore(DefaultScore),
		VisibilityPublic: true,
	}
	applyPerks(&reputation, DefaultScore)
	applyRestrictions(&reputation, DefaultScore, time.Now())

	if err := s.db.Create(&reputation).Error; err != nil {
		return nil, fmt.Errorf("failed to create reputation: %w", err)
	}
	return &reputation, nil
}

// TierForScore maps a score onto the five non-overlapping tiers.
func TierForScore(score int) string {
	switch {
	case score >= 90:
		return models.TierLegendary
	case score >= 75:
		return models.TierElite
	case score >= 60:
		return models.TierVeteran
	case score >= 40:
		return models.TierTrusted
	default:
		return models.TierNovice
	}
}

// applyPerks sets the perk flags for a score. Perks unlock monotonically.
func applyPerks(r *models.UserReputation, score int) {
	r.FastPosting = score >= 60
	r.HighlightBadge = score >= 75
	r.VisibilityBoost = score >= 75
	r.PrioritySupport = score >= 90
}

// applyRestrictions sets the restriction fields for a score. Restrictions
// tighten inversely to score; only scores under 20 carry a cooldown.
func applyRestrictions(r *models.UserReputation, score int, now time.Time) {
	switch {
	case score < 20:
		cooldown := now.Add(LowScoreCooldownPeriod)
		r.CooldownUntil = &cooldown
		r.PostingLimited = true
		r.MaxPostsPerHour = 2
	case score < 40:
		r.CooldownUntil = nil
		r.PostingLimited = true
		r.MaxPostsPerHour = 5
	case score < 75:
		r.CooldownUntil = nil
		r.PostingLimited = false
		r.MaxPostsPerHour = 20
	default:
		r.CooldownUntil = nil
		r.PostingLimited = false
		r.MaxPostsPerHour = 50
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
