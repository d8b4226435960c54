package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"trust-engine/internal/classifier"
	"trust-engine/internal/models"
	"trust-engine/internal/repository"

	"gorm.io/gorm"
)

// Moderation decision thresholds.
const (
	ViolationWindowDays = 30

	BanViolationThreshold      = 3  // HIGH severity bans at this many priors
	EscalateViolationThreshold = 5  // MEDIUM severity escalates at this many priors
	WarnViolationThreshold     = 10 // LOW severity warns at this many priors

	BanDaysCritical = 30
	BanDaysHigh     = 7
	BanDaysDefault  = 1
)

var (
	ErrInvalidContentType = errors.New("unknown content type")
	ErrLogNotFound        = errors.New("moderation log not found")
	ErrNotLogOwner        = errors.New("appeal must come from the log's user")
)

// ModerationResult is the decision for one submission. Block, ban and
// escalate are policy outcomes, not errors; the reason is always
// human-readable.
type ModerationResult struct {
	Allowed    bool                    `json:"allowed"`
	Severity   models.Severity         `json:"severity"`
	Categories []string                `json:"categories"`
	Action     models.ModerationAction `json:"action"`
	Reason     string                  `json:"reason"`
	Confidence float64                 `json:"confidence"`
	LogID      uint                    `json:"log_id,omitempty"`
}

// ModerationService classifies submitted text through the rule filter and
// the external semantic classifier, decides an enforcement action, logs
// violations and handles the appeal workflow.
type ModerationService struct {
	db         *gorm.DB
	repo       *repository.SignalRepository
	classifier classifier.Classifier
	timeout    time.Duration
	mu         sync.Mutex
}

func NewModerationService(db *gorm.DB, cls classifier.Classifier, timeout time.Duration) *ModerationService {
	if cls == nil {
		cls = classifier.Noop{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ModerationService{
		db:         db,
		repo:       repository.NewSignalRepository(db),
		classifier: cls,
		timeout:    timeout,
	}
}

// ModerateContent runs both pipeline stages and decides an action. A
// ModerationLog is written whenever the action is not allow; a ban
// additionally suspends the account for a severity-keyed duration.
func (s *ModerationService) ModerateContent(ctx context.Context, userID uint, content string, contentType string, contentID *uint) (ModerationResult, error) {
	if !models.IsValidContentType(contentType) {
		return ModerationResult{}, ErrInvalidContentType
	}

	user, err := s.repo.GetUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ModerationResult{}, ErrUserNotFound
		}
		return ModerationResult{}, err
	}

	// Stage 1: rule-based filter. Always runs; its severity is a floor the
	// classifier stage can raise but never lower.
	ruleResult := runRuleFilter(content)

	// Stage 2: external semantic classification with a caller-enforced
	// timeout. Failure degrades to the fail-open default.
	classCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	semantic, err := s.classifier.Classify(classCtx, content, models.ContentType(contentType))
	if err != nil {
		log.Printf("Classifier unavailable for user %d, degrading to rule-only decision: %v", userID, err)
		semantic = classifier.FailOpenResult()
	}

	severity := models.MaxSeverity(ruleResult.Severity, semantic.Severity)
	categories := semantic.Categories
	if len(ruleResult.Violations) > 0 {
		categories = appendUnique(categories, "spam")
	}

	windowStart := time.Now().Add(-ViolationWindowDays * 24 * time.Hour)
	priorViolations, err := s.repo.ViolationCountSince(userID, windowStart)
	if err != nil {
		return ModerationResult{}, fmt.Errorf("failed to count prior violations: %w", err)
	}

	action := decideAction(severity, priorViolations)

	result := ModerationResult{
		Allowed:    action == models.ActionAllow || action == models.ActionWarn,
		Severity:   severity,
		Categories: categories,
		Action:     action,
		Reason:     reasonFor(action, severity, ruleResult.Violations),
		Confidence: semantic.Confidence,
	}

	if action == models.ActionAllow {
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		entry := models.ModerationLog{
			UserID:         userID,
			ContentType:    models.ContentType(contentType),
			ContentID:      contentID,
			Content:        content,
			Severity:       severity,
			Categories:     categories,
			RuleViolations: ruleResult.Violations,
			Action:         action,
			Reason:         result.Reason,
			Confidence:     semantic.Confidence,
			Status:         models.ModerationStatusPending,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to write moderation log: %w", err)
		}
		result.LogID = entry.ID

		if action == models.ActionWarn {
			if err := s.repo.IncrementWarningCount(tx, userID, 1); err != nil {
				return err
			}
		} else {
			if err := s.repo.IncrementViolationCount(tx, userID, 1); err != nil {
				return err
			}
		}

		if action == models.ActionBan {
			return s.applyBan(tx, user, severity, result.Reason)
		}
		return nil
	})
	if err != nil {
		return ModerationResult{}, err
	}

	log.Printf("Moderation decision for user %d: action=%s severity=%s violations=%d",
		userID, action, severity, len(ruleResult.Violations))
	return result, nil
}

// SubmitAppeal moves a pending log to appealed and records the user's
// appeal reason.
func (s *ModerationService) SubmitAppeal(logID uint, userID uint, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entry models.ModerationLog
	if err := s.db.First(&entry, logID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLogNotFound
		}
		return err
	}

	if entry.UserID != userID {
		return ErrNotLogOwner
	}
	if !entry.Status.CanTransitionTo(models.ModerationStatusAppealed) {
		return fmt.Errorf("log %d cannot be appealed in status %s", logID, entry.Status)
	}

	return s.db.Model(&entry).Updates(map[string]interface{}{
		"status":        models.ModerationStatusAppealed,
		"appeal_reason": reason,
	}).Error
}

// ReviewAppeal resolves a log. Approval lifts the ban and decrements the
// violation counter by exactly one; the log itself remains for audit.
// Reviewing an already-resolved log is a no-op.
func (s *ModerationService) ReviewAppeal(logID uint, approved bool, reviewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entry models.ModerationLog
	if err := s.db.First(&entry, logID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLogNotFound
		}
		return err
	}

	if entry.Status == models.ModerationStatusResolved {
		return nil
	}
	if !entry.Status.CanTransitionTo(models.ModerationStatusResolved) {
		return fmt.Errorf("log %d cannot be resolved in status %s", logID, entry.Status)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&entry).Updates(map[string]interface{}{
			"status":      models.ModerationStatusResolved,
			"reviewed_by": reviewerID,
			"reviewed_at": now,
		}).Error; err != nil {
			return err
		}

		if !approved {
			return nil
		}

		if entry.Action == models.ActionBan {
			if err := tx.Model(&models.User{}).Where("id = ?", entry.UserID).Updates(map[string]interface{}{
				"banned":       false,
				"banned_until": nil,
				"ban_reason":   "",
			}).Error; err != nil {
				return err
			}
		}

		if entry.Action == models.ActionWarn {
			return s.repo.IncrementWarningCount(tx, entry.UserID, -1)
		}
		return s.repo.IncrementViolationCount(tx, entry.UserID, -1)
	})
}

// PendingLogs returns moderation logs awaiting review, newest first.
func (s *ModerationService) PendingLogs(limit int) ([]models.ModerationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.ModerationLog
	err := s.db.Where("status IN ?", []models.ModerationStatus{
		models.ModerationStatusPending,
		models.ModerationStatusAppealed,
	}).Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// applyBan suspends the account for the severity-keyed duration. A ban
// window already in progress is not extended by further violations.
func (s *ModerationService) applyBan(tx *gorm.DB, user *models.User, severity models.Severity, reason string) error {
	now := time.Now()
	if user.IsBanned(now) {
		return nil
	}

	until := now.AddDate(0, 0, banDays(severity))
	return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"banned":       true,
		"banned_until": until,
		"ban_reason":   reason,
	}).Error
}

// decideAction applies the action matrix on severity and the trailing
// 30-day prior violation count.
func decideAction(severity models.Severity, priorViolations int64) models.ModerationAction {
	switch severity {
	case models.SeverityCritical:
		return models.ActionBan
	case models.SeverityHigh:
		if priorViolations >= BanViolationThreshold {
			return models.ActionBan
		}
		return models.ActionEscalate
	case models.SeverityMedium:
		if priorViolations >= EscalateViolationThreshold {
			return models.ActionEscalate
		}
		return models.ActionBlock
	default:
		if priorViolations >= WarnViolationThreshold {
			return models.ActionWarn
		}
		return models.ActionAllow
	}
}

// banDays maps severity to ban duration in days.
func banDays(severity models.Severity) int {
	switch severity {
	case models.SeverityCritical:
		return BanDaysCritical
	case models.SeverityHigh:
		return BanDaysHigh
	default:
		return BanDaysDefault
	}
}

// reasonFor builds the enforcement message shown to the user. A ban must
// never surface as a generic error.
func reasonFor(action models.ModerationAction, severity models.Severity, violations []string) string {
	switch action {
	case models.ActionAllow:
		return ""
	case models.ActionWarn:
		return "content allowed with a warning due to repeated low-severity violations"
	case models.ActionBlock:
		return fmt.Sprintf("content blocked (%s severity, %d rule violations)", severity, len(violations))
	case models.ActionEscalate:
		return fmt.Sprintf("content held for human review (%s severity)", severity)
	case models.ActionBan:
		return fmt.Sprintf("account suspended for %d days due to %s severity violation", banDays(severity), severity)
	}
	return ""
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
