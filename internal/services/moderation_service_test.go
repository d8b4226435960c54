package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trust-engine/internal/classifier"
	"trust-engine/internal/models"
)

// stubClassifier returns a fixed result or error, standing in for the
// external classification service.
type stubClassifier struct {
	result classifier.Result
	err    error
}

func (s stubClassifier) Classify(ctx context.Context, content string, contentType models.ContentType) (classifier.Result, error) {
	if s.err != nil {
		return classifier.Result{}, s.err
	}
	return s.result, nil
}

func newTestModerationService(t *testing.T, cls classifier.Classifier) *ModerationService {
	db := setupTestDB(t)
	return NewModerationService(db, cls, time.Second)
}

func seedViolations(t *testing.T, s *ModerationService, userID uint, count int) {
	t.Helper()
	now := time.Now()
	for i := 0; i < count; i++ {
		err := s.db.Create(&models.ModerationLog{
			UserID:      userID,
			ContentType: models.ContentTypePost,
			Content:     "prior violation",
			Severity:    models.SeverityMedium,
			Action:      models.ActionBlock,
			Status:      models.ModerationStatusPending,
			CreatedAt:   now.Add(-time.Duration(i+1) * time.Hour),
		}).Error
		if err != nil {
			t.Fatalf("failed to seed violation: %v", err)
		}
	}
}

func TestRuleFilterSeverityEscalation(t *testing.T) {
	clean := runRuleFilter("just a friendly post about gardening")
	if len(clean.Violations) != 0 || clean.Severity != models.SeverityLow {
		t.Errorf("clean content should have no violations, got %v", clean.Violations)
	}

	// Five distinct rule matches: blocklist term, urgency, free money,
	// raw URL and bare domain.
	spam := runRuleFilter("ACT NOW guaranteed returns! free money at https://scam.example.com visit scam.biz")
	if len(spam.Violations) < HighViolationCount {
		t.Fatalf("expected at least %d violations, got %d: %v",
			HighViolationCount, len(spam.Violations), spam.Violations)
	}
	if spam.Severity != models.SeverityHigh {
		t.Errorf("%d violations should escalate to HIGH, got %s", len(spam.Violations), spam.Severity)
	}

	three := runRuleFilter("buy now for free money, see info.biz")
	if len(three.Violations) != 3 {
		t.Fatalf("expected exactly 3 violations, got %d: %v", len(three.Violations), three.Violations)
	}
	if three.Severity != models.SeverityMedium {
		t.Errorf("3 violations should escalate to MEDIUM, got %s", three.Severity)
	}
}

func TestRuleFilterStructuralChecks(t *testing.T) {
	long := runRuleFilter(strings.Repeat("a", MaxContentLength+1))
	if len(long.Violations) != 1 {
		t.Errorf("overlong content should match exactly the length rule, got %v", long.Violations)
	}

	shouting := runRuleFilter("THIS IS ALL UPPERCASE SHOUTING TEXT")
	found := false
	for _, v := range shouting.Violations {
		if v == "excessive uppercase" {
			found = true
		}
	}
	if !found {
		t.Errorf("shouting should match the uppercase rule, got %v", shouting.Violations)
	}

	// Short content is exempt from the uppercase rule.
	short := runRuleFilter("OK THANKS")
	for _, v := range short.Violations {
		if v == "excessive uppercase" {
			t.Error("content at or under 20 chars should not match the uppercase rule")
		}
	}
}

func TestRuleFloorSurvivesClassifierFailure(t *testing.T) {
	service := newTestModerationService(t, stubClassifier{err: errors.New("connection refused")})
	user := createTestUser(t, service.db, "spammer")

	result, err := service.ModerateContent(context.Background(), user.ID,
		"ACT NOW guaranteed returns! free money at https://scam.example.com visit scam.biz",
		"post", nil)
	if err != nil {
		t.Fatalf("classifier failure must not fail the pipeline: %v", err)
	}
	if result.Severity != models.SeverityHigh {
		t.Errorf("rule-based HIGH floor must survive classifier failure, got %s", result.Severity)
	}
	if result.Action != models.ActionEscalate {
		t.Errorf("HIGH with no priors should escalate, got %s", result.Action)
	}
	if result.Allowed {
		t.Error("escalated content must not be allowed")
	}
}

func TestBanBoundaryAtThreePriorViolations(t *testing.T) {
	highSeverity := stubClassifier{result: classifier.Result{
		Categories: []string{"harassment"},
		Severity:   models.SeverityHigh,
		Confidence: 0.9,
	}}

	// Two priors: escalate, not ban.
	service := newTestModerationService(t, highSeverity)
	user := createTestUser(t, service.db, "two-priors")
	seedViolations(t, service, user.ID, 2)

	result, err := service.ModerateContent(context.Background(), user.ID, "hostile message", "chat", nil)
	if err != nil {
		t.Fatalf("ModerateContent failed: %v", err)
	}
	if result.Action != models.ActionEscalate {
		t.Errorf("HIGH with 2 priors should escalate, got %s", result.Action)
	}

	// Three priors: ban.
	user2 := createTestUser(t, service.db, "three-priors")
	seedViolations(t, service, user2.ID, 3)

	result, err = service.ModerateContent(context.Background(), user2.ID, "hostile message", "chat", nil)
	if err != nil {
		t.Fatalf("ModerateContent failed: %v", err)
	}
	if result.Action != models.ActionBan {
		t.Errorf("HIGH with 3 priors should ban, got %s", result.Action)
	}

	var banned models.User
	service.db.First(&banned, user2.ID)
	if !banned.IsBanned(time.Now()) {
		t.Error("ban action should suspend the account")
	}
	if banned.BannedUntil == nil {
		t.Fatal("ban should carry an expiry")
	}
	days := time.Until(*banned.BannedUntil).Hours() / 24
	if days < 6 || days > 8 {
		t.Errorf("HIGH ban should last about 7 days, got %.1f", days)
	}
}

func TestCriticalAlwaysBans(t *testing.T) {
	service := newTestModerationService(t, stubClassifier{result: classifier.Result{
		Categories: []string{"violence"},
		Severity:   models.SeverityCritical,
		Confidence: 0.99,
	}})
	user := createTestUser(t, service.db, "first-timer")

	result, err := service.ModerateContent(context.Background(), user.ID, "threatening message", "post", nil)
	if err != nil {
		t.Fatalf("ModerateContent failed: %v", err)
	}
	if result.Action != models.ActionBan {
		t.Errorf("CRITICAL should ban regardless of priors, got %s", result.Action)
	}
	if result.Reason == "" || !strings.Contains(result.Reason, "suspended") {
		t.Errorf("ban must carry an explicit enforcement message, got %q", result.Reason)
	}
}

func TestAllowWritesNoLog(t *testing.T) {
	service := newTestModerationService(t, classifier.Noop{})
	user := createTestUser(t, service.db, "civil")

	result, err := service.ModerateContent(context.Background(), user.ID, "lovely weather today", "comment", nil)
	if err != nil {
		t.Fatalf("ModerateContent failed: %v", err)
	}
	if result.Action != models.ActionAllow || !result.Allowed {
		t.Fatalf("clean content should be allowed, got %s", result.Action)
	}

	var count int64
	service.db.Model(&models.ModerationLog{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 0 {
		t.Errorf("allow decisions must not write a log, found %d", count)
	}
}

func TestBlockWritesLogAndIncrementsCounter(t *testing.T) {
	service := newTestModerationService(t, stubClassifier{result: classifier.Result{
		Categories: []string{"spam"},
		Severity:   models.SeverityMedium,
		Confidence: 0.8,
	}})
	user := createTestUser(t, service.db, "blocked")

	result, err := service.ModerateContent(context.Background(), user.ID, "some spammy thing", "post", nil)
	if err != nil {
		t.Fatalf("ModerateContent failed: %v", err)
	}
	if result.Action != models.ActionBlock {
		t.Fatalf("MEDIUM with no priors should block, got %s", result.Action)
	}
	if result.LogID == 0 {
		t.Fatal("non-allow decision should reference its log")
	}

	var entry models.ModerationLog
	if err := service.db.First(&entry, result.LogID).Error; err != nil {
		t.Fatalf("log not written: %v", err)
	}
	if entry.Content != "some spammy thing" {
		t.Error("log must snapshot the submitted content")
	}
	if entry.Status != models.ModerationStatusPending {
		t.Errorf("new log should be pending, got %s", entry.Status)
	}

	var updated models.User
	service.db.First(&updated, user.ID)
	if updated.ViolationCount != 1 {
		t.Errorf("violation counter should increment to 1, got %d", updated.ViolationCount)
	}
}

func TestInvalidContentTypeRejected(t *testing.T) {
	service := newTestModerationService(t, classifier.Noop{})
	user := createTestUser(t, service.db, "typo")

	_, err := service.ModerateContent(context.Background(), user.ID, "hello", "story", nil)
	if !errors.Is(err, ErrInvalidContentType) {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
}

func TestAppealWorkflow(t *testing.T) {
	service := newTestModerationService(t, stubClassifier{result: classifier.Result{
		Severity:   models.SeverityCritical,
		Confidence: 0.95,
	}})
	user := createTestUser(t, service.db, "appellant")

	result, err := service.ModerateContent(context.Background(), user.ID, "flagged content", "post", nil)
	if err != nil {
		t.Fatalf("ModerateContent failed: %v", err)
	}
	if result.Action != models.ActionBan {
		t.Fatalf("setup expects a ban, got %s", result.Action)
	}

	// Appeal must come from the affected user.
	if err := service.SubmitAppeal(result.LogID, user.ID+1, "not me"); !errors.Is(err, ErrNotLogOwner) {
		t.Errorf("expected ErrNotLogOwner, got %v", err)
	}

	if err := service.SubmitAppeal(result.LogID, user.ID, "this was a misunderstanding"); err != nil {
		t.Fatalf("SubmitAppeal failed: %v", err)
	}

	var entry models.ModerationLog
	service.db.First(&entry, result.LogID)
	if entry.Status != models.ModerationStatusAppealed {
		t.Fatalf("appeal should move status to appealed, got %s", entry.Status)
	}

	// Approve: resolved, ban lifted, counter decremented by exactly one.
	if err := service.ReviewAppeal(result.LogID, true, "reviewer-1"); err != nil {
		t.Fatalf("ReviewAppeal failed: %v", err)
	}

	service.db.First(&entry, result.LogID)
	if entry.Status != models.ModerationStatusResolved {
		t.Errorf("review should resolve the log, got %s", entry.Status)
	}
	if entry.ReviewedBy != "reviewer-1" {
		t.Errorf("log should record the reviewer, got %q", entry.ReviewedBy)
	}

	var cleared models.User
	service.db.First(&cleared, user.ID)
	if cleared.IsBanned(time.Now()) {
		t.Error("approved appeal should lift the ban")
	}
	if cleared.ViolationCount != 0 {
		t.Errorf("violation counter should decrement to 0, got %d", cleared.ViolationCount)
	}

	// A second review is a no-op.
	if err := service.ReviewAppeal(result.LogID, true, "reviewer-2"); err != nil {
		t.Fatalf("second review should be a no-op, got %v", err)
	}
	service.db.First(&entry, result.LogID)
	if entry.ReviewedBy != "reviewer-1" {
		t.Error("second review must not overwrite the first")
	}
}

func TestBanWindowNotExtended(t *testing.T) {
	service := newTestModerationService(t, stubClassifier{result: classifier.Result{
		Severity:   models.SeverityCritical,
		Confidence: 0.9,
	}})
	user := createTestUser(t, service.db, "repeat")

	if _, err := service.ModerateContent(context.Background(), user.ID, "first offense", "post", nil); err != nil {
		t.Fatalf("first moderation failed: %v", err)
	}

	var banned models.User
	service.db.First(&banned, user.ID)
	firstUntil := *banned.BannedUntil

	if _, err := service.ModerateContent(context.Background(), user.ID, "second offense", "post", nil); err != nil {
		t.Fatalf("second moderation failed: %v", err)
	}

	service.db.First(&banned, user.ID)
	if !banned.BannedUntil.Equal(firstUntil) {
		t.Error("a violation inside an open ban window must not extend it")
	}
}
