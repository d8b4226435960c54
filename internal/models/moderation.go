package models

import (
	"time"

	"github.com/lib/pq"
)

// ContentType identifies the surface a piece of text was submitted from.
type ContentType string

const (
	ContentTypePost        ContentType = "post"
	ContentTypeComment     ContentType = "comment"
	ContentTypeChat        ContentType = "chat"
	ContentTypeMarketplace ContentType = "marketplace"
	ContentTypeProfile     ContentType = "profile"
)

// IsValidContentType reports whether ct is a known content type.
func IsValidContentType(ct string) bool {
	switch ContentType(ct) {
	case ContentTypePost, ContentTypeComment, ContentTypeChat,
		ContentTypeMarketplace, ContentTypeProfile:
		return true
	}
	return false
}

// ModerationAction is the enforcement decision for a submission.
type ModerationAction string

const (
	ActionAllow    ModerationAction = "allow"
	ActionWarn     ModerationAction = "warn"
	ActionBlock    ModerationAction = "block"
	ActionBan      ModerationAction = "ban"
	ActionEscalate ModerationAction = "escalate"
)

// ModerationStatus is the review state of a moderation log.
type ModerationStatus string

const (
	ModerationStatusPending  ModerationStatus = "pending"
	ModerationStatusAppealed ModerationStatus = "appealed"
	ModerationStatusResolved ModerationStatus = "resolved"
)

// moderationTransitions is the validated transition table; anything not
// listed here is an invalid transition.
var moderationTransitions = map[ModerationStatus][]ModerationStatus{
	ModerationStatusPending:  {ModerationStatusAppealed, ModerationStatusResolved},
	ModerationStatusAppealed: {ModerationStatusResolved},
	ModerationStatusResolved: {},
}

// CanTransitionTo reports whether the status may move to next.
func (s ModerationStatus) CanTransitionTo(next ModerationStatus) bool {
	for _, allowed := range moderationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ModerationLog is the immutable audit record of a non-allow moderation
// decision. The content snapshot is never modified after creation.
type ModerationLog struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	UserID         uint             `gorm:"not null;index" json:"user_id"`
	User           *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ContentType    ContentType      `gorm:"size:20;not null" json:"content_type"`
	ContentID      *uint            `json:"content_id,omitempty"`
	Content        string           `gorm:"type:text;not null" json:"content"`
	Severity       Severity         `gorm:"size:10;not null;index" json:"severity"`
	Categories     pq.StringArray   `gorm:"type:text[]" json:"categories"`
	RuleViolations pq.StringArray   `gorm:"type:text[]" json:"rule_violations"`
	Action         ModerationAction `gorm:"size:20;not null" json:"action"`
	Reason         string           `gorm:"type:text" json:"reason"`
	Confidence     float64          `gorm:"default:0" json:"confidence"`
	Status         ModerationStatus `gorm:"size:20;default:pending;index" json:"status"`
	AppealReason   string           `gorm:"type:text" json:"appeal_reason,omitempty"`
	ReviewedBy     string           `gorm:"size:100" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time        `gorm:"index" json:"created_at"`
}

func (ModerationLog) TableName() string {
	return "moderation_logs"
}
