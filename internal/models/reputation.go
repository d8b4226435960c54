package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Reputation tiers, ascending.
const (
	TierNovice    = "novice"
	TierTrusted   = "trusted"
	TierVeteran   = "veteran"
	TierElite     = "elite"
	TierLegendary = "legendary"
)

// ReputationEvent is one entry in the bounded score history.
type ReputationEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Score     int       `json:"score"`
	Reason    string    `json:"reason"`
}

// ReputationHistory is the bounded ordered log of score changes, stored as
// a JSON column. Append keeps only the most recent entries.
type ReputationHistory []ReputationEvent

// ReputationHistoryLimit bounds the stored history log.
const ReputationHistoryLimit = 10

func (h ReputationHistory) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

func (h *ReputationHistory) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, h)
	case string:
		return json.Unmarshal([]byte(v), h)
	}
	return nil
}

// Append adds an event and trims the log to ReputationHistoryLimit entries,
// dropping the oldest first.
func (h ReputationHistory) Append(event ReputationEvent) ReputationHistory {
	out := append(h, event)
	if len(out) > ReputationHistoryLimit {
		out = out[len(out)-ReputationHistoryLimit:]
	}
	return out
}

// UserReputation is the per-user trust record. Tier, perks and restrictions
// are derived from Score; the cached metric columns are a snapshot of the
// last calculation, recomputable from stored history at any time.
type UserReputation struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"uniqueIndex;not null" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Score  int    `gorm:"default:50" json:"score"`
	Tier   string `gorm:"size:20;default:trusted" json:"tier"`

	// Metrics snapshot from the last calculation window.
	HelpfulPosts      int     `gorm:"default:0" json:"helpful_posts"`
	TotalPosts        int     `gorm:"default:0" json:"total_posts"`
	Violations        int     `gorm:"default:0" json:"violations"`
	Warnings          int     `gorm:"default:0" json:"warnings"`
	Consistency       float64 `gorm:"default:0" json:"consistency"`
	Engagement        float64 `gorm:"default:0" json:"engagement"`
	MarketplaceRating float64 `gorm:"default:0" json:"marketplace_rating"`

	// Perks unlock monotonically with score.
	FastPosting     bool `gorm:"default:false" json:"fast_posting"`
	HighlightBadge  bool `gorm:"default:false" json:"highlight_badge"`
	VisibilityBoost bool `gorm:"default:false" json:"visibility_boost"`
	PrioritySupport bool `gorm:"default:false" json:"priority_support"`

	// Restrictions tighten as score drops.
	CooldownUntil   *time.Time `json:"cooldown_until,omitempty"`
	PostingLimited  bool       `gorm:"default:false" json:"posting_limited"`
	MaxPostsPerHour int        `gorm:"default:20" json:"max_posts_per_hour"`

	History          ReputationHistory `gorm:"type:jsonb" json:"history"`
	VisibilityPublic bool              `gorm:"default:true" json:"visibility_public"`

	// Manual override audit fields. An override annotates the record; the
	// next automatic recalculation supersedes it and clears the flag.
	OverrideActive bool       `gorm:"default:false" json:"override_active"`
	OverrideBy     string     `gorm:"size:100" json:"override_by,omitempty"`
	OverrideReason string     `gorm:"type:text" json:"override_reason,omitempty"`
	OverrideAt     *time.Time `json:"override_at,omitempty"`

	LastCalculated time.Time `json:"last_calculated"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (UserReputation) TableName() string {
	return "user_reputations"
}
