package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a community member with a wallet balance and
// account-level enforcement state.
type User struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Username       string          `gorm:"uniqueIndex;not null" json:"username"`
	Balance        decimal.Decimal `gorm:"type:decimal(15,2);default:0" json:"balance"`
	Banned         bool            `gorm:"default:false" json:"banned"`
	BannedUntil    *time.Time      `json:"banned_until,omitempty"`
	BanReason      string          `gorm:"type:text" json:"ban_reason,omitempty"`
	ViolationCount int             `gorm:"default:0" json:"violation_count"`
	WarningCount   int             `gorm:"default:0" json:"warning_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// IsBanned reports whether the user has an active ban window.
func (u *User) IsBanned(now time.Time) bool {
	if !u.Banned {
		return false
	}
	if u.BannedUntil == nil {
		return true
	}
	return u.BannedUntil.After(now)
}
