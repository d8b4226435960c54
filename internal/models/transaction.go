package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the ledger direction of a wallet transaction.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// IsValidTransactionType reports whether t is credit or debit.
func IsValidTransactionType(t string) bool {
	return TransactionType(t) == TransactionCredit || TransactionType(t) == TransactionDebit
}

// TransactionStatus is the lifecycle state of a wallet transaction.
// A transaction is pending iff its fraud score exceeded the review
// threshold; the balance mutates only on the transition to completed.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPending   TransactionStatus = "pending"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:   {TransactionCompleted, TransactionFailed, TransactionCancelled},
	TransactionCompleted: {},
	TransactionFailed:    {},
	TransactionCancelled: {},
}

// CanTransitionTo reports whether the status may move to next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WalletTransaction is a ledger entry. Flagged transactions are persisted
// pending with the balance untouched until a reviewer resolves the alert.
type WalletTransaction struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	Reference         string            `gorm:"size:36;uniqueIndex;not null" json:"reference"`
	UserID            uint              `gorm:"not null;index" json:"user_id"`
	User              *User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type              TransactionType   `gorm:"size:10;not null;index" json:"type"`
	Amount            decimal.Decimal   `gorm:"type:decimal(15,2);not null" json:"amount"`
	BalanceBefore     decimal.Decimal   `gorm:"type:decimal(15,2)" json:"balance_before"`
	BalanceAfter      decimal.Decimal   `gorm:"type:decimal(15,2)" json:"balance_after"`
	Category          string            `gorm:"size:50" json:"category"`
	IPAddress         string            `gorm:"size:45;index" json:"ip_address"`
	DeviceFingerprint string            `gorm:"size:64;index" json:"device_fingerprint"`
	FraudScore        int               `gorm:"default:0" json:"fraud_score"`
	FlaggedForReview  bool              `gorm:"default:false" json:"flagged_for_review"`
	Status            TransactionStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt         time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

// AlertStatus is the review state of a fraud alert.
type AlertStatus string

const (
	AlertPending       AlertStatus = "pending"
	AlertReviewed      AlertStatus = "reviewed"
	AlertResolved      AlertStatus = "resolved"
	AlertFalsePositive AlertStatus = "false_positive"
)

// AlertResolution is the reviewer's verdict on a held transaction.
type AlertResolution string

const (
	ResolutionApproved      AlertResolution = "approved"
	ResolutionRejected      AlertResolution = "rejected"
	ResolutionFalsePositive AlertResolution = "false_positive"
)

// IsValidAlertResolution reports whether r is a known resolution.
func IsValidAlertResolution(r string) bool {
	switch AlertResolution(r) {
	case ResolutionApproved, ResolutionRejected, ResolutionFalsePositive:
		return true
	}
	return false
}

// FraudAlert is created atomically with a flagged transaction and resolved
// by a reviewer action. Resolution is idempotent: only a pending alert can
// be acted on.
type FraudAlert struct {
	ID            uint               `gorm:"primaryKey" json:"id"`
	Reference     string             `gorm:"size:36;uniqueIndex;not null" json:"reference"`
	TransactionID uint               `gorm:"not null;index" json:"transaction_id"`
	Transaction   *WalletTransaction `gorm:"foreignKey:TransactionID" json:"transaction,omitempty"`
	UserID        uint               `gorm:"not null;index" json:"user_id"`
	AlertType     string             `gorm:"size:255" json:"alert_type"`
	Severity      Severity           `gorm:"size:10;not null" json:"severity"`
	FraudScore    int                `gorm:"not null" json:"fraud_score"`
	Status        AlertStatus        `gorm:"size:20;default:pending;index" json:"status"`
	Resolution    string             `gorm:"size:20" json:"resolution,omitempty"`
	ReviewedBy    string             `gorm:"size:100" json:"reviewed_by,omitempty"`
	Notes         string             `gorm:"type:text" json:"notes,omitempty"`
	ReviewedAt    *time.Time         `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time          `gorm:"index" json:"created_at"`
}

func (FraudAlert) TableName() string {
	return "fraud_alerts"
}
