package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Fraud rule constants. Each rule is independent and cumulative; the
// decision threshold uses a strict greater-than comparison.
const (
	FraudThreshold    = 70
	CriticalThreshold = 90

	VelocityWindow = time.Hour
	VelocityLimit  = 10
	VelocityScore  = 30

	DailyCreditWindow = 24 * time.Hour
	DailyCreditScore  = 40

	LargeTransactionScore = 25

	SharedIPWindow = 24 * time.Hour
	SharedIPLimit  = 5
	SharedIPScore  = 20

	SharedFingerprintLimit = 3
	SharedFingerprintScore = 20

	LargeWithdrawalScore = 15
)

// Fixed monetary caps.
var (
	DailyCreditCap       = decimal.NewFromInt(10000)
	LargeTransactionCap  = decimal.NewFromInt(5000)
	LargeWithdrawalRatio = decimal.NewFromFloat(0.9)
)

var (
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrInvalidTransactionType = errors.New("transaction type must be credit or debit")
	ErrInsufficientBalance    = errors.New("insufficient balance for debit")
	ErrAlertNotFound          = errors.New("fraud alert not found")
	ErrInvalidResolution      = errors.New("unknown alert resolution")
)

// FraudResult is the outcome of scoring one proposed transaction. A
// flagged transaction is a successful decision, not an error: the caller
// receives the held transaction's reference and a review message.
type FraudResult struct {
	Score     int      `json:"score"`
	Alerts    []string `json:"alerts"`
	Flagged   bool     `json:"flagged"`
	Reference string   `json:"reference"`
	Status    string   `json:"status"`
	Reason    string   `json:"reason,omitempty"`
	AlertRef  string   `json:"alert_reference,omitempty"`
}

// FraudService evaluates proposed ledger transactions for anomalous
// velocity, amount and device/network signals, and gates execution above
// the review threshold.
type FraudService struct {
	db   *gorm.DB
	repo *repository.SignalRepository
	mu   sync.Mutex
}

func NewFraudService(db *gorm.DB) *FraudService {
	return &FraudService{
		db:   db,
		repo: repository.NewSignalRepository(db),
	}
}

// ScoreTransaction computes the additive risk score and either commits the
// transaction atomically with the balance mutation, or persists it pending
// with a FraudAlert when the score exceeds the threshold.
func (s *FraudService) ScoreTransaction(userID uint, amount decimal.Decimal, txType string, ip string, deviceFingerprint string) (FraudResult, error) {
	if !amount.IsPositive() {
		return FraudResult{}, ErrInvalidAmount
	}
	if !models.IsValidTransactionType(txType) {
		return FraudResult{}, ErrInvalidTransactionType
	}

	user, err := s.repo.GetUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return FraudResult{}, ErrUserNotFound
		}
		return FraudResult{}, err
	}

	direction := models.TransactionType(txType)
	if direction == models.TransactionDebit && amount.GreaterThan(user.Balance) {
		return FraudResult{}, ErrInsufficientBalance
	}

	score, alerts, err := s.computeScore(user, amount, direction, ip, deviceFingerprint)
	if err != nil {
		return FraudResult{}, err
	}

	now := time.Now()
	transaction := models.WalletTransaction{
		Reference:         uuid.NewString(),
		UserID:            userID,
		Type:              direction,
		Amount:            amount,
		BalanceBefore:     user.Balance,
		IPAddress:         ip,
		DeviceFingerprint: deviceFingerprint,
		FraudScore:        score,
		CreatedAt:         now,
	}

	result := FraudResult{
		Score:     score,
		Alerts:    alerts,
		Reference: transaction.Reference,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if score > FraudThreshold {
		// Hold: persist pending, leave the balance untouched, raise an
		// alert in the same transaction.
		transaction.Status = models.TransactionPending
		transaction.FlaggedForReview = true
		transaction.BalanceAfter = user.Balance

		alert := models.FraudAlert{
			Reference:  uuid.NewString(),
			UserID:     userID,
			AlertType:  strings.Join(alerts, ", "),
			Severity:   alertSeverity(score),
			FraudScore: score,
			Status:     models.AlertPending,
			CreatedAt:  now,
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&transaction).Error; err != nil {
				return fmt.Errorf("failed to persist held transaction: %w", err)
			}
			alert.TransactionID = transaction.ID
			if err := tx.Create(&alert).Error; err != nil {
				return fmt.Errorf("failed to create fraud alert: %w", err)
			}
			return nil
		})
		if err != nil {
			return FraudResult{}, err
		}

		result.Flagged = true
		result.Status = string(models.TransactionPending)
		result.Reason = fmt.Sprintf("transaction flagged for review (risk score %d)", score)
		result.AlertRef = alert.Reference

		log.Printf("Flagged %s of %s for user %d: score=%d alerts=%v",
			txType, amount, userID, score, alerts)
		return result, nil
	}

	// Commit: transaction record and balance mutation are atomic.
	transaction.Status = models.TransactionCompleted
	transaction.BalanceAfter = balanceAfter(user.Balance, direction, amount)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&transaction).Error; err != nil {
			return fmt.Errorf("failed to persist transaction: %w", err)
		}
		return s.repo.ApplyBalanceChange(tx, userID, direction, amount)
	})
	if err != nil {
		return FraudResult{}, err
	}

	result.Status = string(models.TransactionCompleted)
	return result, nil
}

// ResolveAlert applies a reviewer's verdict to a held transaction. The
// status guard makes a second resolution a no-op: the held balance
// mutation is applied at most once.
func (s *FraudService) ResolveAlert(alertID uint, resolution string, reviewerID string, notes string) error {
	if !models.IsValidAlertResolution(resolution) {
		return ErrInvalidResolution
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var alert models.FraudAlert
	if err := s.db.First(&alert, alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAlertNotFound
		}
		return err
	}

	if alert.Status != models.AlertPending {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var transaction models.WalletTransaction
		if err := tx.First(&transaction, alert.TransactionID).Error; err != nil {
			return fmt.Errorf("held transaction missing: %w", err)
		}

		verdict := models.AlertResolution(resolution)
		alertStatus := models.AlertResolved

		switch verdict {
		case models.ResolutionApproved:
			if transaction.Status.CanTransitionTo(models.TransactionCompleted) {
				after := balanceAfter(transaction.BalanceBefore, transaction.Type, transaction.Amount)
				if err := tx.Model(&transaction).Updates(map[string]interface{}{
					"status":        models.TransactionCompleted,
					"balance_after": after,
				}).Error; err != nil {
					return err
				}
				if err := s.repo.ApplyBalanceChange(tx, transaction.UserID, transaction.Type, transaction.Amount); err != nil {
					return err
				}
			}
		case models.ResolutionRejected:
			if transaction.Status.CanTransitionTo(models.TransactionFailed) {
				if err := tx.Model(&transaction).Update("status", models.TransactionFailed).Error; err != nil {
					return err
				}
			}
		case models.ResolutionFalsePositive:
			alertStatus = models.AlertFalsePositive
			if transaction.Status.CanTransitionTo(models.TransactionCancelled) {
				if err := tx.Model(&transaction).Update("status", models.TransactionCancelled).Error; err != nil {
					return err
				}
			}
		}

		now := time.Now()
		if err := tx.Model(&alert).Updates(map[string]interface{}{
			"status":      alertStatus,
			"resolution":  resolution,
			"reviewed_by": reviewerID,
			"notes":       notes,
			"reviewed_at": now,
		}).Error; err != nil {
			return err
		}

		log.Printf("Fraud alert %d resolved as %s by %s", alertID, resolution, reviewerID)
		return nil
	})
}

// OpenAlerts returns unresolved fraud alerts, newest first.
func (s *FraudService) OpenAlerts(limit int) ([]models.FraudAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	var alerts []models.FraudAlert
	err := s.db.Where("status = ?", models.AlertPending).
		Order("created_at DESC").Limit(limit).Find(&alerts).Error
	return alerts, err
}

// computeScore runs the six additive rules against stored history.
func (s *FraudService) computeScore(user *models.User, amount decimal.Decimal, txType models.TransactionType, ip string, deviceFingerprint string) (int, []string, error) {
	score := 0
	var alerts []string
	now := time.Now()

	recentCount, err := s.repo.CompletedTransactionCountSince(user.ID, now.Add(-VelocityWindow))
	if err != nil {
		return 0, nil, fmt.Errorf("velocity query failed: %w", err)
	}
	if recentCount > VelocityLimit {
		score += VelocityScore
		alerts = append(alerts, "high transaction velocity")
	}

	creditSum, err := s.repo.CompletedCreditSumSince(user.ID, now.Add(-DailyCreditWindow))
	if err != nil {
		return 0, nil, fmt.Errorf("daily credit query failed: %w", err)
	}
	if creditSum.GreaterThan(DailyCreditCap) {
		score += DailyCreditScore
		alerts = append(alerts, "daily credit ceiling exceeded")
	}

	if amount.GreaterThan(LargeTransactionCap) {
		score += LargeTransactionScore
		alerts = append(alerts, "large single transaction")
	}

	ipMatches, err := s.repo.DistinctUsersByIPSince(ip, user.ID, now.Add(-SharedIPWindow))
	if err != nil {
		return 0, nil, fmt.Errorf("shared IP query failed: %w", err)
	}
	if ipMatches > SharedIPLimit {
		score += SharedIPScore
		alerts = append(alerts, "IP shared across accounts")
	}

	fpMatches, err := s.repo.DistinctUsersByFingerprint(deviceFingerprint, user.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("fingerprint query failed: %w", err)
	}
	if fpMatches > SharedFingerprintLimit {
		score += SharedFingerprintScore
		alerts = append(alerts, "device shared across accounts")
	}

	if txType == models.TransactionDebit && amount.GreaterThan(user.Balance.Mul(LargeWithdrawalRatio)) {
		score += LargeWithdrawalScore
		alerts = append(alerts, "large withdrawal relative to balance")
	}

	return score, alerts, nil
}

// alertSeverity maps a fraud score to alert severity.
func alertSeverity(score int) models.Severity {
	if score > CriticalThreshold {
		return models.SeverityCritical
	}
	return models.SeverityHigh
}

// balanceAfter computes the post-commit balance for a transaction.
func balanceAfter(before decimal.Decimal, txType models.TransactionType, amount decimal.Decimal) decimal.Decimal {
	if txType == models.TransactionDebit {
		return before.Sub(amount)
	}
	return before.Add(amount)
}
