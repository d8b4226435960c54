// Package repository is the signal store adapter. It exposes the
// time-range and equality queries the scoring engines read from, plus the
// counter mutations they write.
//
// Contract: counters (violation counts, warning counts, wallet balances)
// must be mutated through the atomic increment methods here, never by
// read-modify-write on a loaded record. Concurrent requests for the same
// user otherwise lose updates.
package repository

import (
	"errors"
	"time"

	"trust-engine/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// GetUser retrieves a user by ID.
func (r *SignalRepository) GetUser(userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// PostsSince returns a user's posts created at or after the cutoff.
func (r *SignalRepository) PostsSince(userID uint, since time.Time) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at ASC").Find(&posts).Error
	return posts, err
}

// PostCountSince counts a user's posts in the trailing window.
func (r *SignalRepository) PostCountSince(userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Post{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// OldestPostSince returns the oldest post in the trailing window, or nil.
func (r *SignalRepository) OldestPostSince(userID uint, since time.Time) (*models.Post, error) {
	var post models.Post
	err := r.db.Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at ASC").First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// MessageCountSince counts a user's chat messages in the trailing window.
func (r *SignalRepository) MessageCountSince(userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.ChatMessage{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// RatingsSince returns marketplace ratings received by a seller in the
// trailing window.
func (r *SignalRepository) RatingsSince(sellerID uint, since time.Time) ([]models.MarketplaceRating, error) {
	var ratings []models.MarketplaceRating
	err := r.db.Where("seller_id = ? AND created_at >= ?", sellerID, since).
		Find(&ratings).Error
	return ratings, err
}

// ModerationLogsSince returns a user's moderation logs in the trailing
// window. Logs exist only for non-allow decisions.
func (r *SignalRepository) ModerationLogsSince(userID uint, since time.Time) ([]models.ModerationLog, error) {
	var logs []models.ModerationLog
	err := r.db.Where("user_id = ? AND created_at >= ?", userID, since).
		Find(&logs).Error
	return logs, err
}

// ViolationCountSince counts a user's non-warn moderation logs in the
// trailing window. This is the prior-violation count the moderation
// action matrix keys on.
func (r *SignalRepository) ViolationCountSince(userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.ModerationLog{}).
		Where("user_id = ? AND created_at >= ? AND action != ?", userID, since, models.ActionWarn).
		Count(&count).Error
	return count, err
}

// CompletedTransactionCountSince counts a user's completed transactions in
// the trailing window (velocity signal).
func (r *SignalRepository) CompletedTransactionCountSince(userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.WalletTransaction{}).
		Where("user_id = ? AND status = ? AND created_at >= ?",
			userID, models.TransactionCompleted, since).
		Count(&count).Error
	return count, err
}

// CompletedCreditSumSince sums a user's completed credits in the trailing
// window (daily ceiling signal).
func (r *SignalRepository) CompletedCreditSumSince(userID uint, since time.Time) (decimal.Decimal, error) {
	var transactions []models.WalletTransaction
	err := r.db.Where("user_id = ? AND type = ? AND status = ? AND created_at >= ?",
		userID, models.TransactionCredit, models.TransactionCompleted, since).
		Find(&transactions).Error
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, tx := range transactions {
		sum = sum.Add(tx.Amount)
	}
	return sum, nil
}

// DistinctUsersByIPSince counts distinct other users transacting from the
// same IP in the trailing window.
func (r *SignalRepository) DistinctUsersByIPSince(ip string, excludeUserID uint, since time.Time) (int64, error) {
	if ip == "" {
		return 0, nil
	}
	var count int64
	err := r.db.Model(&models.WalletTransaction{}).
		Where("ip_address = ? AND user_id != ? AND created_at >= ?", ip, excludeUserID, since).
		Distinct("user_id").
		Count(&count).Error
	return count, err
}

// DistinctUsersByFingerprint counts distinct other users sharing a device
// fingerprint. Fingerprints are low-entropy by design; matches are soft
// signal only.
func (r *SignalRepository) DistinctUsersByFingerprint(fp string, excludeUserID uint) (int64, error) {
	if fp == "" {
		return 0, nil
	}
	var count int64
	err := r.db.Model(&models.WalletTransaction{}).
		Where("device_fingerprint = ? AND user_id != ?", fp, excludeUserID).
		Distinct("user_id").
		Count(&count).Error
	return count, err
}

// IncrementViolationCount atomically adjusts a user's violation counter.
// The floor at zero handles appeal-approval decrements racing each other.
func (r *SignalRepository) IncrementViolationCount(tx *gorm.DB, userID uint, delta int) error {
	if tx == nil {
		tx = r.db
	}
	if delta < 0 {
		return tx.Model(&models.User{}).Where("id = ? AND violation_count > 0", userID).
			UpdateColumn("violation_count", gorm.Expr("violation_count + ?", delta)).Error
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("violation_count", gorm.Expr("violation_count + ?", delta)).Error
}

// IncrementWarningCount atomically adjusts a user's warning counter.
func (r *SignalRepository) IncrementWarningCount(tx *gorm.DB, userID uint, delta int) error {
	if tx == nil {
		tx = r.db
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("warning_count", gorm.Expr("warning_count + ?", delta)).Error
}

// ApplyBalanceChange atomically mutates a user's wallet balance. Credits
// add, debits subtract.
func (r *SignalRepository) ApplyBalanceChange(tx *gorm.DB, userID uint, txType models.TransactionType, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	if txType == models.TransactionDebit {
		amount = amount.Neg()
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error
}
