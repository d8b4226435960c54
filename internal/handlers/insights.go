package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"trust-engine/internal/models"
)

// InsightsHandler aggregates engine logs for the reviewer dashboard. It
// only reads; all decisions live in the engines.
type InsightsHandler struct {
	db *gorm.DB
}

// NewInsightsHandler creates a new InsightsHandler
func NewInsightsHandler(db *gorm.DB) *InsightsHandler {
	return &InsightsHandler{db: db}
}

// Stats returns dashboard counters for the review surface
func (h *InsightsHandler) Stats(c *gin.Context) {
	var totalUsers, bannedUsers, pendingLogs, openAlerts, heldTransactions int64

	h.db.Model(&models.User{}).Count(&totalUsers)
	h.db.Model(&models.User{}).Where("banned = ?", true).Count(&bannedUsers)
	h.db.Model(&models.ModerationLog{}).
		Where("status IN ?", []models.ModerationStatus{
			models.ModerationStatusPending,
			models.ModerationStatusAppealed,
		}).Count(&pendingLogs)
	h.db.Model(&models.FraudAlert{}).Where("status = ?", models.AlertPending).Count(&openAlerts)
	h.db.Model(&models.WalletTransaction{}).
		Where("status = ?", models.TransactionPending).Count(&heldTransactions)

	c.JSON(http.StatusOK, gin.H{
		"total_users":       totalUsers,
		"banned_users":      bannedUsers,
		"pending_logs":      pendingLogs,
		"open_alerts":       openAlerts,
		"held_transactions": heldTransactions,
	})
}
