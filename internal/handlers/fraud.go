package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"trust-engine/internal/auth"
	"trust-engine/internal/fingerprint"
	"trust-engine/internal/services"
)

// FraudHandler exposes the fraud risk engine's entry points.
type FraudHandler struct {
	fraudService *services.FraudService
}

// NewFraudHandler creates a new FraudHandler
func NewFraudHandler(fraudService *services.FraudService) *FraudHandler {
	return &FraudHandler{
		fraudService: fraudService,
	}
}

// TransactionRequest is the payload for scoring a proposed transaction.
// RawFingerprint carries client/display characteristics and is normalized
// server-side into the stored fingerprint token.
type TransactionRequest struct {
	UserID         uint    `json:"user_id" binding:"required"`
	Amount         float64 `json:"amount" binding:"required,gt=0"`
	Type           string  `json:"type" binding:"required"`
	IPAddress      string  `json:"ip_address"`
	RawFingerprint string  `json:"device_fingerprint"`
}

// ScoreTransaction scores and either commits or holds a transaction
func (h *FraudHandler) ScoreTransaction(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	ip := req.IPAddress
	if ip == "" {
		ip = c.ClientIP()
	}

	result, err := h.fraudService.ScoreTransaction(
		req.UserID,
		decimal.NewFromFloat(req.Amount),
		req.Type,
		ip,
		fingerprint.Derive(req.RawFingerprint),
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAmount),
			errors.Is(err, services.ErrInvalidTransactionType),
			errors.Is(err, services.ErrInsufficientBalance):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Transaction scoring failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// ResolveRequest is the payload for resolving a fraud alert
type ResolveRequest struct {
	Resolution string `json:"resolution" binding:"required"`
	Notes      string `json:"notes"`
}

// ResolveAlert applies a reviewer verdict to a held transaction
func (h *FraudHandler) ResolveAlert(c *gin.Context) {
	alertID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	reviewer, _ := auth.GetUsername(c)

	if err := h.fraudService.ResolveAlert(uint(alertID), req.Resolution, reviewer, req.Notes); err != nil {
		switch {
		case errors.Is(err, services.ErrAlertNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Fraud alert not found"})
		case errors.Is(err, services.ErrInvalidResolution):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve alert"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert resolved"})
}

// OpenAlerts lists unresolved fraud alerts
func (h *FraudHandler) OpenAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	alerts, err := h.fraudService.OpenAlerts(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}
