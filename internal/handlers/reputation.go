package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trust-engine/internal/auth"
	"trust-engine/internal/services"
)

// ReputationHandler exposes the reputation engine's entry points.
type ReputationHandler struct {
	reputationService *services.ReputationService
}

// NewReputationHandler creates a new ReputationHandler
func NewReputationHandler(reputationService *services.ReputationService) *ReputationHandler {
	return &ReputationHandler{
		reputationService: reputationService,
	}
}

// GetReputation returns a user's reputation record
func (h *ReputationHandler) GetReputation(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	reputation, err := h.reputationService.GetReputation(userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load reputation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reputation": reputation})
}

// Recalculate recomputes a user's score from the 7-day window
func (h *ReputationHandler) Recalculate(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	score, err := h.reputationService.CalculateUserScore(userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to recalculate score"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"score": score})
}

// PostingAllowed checks cooldown and hourly rate limit for a user
func (h *ReputationHandler) PostingAllowed(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	check, err := h.reputationService.CheckPostingAllowed(userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check posting status"})
		return
	}

	c.JSON(http.StatusOK, check)
}

// OverrideRequest is the payload for a manual score override. Score is a
// pointer so an omitted field is rejected instead of reading as zero,
// which would silently impose the lowest-score restrictions.
type OverrideRequest struct {
	Score  *int   `json:"score" binding:"required,min=0,max=100"`
	Reason string `json:"reason" binding:"required"`
}

// Override replaces a user's computed score with a reviewer-supplied one
func (h *ReputationHandler) Override(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	reviewer, _ := auth.GetUsername(c)

	if err := h.reputationService.ManualOverride(userID, *req.Score, reviewer, req.Reason); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, services.ErrInvalidScore):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply override"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Override applied"})
}

// parseUserID reads the :userID path parameter.
func parseUserID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	return uint(id), true
}
