package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trust-engine/internal/auth"
	"trust-engine/internal/services"
)

// ModerationHandler exposes the moderation engine's entry points.
type ModerationHandler struct {
	moderationService *services.ModerationService
}

// NewModerationHandler creates a new ModerationHandler
func NewModerationHandler(moderationService *services.ModerationService) *ModerationHandler {
	return &ModerationHandler{
		moderationService: moderationService,
	}
}

// CheckRequest is the payload for a moderation check
type CheckRequest struct {
	UserID      uint   `json:"user_id" binding:"required"`
	Content     string `json:"content" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	ContentID   *uint  `json:"content_id"`
}

// Check classifies one piece of text and returns the enforcement decision
func (h *ModerationHandler) Check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.moderationService.ModerateContent(c.Request.Context(), req.UserID, req.Content, req.ContentType, req.ContentID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidContentType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Moderation check failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// AppealRequest is the payload for a user appeal
type AppealRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Appeal submits an appeal against a moderation log
func (h *ModerationHandler) Appeal(c *gin.Context) {
	logID, ok := parseLogID(c)
	if !ok {
		return
	}

	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req AppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := h.moderationService.SubmitAppeal(logID, userID, req.Reason); err != nil {
		switch {
		case errors.Is(err, services.ErrLogNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Moderation log not found"})
		case errors.Is(err, services.ErrNotLogOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "Appeal must come from the affected user"})
		default:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Appeal submitted"})
}

// ReviewRequest is the payload for an appeal review
type ReviewRequest struct {
	Approved bool `json:"approved"`
}

// Review resolves an appealed or pending moderation log
func (h *ModerationHandler) Review(c *gin.Context) {
	logID, ok := parseLogID(c)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	reviewer, _ := auth.GetUsername(c)

	if err := h.moderationService.ReviewAppeal(logID, req.Approved, reviewer); err != nil {
		if errors.Is(err, services.ErrLogNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Moderation log not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Review recorded"})
}

// Pending lists moderation logs awaiting review
func (h *ModerationHandler) Pending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.moderationService.PendingLogs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load pending logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// parseLogID reads the :id path parameter.
func parseLogID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log ID"})
		return 0, false
	}
	return uint(id), true
}
