package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moderation-service/internal/middleware"
	"moderation-service/internal/models"
	"moderation-service/internal/service"
)

type AdminHandler interface {
	AssignItem(c *gin.Context)
	EscalateItem(c *gin.Context)
	GetTeamSetting(c *gin.Context)
	UpsertTeamSetting(c *gin.Context)
	RecomputeLoad(c *gin.Context)
}

type adminHandler struct {
	queue      *service.QueueService
	assignment *service.AssignmentService
	logger     *zap.Logger
}

func NewAdminHandler(queue *service.QueueService, assignment *service.AssignmentService, logger *zap.Logger) AdminHandler {
	return &adminHandler{queue: queue, assignment: assignment, logger: logger}
}

type AssignRequest struct {
	ReviewerID int64 `json:"reviewer_id" binding:"required"`
}

type EscalateRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *adminHandler) AssignItem(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	item, err := h.assignment.AssignToUser(c.Request.Context(), c.Param("id"), req.ReviewerID, claims.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ItemResponse{QueueItem: item, SLAStatus: h.queue.SLAStatus(item)})
}

func (h *adminHandler) EscalateItem(c *gin.Context) {
	var req EscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	item, err := h.queue.Escalate(c.Request.Context(), c.Param("id"), req.Reason, claims.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ItemResponse{QueueItem: item, SLAStatus: h.queue.SLAStatus(item)})
}

func (h *adminHandler) GetTeamSetting(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	setting, err := h.queue.TeamSetting(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, setting)
}

func (h *adminHandler) UpsertTeamSetting(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var input models.UpsertTeamSettingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	setting, err := h.queue.UpsertTeamSetting(c.Request.Context(), userID, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, setting)
}

func (h *adminHandler) RecomputeLoad(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	if err := h.queue.RecomputeLoad(c.Request.Context(), userID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	setting, err := h.queue.TeamSetting(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

func userIDParam(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	return userID, true
}
