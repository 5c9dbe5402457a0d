package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moderation-service/internal/middleware"
	"moderation-service/internal/service"
)

type ModeratorHandler interface {
	MyStats(c *gin.Context)
	OrgStats(c *gin.Context)
	SetAvailability(c *gin.Context)
}

type moderatorHandler struct {
	queue  *service.QueueService
	stats  *service.StatsService
	logger *zap.Logger
}

func NewModeratorHandler(queue *service.QueueService, stats *service.StatsService, logger *zap.Logger) ModeratorHandler {
	return &moderatorHandler{queue: queue, stats: stats, logger: logger}
}

type AvailabilityRequest struct {
	IsAvailable *bool `json:"is_available" binding:"required"`
}

func (h *moderatorHandler) MyStats(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	stats, err := h.stats.UserStats(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *moderatorHandler) OrgStats(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	orgIDs, ok := requestedOrgs(c, claims)
	if !ok {
		return
	}

	stats, err := h.stats.OrgStats(c.Request.Context(), orgIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *moderatorHandler) SetAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	setting, err := h.queue.SetAvailability(c.Request.Context(), claims.UserID, *req.IsAvailable)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, setting)
}
