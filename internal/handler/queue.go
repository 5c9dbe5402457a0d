package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moderation-service/internal/middleware"
	"moderation-service/internal/models"
	"moderation-service/internal/service"
	"moderation-service/internal/sla"
)

type QueueHandler interface {
	SubmitItem(c *gin.Context)
	ResubmitItem(c *gin.Context)
	GetItem(c *gin.Context)
	ClaimItem(c *gin.Context)
	ReleaseItem(c *gin.Context)
	DecideItem(c *gin.Context)
	BulkApprove(c *gin.Context)
	NextItem(c *gin.Context)
	QueueStats(c *gin.Context)
	ContentHistory(c *gin.Context)
}

type queueHandler struct {
	queue      *service.QueueService
	assignment *service.AssignmentService
	workflow   *service.WorkflowService
	logger     *zap.Logger
}

func NewQueueHandler(
	queue *service.QueueService,
	assignment *service.AssignmentService,
	workflow *service.WorkflowService,
	logger *zap.Logger,
) QueueHandler {
	return &queueHandler{
		queue:      queue,
		assignment: assignment,
		workflow:   workflow,
		logger:     logger,
	}
}

type SubmitRequest struct {
	ContentType string          `json:"content_type" binding:"required"`
	ContentID   int64           `json:"content_id" binding:"required"`
	Priority    string          `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	SLAHours    int             `json:"sla_hours" binding:"omitempty,min=1"`
	Metadata    models.Metadata `json:"metadata"`
}

type ResubmitRequest struct {
	ContentType string `json:"content_type" binding:"required"`
	ContentID   int64  `json:"content_id" binding:"required"`
}

type DecisionRequest struct {
	Decision    string             `json:"decision" binding:"required"`
	Notes       string             `json:"notes"`
	Suggestions []string           `json:"suggestions"`
	Scores      map[string]float64 `json:"scores"`
}

type BulkApproveRequest struct {
	ItemIDs []string `json:"item_ids" binding:"required,min=1,dive,required"`
	Notes   string   `json:"notes"`
}

// ItemResponse is a queue item with its SLA standing at response time.
type ItemResponse struct {
	*models.QueueItem
	SLAStatus sla.Status `json:"sla_status"`
}

func (h *queueHandler) itemResponse(item *models.QueueItem) ItemResponse {
	return ItemResponse{QueueItem: item, SLAStatus: h.queue.SLAStatus(item)}
}

func (h *queueHandler) SubmitItem(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	item, err := h.queue.Submit(c.Request.Context(), service.SubmitInput{
		Ref:           models.ContentRef{Type: req.ContentType, ID: req.ContentID},
		SubmittedBy:   claims.UserID,
		Priority:      models.Priority(req.Priority),
		SLAHours:      req.SLAHours,
		Metadata:      req.Metadata,
		AllowedOrgIDs: orgScope(claims),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, h.itemResponse(item))
}

func (h *queueHandler) ResubmitItem(c *gin.Context) {
	var req ResubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	ref := models.ContentRef{Type: req.ContentType, ID: req.ContentID}
	item, err := h.queue.Resubmit(c.Request.Context(), ref, claims.UserID, orgScope(claims))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, h.itemResponse(item))
}

func (h *queueHandler) GetItem(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	item, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err == nil && !canSeeOrg(claims, item.OrgID) {
		err = service.ErrItemNotFound
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, h.itemResponse(item))
}

func (h *queueHandler) ClaimItem(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	item, err := h.queue.Claim(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, h.itemResponse(item))
}

func (h *queueHandler) ReleaseItem(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	item, err := h.queue.Release(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, h.itemResponse(item))
}

func (h *queueHandler) DecideItem(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	result, err := h.workflow.ProcessDecision(c.Request.Context(), service.DecisionInput{
		ItemID:      c.Param("id"),
		ReviewerID:  claims.UserID,
		Decision:    models.Decision(req.Decision),
		Notes:       req.Notes,
		Suggestions: req.Suggestions,
		Scores:      models.Scores(req.Scores),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if result == nil {
		// escalate and skip route the item without recording a result
		item, err := h.queue.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": h.itemResponse(item)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *queueHandler) BulkApprove(c *gin.Context) {
	var req BulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	results, err := h.workflow.ProcessBulkApproval(c.Request.Context(), req.ItemIDs, claims.UserID, req.Notes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "succeeded": succeeded, "failed": len(results) - succeeded})
}

func (h *queueHandler) NextItem(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	item, err := h.assignment.NextItemForReviewer(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if item == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, h.itemResponse(item))
}

func (h *queueHandler) QueueStats(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	orgIDs, ok := requestedOrgs(c, claims)
	if !ok {
		return
	}

	stats, err := h.assignment.GetQueueStats(c.Request.Context(), orgIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *queueHandler) ContentHistory(c *gin.Context) {
	contentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content ID"})
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	ref := models.ContentRef{Type: c.Param("type"), ID: contentID}
	results, err := h.queue.History(c.Request.Context(), ref)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	visible := make([]*models.ModerationResult, 0, len(results))
	for _, r := range results {
		if canSeeOrg(claims, r.OrgID) {
			visible = append(visible, r)
		}
	}
	c.JSON(http.StatusOK, gin.H{"content_type": ref.Type, "content_id": ref.ID, "results": visible})
}

// orgScope limits non-admin callers to the organizations in their token.
func orgScope(claims *models.Claims) []int64 {
	if claims.Role == models.RoleAdmin {
		return nil
	}
	if claims.OrgIDs == nil {
		return []int64{}
	}
	return claims.OrgIDs
}

func canSeeOrg(claims *models.Claims, orgID int64) bool {
	return claims.Role == models.RoleAdmin || claims.HasOrg(orgID)
}

// requestedOrgs reads repeated org_id query parameters, defaulting to every
// organization in the token. It writes the error response itself.
func requestedOrgs(c *gin.Context, claims *models.Claims) ([]int64, bool) {
	raw := c.QueryArray("org_id")
	if len(raw) == 0 {
		return claims.OrgIDs, true
	}

	orgIDs := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid org_id"})
			return nil, false
		}
		if !canSeeOrg(claims, id) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Organization not accessible", "code": "permission_denied"})
			return nil, false
		}
		orgIDs = append(orgIDs, id)
	}
	return orgIDs, true
}
