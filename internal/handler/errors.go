package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moderation-service/internal/service"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{service.ErrInvalidDecision, http.StatusBadRequest, "invalid_decision"},
	{service.ErrUnknownContentType, http.StatusBadRequest, "unknown_content_type"},
	{service.ErrInvalidPriority, http.StatusBadRequest, "invalid_priority"},
	{service.ErrInvalidSLAHours, http.StatusBadRequest, "invalid_sla_hours"},
	{service.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{service.ErrNotAssignedToReviewer, http.StatusForbidden, "not_assigned_to_reviewer"},
	{service.ErrItemNotFound, http.StatusNotFound, "item_not_found"},
	{service.ErrContentNotFound, http.StatusNotFound, "content_not_found"},
	{service.ErrDuplicateSubmission, http.StatusConflict, "duplicate_submission"},
	{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{service.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{service.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
	{service.ErrNotesRequired, http.StatusUnprocessableEntity, "notes_required"},
}

// errorStatus maps a service error to its HTTP status and stable code.
func errorStatus(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "storage_error"
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal server error", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
