package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"moderation-service/internal/models"
	"moderation-service/internal/service"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: %q", service.ErrInvalidDecision, "publish"), http.StatusBadRequest, "invalid_decision"},
		{service.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
		{service.ErrNotAssignedToReviewer, http.StatusForbidden, "not_assigned_to_reviewer"},
		{service.ErrItemNotFound, http.StatusNotFound, "item_not_found"},
		{service.ErrDuplicateSubmission, http.StatusConflict, "duplicate_submission"},
		{&service.TransitionError{ItemID: "x", Current: models.QueueStatusPending, Attempted: "release"}, http.StatusConflict, "invalid_transition"},
		{service.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
		{service.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
		{service.ErrNotesRequired, http.StatusUnprocessableEntity, "notes_required"},
		{&service.StorageError{Op: "claim", Err: errors.New("disk I/O error")}, http.StatusInternalServerError, "storage_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
