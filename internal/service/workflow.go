package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/content"
	"moderation-service/internal/models"
	"moderation-service/internal/notifier"
)

// DecisionInput is a reviewer's verdict on an item they hold.
type DecisionInput struct {
	ItemID      string
	ReviewerID  int64
	Decision    models.Decision
	Notes       string
	Suggestions []string
	Scores      models.Scores
}

// BulkResult is the outcome of one item in a bulk approval.
type BulkResult struct {
	ItemID string                   `json:"item_id"`
	Result *models.ModerationResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
	Err    error                    `json:"-"`
}

// WorkflowService applies reviewer decisions.
type WorkflowService struct {
	*engine
}

func NewWorkflowService(d Deps) *WorkflowService {
	return &WorkflowService{engine: newEngine(d)}
}

// ProcessDecision applies a decision. approve, reject and request_changes
// complete the item and return the recorded result; escalate and skip route
// the item and return nil.
func (s *WorkflowService) ProcessDecision(ctx context.Context, in DecisionInput) (*models.ModerationResult, error) {
	if err := s.authorize(ctx, in.ReviewerID); err != nil {
		return nil, err
	}
	if !in.Decision.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, in.Decision)
	}

	var (
		result *models.ModerationResult
		owner  *content.Content
	)
	err := s.inTx(ctx, "decision", func(tx *sqlx.Tx) error {
		item, err := s.getItem(ctx, tx, in.ItemID)
		if err != nil {
			return err
		}
		if !item.IsAssignedTo(in.ReviewerID) {
			return ErrNotAssignedToReviewer
		}
		if in.Decision != models.DecisionSkip && item.RequiresNote() && strings.TrimSpace(in.Notes) == "" {
			return ErrNotesRequired
		}

		now := s.now()
		switch in.Decision {
		case models.DecisionEscalate:
			ok, err := s.escalateInTx(ctx, tx, item, in.Notes, in.ReviewerID, now)
			if err != nil {
				return err
			}
			if !ok {
				return s.assignmentFailure(ctx, tx, item.ID, in.ReviewerID, "escalate")
			}
			return nil
		case models.DecisionSkip:
			return s.skipInTx(ctx, tx, item.ID, in.ReviewerID, now)
		}

		result, owner, err = s.completeInTx(ctx, tx, item, in, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Decision processed",
		zap.String("item_id", in.ItemID),
		zap.Int64("reviewer_id", in.ReviewerID),
		zap.String("decision", string(in.Decision)),
	)
	if result != nil {
		s.notifyOwner(ctx, owner, result)
	}
	return result, nil
}

// ProcessBulkApproval approves each item in its own transaction. Items that
// are pending or escalated are claimed for the reviewer first. A failure is
// reported on that item only.
func (s *WorkflowService) ProcessBulkApproval(ctx context.Context, itemIDs []string, reviewerID int64, notes string) ([]BulkResult, error) {
	if err := s.authorize(ctx, reviewerID); err != nil {
		return nil, err
	}

	results := make([]BulkResult, 0, len(itemIDs))
	for _, id := range itemIDs {
		res, owner, err := s.approveOne(ctx, id, reviewerID, notes)
		entry := BulkResult{ItemID: id, Result: res, Err: err}
		if err != nil {
			entry.Error = err.Error()
			s.logger.Warn("Bulk approval item failed", zap.String("item_id", id), zap.Error(err))
		} else {
			s.notifyOwner(ctx, owner, res)
		}
		results = append(results, entry)
	}

	s.logger.Info("Bulk approval processed", zap.Int64("reviewer_id", reviewerID), zap.Int("items", len(itemIDs)))
	return results, nil
}

func (s *WorkflowService) approveOne(ctx context.Context, id string, reviewerID int64, notes string) (*models.ModerationResult, *content.Content, error) {
	var (
		result *models.ModerationResult
		owner  *content.Content
	)
	err := s.inTx(ctx, "bulk approve", func(tx *sqlx.Tx) error {
		item, err := s.getItem(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.now()
		if item.Status == models.QueueStatusPending || item.Status == models.QueueStatusEscalated {
			if err := s.claimInTx(ctx, tx, item, reviewerID, now); err != nil {
				return err
			}
			if item, err = s.getItem(ctx, tx, id); err != nil {
				return err
			}
		}
		if !item.IsAssignedTo(reviewerID) {
			if item.Status == models.QueueStatusCompleted {
				return &TransitionError{ItemID: id, Current: item.Status, Attempted: "approve"}
			}
			return ErrNotAssignedToReviewer
		}
		if item.RequiresNote() && strings.TrimSpace(notes) == "" {
			return ErrNotesRequired
		}

		result, owner, err = s.completeInTx(ctx, tx, item, DecisionInput{
			ItemID:     id,
			ReviewerID: reviewerID,
			Decision:   models.DecisionApprove,
			Notes:      notes,
		}, now)
		return err
	})
	return result, owner, err
}

// completeInTx records the result, completes the item, applies the content
// outcome and frees the reviewer, all inside tx.
func (e *engine) completeInTx(ctx context.Context, tx *sqlx.Tx, item *models.QueueItem, in DecisionInput, now time.Time) (*models.ModerationResult, *content.Content, error) {
	status, ok := in.Decision.ResultStatus()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidDecision, in.Decision)
	}

	c, err := e.loadContent(ctx, tx, item.ContentRef)
	if err != nil {
		return nil, nil, err
	}

	ok, err = e.store.Items.Complete(ctx, tx, item.ID, in.ReviewerID, in.Decision, noteLine(now, string(in.Decision), in.ReviewerID, in.Notes), now)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, e.assignmentFailure(ctx, tx, item.ID, in.ReviewerID, string(in.Decision))
	}

	result := &models.ModerationResult{
		ID:          uuid.NewString(),
		OrgID:       item.OrgID,
		QueueItemID: item.ID,
		ContentRef:  item.ContentRef,
		Status:      status,
		ReviewerID:  in.ReviewerID,
		Feedback:    in.Notes,
		Suggestions: models.StringList{},
		Scores:      in.Scores,
		CreatedAt:   now,
	}
	if status == models.ResultNeedsRevision && len(in.Suggestions) > 0 {
		result.Suggestions = models.StringList(in.Suggestions)
	}

	if err := e.store.Results.Create(ctx, tx, result); err != nil {
		return nil, nil, err
	}
	if err := e.content.ApplyOutcome(ctx, tx, c, result); err != nil {
		return nil, nil, err
	}
	if err := e.store.Team.DecrementLoad(ctx, tx, in.ReviewerID, now); err != nil {
		return nil, nil, err
	}
	return result, c, nil
}

func (e *engine) notifyOwner(ctx context.Context, c *content.Content, result *models.ModerationResult) {
	if c == nil || c.OwnerID == 0 {
		return
	}
	e.notifier.Notify(ctx, c.OwnerID, notifier.EventDecisionRecorded, notifier.Payload{
		"item_id":      result.QueueItemID,
		"content_type": result.Type,
		"content_id":   result.ContentRef.ID,
		"title":        c.Title,
		"status":       string(result.Status),
		"reviewer_id":  result.ReviewerID,
		"feedback":     result.Feedback,
	})
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
