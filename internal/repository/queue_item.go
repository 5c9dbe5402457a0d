package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/models"
)

const queueItemColumns = `id, org_id, content_type, content_id, status, priority, assigned_to,
	submitted_by, submitted_at, started_at, sla_hours, sla_deadline, metadata, notes,
	outcome, completed_by, completed_at, version, updated_at`

// appendNote concatenates a line onto notes; it consumes two arguments, the
// entry and the entry prefixed with a newline.
const appendNote = `CASE WHEN notes = '' THEN CAST(? AS TEXT) ELSE notes || CAST(? AS TEXT) END`

// ActiveCounts is a snapshot of open work for a set of organizations.
type ActiveCounts struct {
	Pending   int
	InReview  int
	Escalated int
	Overdue   int
}

// DecisionTiming is the claim-to-completion window of a completed item.
type DecisionTiming struct {
	StartedAt   *time.Time `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// ClaimableFilter narrows the candidate set offered to a reviewer.
type ClaimableFilter struct {
	OrgID        int64
	ContentTypes []string
	ExcludeIDs   []string
}

// QueueItemRepository persists queue items. Every transition is a single
// conditional UPDATE; the bool result reports whether the expected prior state
// matched and the row changed.
type QueueItemRepository interface {
	Create(ctx context.Context, q Querier, item *models.QueueItem) error
	GetByID(ctx context.Context, q Querier, id string) (*models.QueueItem, error)
	GetActiveByContent(ctx context.Context, q Querier, ref models.ContentRef) (*models.QueueItem, error)
	ListByContent(ctx context.Context, q Querier, ref models.ContentRef) ([]*models.QueueItem, error)
	ListClaimable(ctx context.Context, q Querier, filter ClaimableFilter) ([]*models.QueueItem, error)
	ListOverduePending(ctx context.Context, q Querier, now time.Time, limit int) ([]*models.QueueItem, error)

	Claim(ctx context.Context, q Querier, id string, reviewerID int64, at time.Time) (bool, error)
	Release(ctx context.Context, q Querier, id string, reviewerID int64, at time.Time) (bool, error)
	Complete(ctx context.Context, q Querier, id string, reviewerID int64, outcome models.Decision, note string, at time.Time) (bool, error)
	Escalate(ctx context.Context, q Querier, item *models.QueueItem, note string, at time.Time) (bool, error)

	CountActive(ctx context.Context, q Querier, orgIDs []int64, now time.Time) (ActiveCounts, error)
	CountInReviewBy(ctx context.Context, q Querier, reviewerID int64) (int, error)
	CountCompleted(ctx context.Context, q Querier, scope Scope, since time.Time) (int, error)
	ListDecisionTimings(ctx context.Context, q Querier, scope Scope, since time.Time) ([]DecisionTiming, error)
}

type queueItemRepository struct {
	logger *zap.Logger
}

// NewQueueItemRepository creates a new queue item repository
func NewQueueItemRepository(logger *zap.Logger) QueueItemRepository {
	return &queueItemRepository{logger: logger}
}

func (r *queueItemRepository) Create(ctx context.Context, q Querier, item *models.QueueItem) error {
	query := `
		INSERT INTO queue_items (` + queueItemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if item.Version == 0 {
		item.Version = 1
	}
	if item.Metadata == nil {
		item.Metadata = models.Metadata{}
	}

	_, err := q.ExecContext(ctx, q.Rebind(query),
		item.ID,
		item.OrgID,
		item.Type,
		item.ContentRef.ID,
		item.Status,
		item.Priority,
		item.AssignedTo,
		item.SubmittedBy,
		item.SubmittedAt.UTC(),
		utcPtr(item.StartedAt),
		item.SLAHours,
		item.SLADeadline.UTC(),
		item.Metadata,
		item.Notes,
		item.Outcome,
		item.CompletedBy,
		utcPtr(item.CompletedAt),
		item.Version,
		item.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to create queue item", zap.String("item_id", item.ID), zap.Error(err))
		return err
	}

	return nil
}

func (r *queueItemRepository) GetByID(ctx context.Context, q Querier, id string) (*models.QueueItem, error) {
	var item models.QueueItem
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE id = ?`

	err := sqlx.GetContext(ctx, q, &item, q.Rebind(query), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get queue item by ID", zap.String("item_id", id), zap.Error(err))
		return nil, err
	}

	return &item, nil
}

func (r *queueItemRepository) GetActiveByContent(ctx context.Context, q Querier, ref models.ContentRef) (*models.QueueItem, error) {
	var item models.QueueItem
	query := `
		SELECT ` + queueItemColumns + `
		FROM queue_items
		WHERE content_type = ? AND content_id = ? AND status IN ('pending', 'in_review', 'escalated')
	`

	err := sqlx.GetContext(ctx, q, &item, q.Rebind(query), ref.Type, ref.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get active queue item", zap.String("content_type", ref.Type), zap.Int64("content_id", ref.ID), zap.Error(err))
		return nil, err
	}

	return &item, nil
}

func (r *queueItemRepository) ListByContent(ctx context.Context, q Querier, ref models.ContentRef) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	query := `
		SELECT ` + queueItemColumns + `
		FROM queue_items
		WHERE content_type = ? AND content_id = ?
		ORDER BY submitted_at ASC
	`

	if err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query), ref.Type, ref.ID); err != nil {
		r.logger.Error("Failed to list queue items for content", zap.String("content_type", ref.Type), zap.Int64("content_id", ref.ID), zap.Error(err))
		return nil, err
	}

	return items, nil
}

func (r *queueItemRepository) ListClaimable(ctx context.Context, q Querier, filter ClaimableFilter) ([]*models.QueueItem, error) {
	query := `
		SELECT ` + queueItemColumns + `
		FROM queue_items
		WHERE org_id = ? AND status IN ('pending', 'escalated')`
	args := []interface{}{filter.OrgID}

	if len(filter.ContentTypes) > 0 {
		query += ` AND content_type IN (?)`
		args = append(args, filter.ContentTypes)
	}
	if len(filter.ExcludeIDs) > 0 {
		query += ` AND id NOT IN (?)`
		args = append(args, filter.ExcludeIDs)
	}
	query += ` ORDER BY sla_deadline ASC, submitted_at ASC`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}

	var items []*models.QueueItem
	if err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to list claimable queue items", zap.Int64("org_id", filter.OrgID), zap.Error(err))
		return nil, err
	}

	return items, nil
}

func (r *queueItemRepository) ListOverduePending(ctx context.Context, q Querier, now time.Time, limit int) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	query := `
		SELECT ` + queueItemColumns + `
		FROM queue_items
		WHERE status = 'pending' AND sla_deadline < ?
		ORDER BY sla_deadline ASC
		LIMIT ?
	`

	if err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query), now.UTC(), limit); err != nil {
		r.logger.Error("Failed to list overdue queue items", zap.Error(err))
		return nil, err
	}

	return items, nil
}

func (r *queueItemRepository) Claim(ctx context.Context, q Querier, id string, reviewerID int64, at time.Time) (bool, error) {
	query := `
		UPDATE queue_items
		SET status = 'in_review', assigned_to = ?, started_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND status IN ('pending', 'escalated')
	`

	return r.exec(ctx, q, "claim", id, query, reviewerID, at.UTC(), at.UTC(), id)
}

func (r *queueItemRepository) Release(ctx context.Context, q Querier, id string, reviewerID int64, at time.Time) (bool, error) {
	query := `
		UPDATE queue_items
		SET status = 'pending', assigned_to = NULL, started_at = NULL, updated_at = ?, version = version + 1
		WHERE id = ? AND status = 'in_review' AND assigned_to = ?
	`

	return r.exec(ctx, q, "release", id, query, at.UTC(), id, reviewerID)
}

func (r *queueItemRepository) Complete(ctx context.Context, q Querier, id string, reviewerID int64, outcome models.Decision, note string, at time.Time) (bool, error) {
	query := `
		UPDATE queue_items
		SET status = 'completed', assigned_to = NULL, outcome = ?, completed_by = ?, completed_at = ?,
			notes = ` + appendNote + `, updated_at = ?, version = version + 1
		WHERE id = ? AND status = 'in_review' AND assigned_to = ?
	`

	return r.exec(ctx, q, "complete", id, query, string(outcome), reviewerID, at.UTC(), note, "\n"+note, at.UTC(), id, reviewerID)
}

// Escalate is keyed on the version the caller read, so the new metadata and
// the cleared assignment cannot overwrite a concurrent transition.
func (r *queueItemRepository) Escalate(ctx context.Context, q Querier, item *models.QueueItem, note string, at time.Time) (bool, error) {
	query := `
		UPDATE queue_items
		SET status = 'escalated', priority = 'urgent', assigned_to = NULL, started_at = NULL,
			metadata = ?, notes = ` + appendNote + `, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND status IN ('pending', 'in_review')
	`

	return r.exec(ctx, q, "escalate", item.ID, query, item.Metadata, note, "\n"+note, at.UTC(), item.ID, item.Version)
}

func (r *queueItemRepository) exec(ctx context.Context, q Querier, op, id, query string, args ...interface{}) (bool, error) {
	result, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to update queue item", zap.String("op", op), zap.String("item_id", id), zap.Error(err))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

func (r *queueItemRepository) CountActive(ctx context.Context, q Querier, orgIDs []int64, now time.Time) (ActiveCounts, error) {
	var counts ActiveCounts
	if len(orgIDs) == 0 {
		return counts, nil
	}

	query, args, err := sqlx.In(`
		SELECT status, COUNT(*) AS count
		FROM queue_items
		WHERE org_id IN (?) AND status IN ('pending', 'in_review', 'escalated')
		GROUP BY status
	`, orgIDs)
	if err != nil {
		return counts, err
	}

	var rows []struct {
		Status models.QueueStatus `db:"status"`
		Count  int                `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to count active queue items", zap.Int64s("org_ids", orgIDs), zap.Error(err))
		return counts, err
	}
	for _, row := range rows {
		switch row.Status {
		case models.QueueStatusPending:
			counts.Pending = row.Count
		case models.QueueStatusInReview:
			counts.InReview = row.Count
		case models.QueueStatusEscalated:
			counts.Escalated = row.Count
		}
	}

	query, args, err = sqlx.In(`
		SELECT COUNT(*)
		FROM queue_items
		WHERE org_id IN (?) AND status IN ('pending', 'in_review', 'escalated') AND sla_deadline < ?
	`, orgIDs, now.UTC())
	if err != nil {
		return counts, err
	}
	if err := sqlx.GetContext(ctx, q, &counts.Overdue, q.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to count overdue queue items", zap.Int64s("org_ids", orgIDs), zap.Error(err))
		return counts, err
	}

	return counts, nil
}

func (r *queueItemRepository) CountInReviewBy(ctx context.Context, q Querier, reviewerID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM queue_items WHERE status = 'in_review' AND assigned_to = ?`
	if err := sqlx.GetContext(ctx, q, &count, q.Rebind(query), reviewerID); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *queueItemRepository) CountCompleted(ctx context.Context, q Querier, scope Scope, since time.Time) (int, error) {
	if scope.empty() {
		return 0, nil
	}

	clause, args := scope.clause("org_id", "completed_by")
	query, args, err := sqlx.In(`
		SELECT COUNT(*)
		FROM queue_items
		WHERE status = 'completed' AND completed_at >= ? AND `+clause,
		append([]interface{}{since.UTC()}, args...)...)
	if err != nil {
		return 0, err
	}

	var count int
	if err := sqlx.GetContext(ctx, q, &count, q.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to count completed queue items", zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (r *queueItemRepository) ListDecisionTimings(ctx context.Context, q Querier, scope Scope, since time.Time) ([]DecisionTiming, error) {
	if scope.empty() {
		return nil, nil
	}

	clause, args := scope.clause("org_id", "completed_by")
	query, args, err := sqlx.In(`
		SELECT started_at, completed_at
		FROM queue_items
		WHERE status = 'completed' AND completed_at >= ? AND started_at IS NOT NULL AND `+clause,
		append([]interface{}{since.UTC()}, args...)...)
	if err != nil {
		return nil, err
	}

	var timings []DecisionTiming
	if err := sqlx.SelectContext(ctx, q, &timings, q.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to list decision timings", zap.Error(err))
		return nil, err
	}
	return timings, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
