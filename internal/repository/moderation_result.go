package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/models"
)

const moderationResultColumns = `id, org_id, queue_item_id, content_type, content_id, status,
	reviewer_id, feedback, suggestions, scores, created_at`

// ModerationResultRepository is append-only: results are inserted and read,
// never updated or deleted.
type ModerationResultRepository interface {
	Create(ctx context.Context, q Querier, result *models.ModerationResult) error
	ListByContent(ctx context.Context, q Querier, ref models.ContentRef) ([]*models.ModerationResult, error)
	CountByStatus(ctx context.Context, q Querier, scope Scope, since time.Time) (map[models.ResultStatus]int, error)
}

type moderationResultRepository struct {
	logger *zap.Logger
}

// NewModerationResultRepository creates a new moderation result repository
func NewModerationResultRepository(logger *zap.Logger) ModerationResultRepository {
	return &moderationResultRepository{logger: logger}
}

func (r *moderationResultRepository) Create(ctx context.Context, q Querier, result *models.ModerationResult) error {
	query := `
		INSERT INTO moderation_results (` + moderationResultColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, q.Rebind(query),
		result.ID,
		result.OrgID,
		result.QueueItemID,
		result.Type,
		result.ContentRef.ID,
		result.Status,
		result.ReviewerID,
		result.Feedback,
		result.Suggestions,
		result.Scores,
		result.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create moderation result", zap.String("queue_item_id", result.QueueItemID), zap.Error(err))
		return err
	}

	return nil
}

func (r *moderationResultRepository) ListByContent(ctx context.Context, q Querier, ref models.ContentRef) ([]*models.ModerationResult, error) {
	var results []*models.ModerationResult
	query := `
		SELECT ` + moderationResultColumns + `
		FROM moderation_results
		WHERE content_type = ? AND content_id = ?
		ORDER BY created_at ASC
	`

	if err := sqlx.SelectContext(ctx, q, &results, q.Rebind(query), ref.Type, ref.ID); err != nil {
		r.logger.Error("Failed to list moderation results", zap.String("content_type", ref.Type), zap.Int64("content_id", ref.ID), zap.Error(err))
		return nil, err
	}

	return results, nil
}

func (r *moderationResultRepository) CountByStatus(ctx context.Context, q Querier, scope Scope, since time.Time) (map[models.ResultStatus]int, error) {
	counts := make(map[models.ResultStatus]int)
	if scope.empty() {
		return counts, nil
	}

	clause, args := scope.clause("org_id", "reviewer_id")
	query, args, err := sqlx.In(`
		SELECT status, COUNT(*) AS count
		FROM moderation_results
		WHERE created_at >= ? AND `+clause+`
		GROUP BY status`,
		append([]interface{}{since.UTC()}, args...)...)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status models.ResultStatus `db:"status"`
		Count  int                 `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to count moderation results", zap.Error(err))
		return nil, err
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}
