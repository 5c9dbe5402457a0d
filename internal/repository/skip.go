package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SkipRepository tracks items a reviewer skipped. A marker hides the item from
// that reviewer for a fixed number of candidate pulls.
type SkipRepository interface {
	Mark(ctx context.Context, q Querier, itemID string, reviewerID int64, pulls int, at time.Time) error
	ExcludedItems(ctx context.Context, q Querier, reviewerID int64) ([]string, error)
	ConsumePull(ctx context.Context, q Querier, reviewerID int64) error
}

type skipRepository struct {
	logger *zap.Logger
}

// NewSkipRepository creates a new skip marker repository
func NewSkipRepository(logger *zap.Logger) SkipRepository {
	return &skipRepository{logger: logger}
}

func (r *skipRepository) Mark(ctx context.Context, q Querier, itemID string, reviewerID int64, pulls int, at time.Time) error {
	query := `
		INSERT INTO queue_item_skips (item_id, reviewer_id, remaining_pulls, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (item_id, reviewer_id) DO UPDATE SET
			remaining_pulls = excluded.remaining_pulls,
			created_at = excluded.created_at
	`

	if _, err := q.ExecContext(ctx, q.Rebind(query), itemID, reviewerID, pulls, at.UTC()); err != nil {
		r.logger.Error("Failed to mark skipped item", zap.String("item_id", itemID), zap.Int64("reviewer_id", reviewerID), zap.Error(err))
		return err
	}
	return nil
}

func (r *skipRepository) ExcludedItems(ctx context.Context, q Querier, reviewerID int64) ([]string, error) {
	var ids []string
	query := `SELECT item_id FROM queue_item_skips WHERE reviewer_id = ? AND remaining_pulls > 0`

	if err := sqlx.SelectContext(ctx, q, &ids, q.Rebind(query), reviewerID); err != nil {
		r.logger.Error("Failed to list skipped items", zap.Int64("reviewer_id", reviewerID), zap.Error(err))
		return nil, err
	}
	return ids, nil
}

func (r *skipRepository) ConsumePull(ctx context.Context, q Querier, reviewerID int64) error {
	if _, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE queue_item_skips SET remaining_pulls = remaining_pulls - 1 WHERE reviewer_id = ?
	`), reviewerID); err != nil {
		r.logger.Error("Failed to consume skip pull", zap.Int64("reviewer_id", reviewerID), zap.Error(err))
		return err
	}

	if _, err := q.ExecContext(ctx, q.Rebind(`
		DELETE FROM queue_item_skips WHERE reviewer_id = ? AND remaining_pulls <= 0
	`), reviewerID); err != nil {
		r.logger.Error("Failed to prune skip markers", zap.Int64("reviewer_id", reviewerID), zap.Error(err))
		return err
	}
	return nil
}
