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

const teamSettingColumns = `user_id, org_id, max_concurrent_items, current_load, is_available,
	content_specializations, updated_at`

// TeamSettingRepository stores reviewer capacity. Load counters only move
// through the guarded increment/decrement statements, inside the same
// transaction as the queue transition that changes them.
type TeamSettingRepository interface {
	Get(ctx context.Context, q Querier, userID int64) (*models.TeamSetting, error)
	Upsert(ctx context.Context, q Querier, setting *models.TeamSetting) (bool, error)
	SetAvailability(ctx context.Context, q Querier, userID int64, available bool, at time.Time) (bool, error)
	IncrementLoad(ctx context.Context, q Querier, userID int64, at time.Time) (bool, error)
	DecrementLoad(ctx context.Context, q Querier, userID int64, at time.Time) error
	RecomputeLoad(ctx context.Context, q Querier, userID int64, at time.Time) error
}

type teamSettingRepository struct {
	logger *zap.Logger
}

// NewTeamSettingRepository creates a new team setting repository
func NewTeamSettingRepository(logger *zap.Logger) TeamSettingRepository {
	return &teamSettingRepository{logger: logger}
}

func (r *teamSettingRepository) Get(ctx context.Context, q Querier, userID int64) (*models.TeamSetting, error) {
	var setting models.TeamSetting
	query := `SELECT ` + teamSettingColumns + ` FROM moderation_team_settings WHERE user_id = ?`

	err := sqlx.GetContext(ctx, q, &setting, q.Rebind(query), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get team setting", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	return &setting, nil
}

// Upsert refuses to leave an available reviewer above the new limit and
// reports false in that case.
func (r *teamSettingRepository) Upsert(ctx context.Context, q Querier, setting *models.TeamSetting) (bool, error) {
	query := `
		INSERT INTO moderation_team_settings (user_id, org_id, max_concurrent_items, current_load, is_available, content_specializations, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			org_id = excluded.org_id,
			max_concurrent_items = excluded.max_concurrent_items,
			is_available = excluded.is_available,
			content_specializations = excluded.content_specializations,
			updated_at = excluded.updated_at
		WHERE moderation_team_settings.current_load <= excluded.max_concurrent_items
			OR excluded.is_available = ?
	`

	result, err := q.ExecContext(ctx, q.Rebind(query),
		setting.UserID,
		setting.OrgID,
		setting.MaxConcurrentItems,
		setting.IsAvailable,
		setting.ContentSpecializations,
		setting.UpdatedAt.UTC(),
		false,
	)
	if err != nil {
		r.logger.Error("Failed to upsert team setting", zap.Int64("user_id", setting.UserID), zap.Error(err))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *teamSettingRepository) SetAvailability(ctx context.Context, q Querier, userID int64, available bool, at time.Time) (bool, error) {
	query := `
		UPDATE moderation_team_settings
		SET is_available = ?, updated_at = ?
		WHERE user_id = ?
	`
	if available {
		query += ` AND current_load <= max_concurrent_items`
	}

	result, err := q.ExecContext(ctx, q.Rebind(query), available, at.UTC(), userID)
	if err != nil {
		r.logger.Error("Failed to update availability", zap.Int64("user_id", userID), zap.Error(err))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

func (r *teamSettingRepository) IncrementLoad(ctx context.Context, q Querier, userID int64, at time.Time) (bool, error) {
	query := `
		UPDATE moderation_team_settings
		SET current_load = current_load + 1, updated_at = ?
		WHERE user_id = ? AND is_available = ? AND current_load < max_concurrent_items
	`

	result, err := q.ExecContext(ctx, q.Rebind(query), at.UTC(), userID, true)
	if err != nil {
		r.logger.Error("Failed to increment reviewer load", zap.Int64("user_id", userID), zap.Error(err))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

func (r *teamSettingRepository) DecrementLoad(ctx context.Context, q Querier, userID int64, at time.Time) error {
	query := `
		UPDATE moderation_team_settings
		SET current_load = current_load - 1, updated_at = ?
		WHERE user_id = ? AND current_load > 0
	`

	if _, err := q.ExecContext(ctx, q.Rebind(query), at.UTC(), userID); err != nil {
		r.logger.Error("Failed to decrement reviewer load", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// RecomputeLoad resets the cached load from the items actually in review.
func (r *teamSettingRepository) RecomputeLoad(ctx context.Context, q Querier, userID int64, at time.Time) error {
	query := `
		UPDATE moderation_team_settings
		SET current_load = (SELECT COUNT(*) FROM queue_items WHERE status = 'in_review' AND assigned_to = ?),
			updated_at = ?
		WHERE user_id = ?
	`

	if _, err := q.ExecContext(ctx, q.Rebind(query), userID, at.UTC(), userID); err != nil {
		r.logger.Error("Failed to recompute reviewer load", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}
