package content

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/models"
	"moderation-service/internal/repository"
)

const (
	TypeCourse       = "course"
	TypeContentBlock = "content_block"
)

// SQLRepository stores one content type in its own table. Content types differ
// only in where an approval lands: courses go live, blocks wait for their
// course to be published.
type SQLRepository struct {
	contentType    string
	table          string
	approvedStatus string
	logger         *zap.Logger
}

// NewCourseRepository creates the repository for courses.
func NewCourseRepository(logger *zap.Logger) *SQLRepository {
	return &SQLRepository{contentType: TypeCourse, table: "courses", approvedStatus: StatusPublished, logger: logger}
}

// NewContentBlockRepository creates the repository for content blocks.
func NewContentBlockRepository(logger *zap.Logger) *SQLRepository {
	return &SQLRepository{contentType: TypeContentBlock, table: "content_blocks", approvedStatus: StatusApproved, logger: logger}
}

// NewDefaultRegistry registers the built-in SQL-backed content types.
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	return NewRegistry(map[string]Repository{
		TypeCourse:       NewCourseRepository(logger),
		TypeContentBlock: NewContentBlockRepository(logger),
	})
}

type contentRow struct {
	ID      int64  `db:"id"`
	OrgID   int64  `db:"org_id"`
	OwnerID int64  `db:"owner_id"`
	Title   string `db:"title"`
	Status  string `db:"status"`
}

// Create inserts a draft and returns its id.
func (r *SQLRepository) Create(ctx context.Context, q repository.Querier, orgID, ownerID int64, title string, at time.Time) (int64, error) {
	query := `INSERT INTO ` + r.table + ` (org_id, owner_id, title, status, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id`

	var id int64
	if err := sqlx.GetContext(ctx, q, &id, q.Rebind(query), orgID, ownerID, title, StatusDraft, at.UTC()); err != nil {
		r.logger.Error("Failed to create content", zap.String("content_type", r.contentType), zap.Error(err))
		return 0, err
	}
	return id, nil
}

func (r *SQLRepository) Load(ctx context.Context, q repository.Querier, id int64) (*Content, error) {
	var row contentRow
	query := `SELECT id, org_id, owner_id, title, status FROM ` + r.table + ` WHERE id = ?`

	if err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to load content", zap.String("content_type", r.contentType), zap.Int64("content_id", id), zap.Error(err))
		return nil, err
	}

	return &Content{
		Ref:     models.ContentRef{Type: r.contentType, ID: row.ID},
		OrgID:   row.OrgID,
		OwnerID: row.OwnerID,
		Title:   row.Title,
		Status:  row.Status,
	}, nil
}

func (r *SQLRepository) MarkSubmitted(ctx context.Context, q repository.Querier, c *Content, at time.Time) error {
	return r.setStatus(ctx, q, c, StatusPendingReview, at)
}

func (r *SQLRepository) ApplyApprovalOutcome(ctx context.Context, q repository.Querier, c *Content, result *models.ModerationResult) error {
	return r.setStatus(ctx, q, c, r.approvedStatus, result.CreatedAt)
}

func (r *SQLRepository) ApplyRejectionOutcome(ctx context.Context, q repository.Querier, c *Content, result *models.ModerationResult) error {
	return r.setStatus(ctx, q, c, StatusRejected, result.CreatedAt)
}

func (r *SQLRepository) ApplyRevisionOutcome(ctx context.Context, q repository.Querier, c *Content, result *models.ModerationResult) error {
	return r.setStatus(ctx, q, c, StatusNeedsRevision, result.CreatedAt)
}

func (r *SQLRepository) setStatus(ctx context.Context, q repository.Querier, c *Content, status string, at time.Time) error {
	query := `UPDATE ` + r.table + ` SET status = ?, updated_at = ? WHERE id = ?`

	result, err := q.ExecContext(ctx, q.Rebind(query), status, at.UTC(), c.Ref.ID)
	if err != nil {
		r.logger.Error("Failed to update content status", zap.String("content_type", r.contentType), zap.Int64("content_id", c.Ref.ID), zap.String("status", status), zap.Error(err))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	c.Status = status
	return nil
}
