// Package content adapts moderatable entities (courses, content blocks) to the
// queue. Each content type implements Repository; the Registry dispatches on
// ContentRef.Type instead of inspecting concrete types at runtime.
package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"moderation-service/internal/models"
	"moderation-service/internal/repository"
)

// Lifecycle states of moderatable content.
const (
	StatusDraft         = "draft"
	StatusPendingReview = "pending_review"
	StatusApproved      = "approved"
	StatusRejected      = "rejected"
	StatusNeedsRevision = "needs_revision"
	StatusPublished     = "published"
)

var (
	ErrUnknownType = errors.New("unknown content type")
	ErrNotFound    = errors.New("content not found")
)

// Content is the slice of a moderatable entity the engine needs.
type Content struct {
	Ref     models.ContentRef `json:"ref"`
	OrgID   int64             `json:"org_id"`
	OwnerID int64             `json:"owner_id"`
	Title   string            `json:"title"`
	Status  string            `json:"status"`
}

// Repository is implemented once per content type. Outcome hooks run inside
// the caller's transaction so a failed content update rolls back the decision.
type Repository interface {
	Load(ctx context.Context, q repository.Querier, id int64) (*Content, error)
	MarkSubmitted(ctx context.Context, q repository.Querier, c *Content, at time.Time) error
	ApplyApprovalOutcome(ctx context.Context, q repository.Querier, c *Content, result *models.ModerationResult) error
	ApplyRejectionOutcome(ctx context.Context, q repository.Querier, c *Content, result *models.ModerationResult) error
	ApplyRevisionOutcome(ctx context.Context, q repository.Querier, c *Content, result *models.ModerationResult) error
}

// Registry maps content type names to their repositories.
type Registry struct {
	repos map[string]Repository
}

// NewRegistry builds a registry from type name to repository.
func NewRegistry(repos map[string]Repository) *Registry {
	copied := make(map[string]Repository, len(repos))
	for name, repo := range repos {
		copied[name] = repo
	}
	return &Registry{repos: copied}
}

// Types lists the registered content types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.repos))
	for name := range r.repos {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Resolve returns the repository for a content type.
func (r *Registry) Resolve(contentType string) (Repository, error) {
	repo, ok := r.repos[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, contentType)
	}
	return repo, nil
}

// Load fetches the content a reference points to.
func (r *Registry) Load(ctx context.Context, q repository.Querier, ref models.ContentRef) (*Content, error) {
	repo, err := r.Resolve(ref.Type)
	if err != nil {
		return nil, err
	}
	return repo.Load(ctx, q, ref.ID)
}

// MarkSubmitted moves content into pending_review.
func (r *Registry) MarkSubmitted(ctx context.Context, q repository.Querier, c *Content, at time.Time) error {
	repo, err := r.Resolve(c.Ref.Type)
	if err != nil {
		return err
	}
	return repo.MarkSubmitted(ctx, q, c, at)
}

// ApplyOutcome routes a result to the hook matching its status.
func (r *Registry) ApplyOutcome(ctx context.Context, q repository.Querier, c *Content, result *models.ModerationResult) error {
	repo, err := r.Resolve(c.Ref.Type)
	if err != nil {
		return err
	}
	switch result.Status {
	case models.ResultApproved:
		return repo.ApplyApprovalOutcome(ctx, q, c, result)
	case models.ResultRejected:
		return repo.ApplyRejectionOutcome(ctx, q, c, result)
	case models.ResultNeedsRevision:
		return repo.ApplyRevisionOutcome(ctx, q, c, result)
	}
	return fmt.Errorf("unsupported result status %q", result.Status)
}
