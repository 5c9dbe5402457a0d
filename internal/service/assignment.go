package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/models"
	"moderation-service/internal/notifier"
	"moderation-service/internal/repository"
	"moderation-service/internal/sla"
)

// QueueStats is the dashboard snapshot of open work.
type QueueStats struct {
	Pending        int `json:"pending"`
	InReview       int `json:"in_review"`
	Escalated      int `json:"escalated"`
	CompletedToday int `json:"completed_today"`
	Overdue        int `json:"overdue"`
}

// AssignmentService matches reviewers to queued items.
type AssignmentService struct {
	*engine
	stats *ttlCache
}

func NewAssignmentService(d Deps, statsTTL time.Duration) *AssignmentService {
	e := newEngine(d)
	return &AssignmentService{engine: e, stats: newTTLCache(statsTTL, e.clock)}
}

// NextItemForReviewer picks the most urgent eligible item and claims it for
// the reviewer in the same transaction, so the returned item is already
// in_review and counted against the reviewer's load. It returns nil when
// nothing is eligible or the reviewer has no free capacity. Every call that
// inspects candidates consumes one pull of the reviewer's skip markers.
func (s *AssignmentService) NextItemForReviewer(ctx context.Context, reviewerID int64) (*models.QueueItem, error) {
	if err := s.authorize(ctx, reviewerID); err != nil {
		return nil, err
	}

	var item *models.QueueItem
	err := s.inTx(ctx, "next item", func(tx *sqlx.Tx) error {
		setting, err := s.store.Team.Get(ctx, tx, reviewerID)
		if err != nil {
			return err
		}
		if setting == nil {
			return ErrPermissionDenied
		}
		if !setting.HasCapacity() {
			return nil
		}

		excluded, err := s.store.Skips.ExcludedItems(ctx, tx, reviewerID)
		if err != nil {
			return err
		}
		if err := s.store.Skips.ConsumePull(ctx, tx, reviewerID); err != nil {
			return err
		}

		candidates, err := s.store.Items.ListClaimable(ctx, tx, repository.ClaimableFilter{
			OrgID:        setting.OrgID,
			ContentTypes: setting.ContentSpecializations,
			ExcludeIDs:   excluded,
		})
		if err != nil {
			return err
		}

		now := s.now()
		s.rank(candidates, now)
		for _, candidate := range candidates {
			err := s.claimInTx(ctx, tx, candidate, reviewerID, now)
			if errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrInvalidTransition) {
				continue
			}
			if err != nil {
				return err
			}
			item, err = s.getItem(ctx, tx, candidate.ID)
			return err
		}
		return nil
	})
	if errors.Is(err, ErrCapacityExceeded) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if item != nil {
		s.logger.Info("Queue item assigned",
			zap.String("item_id", item.ID),
			zap.Int64("reviewer_id", reviewerID),
			zap.String("priority", string(item.Priority)),
		)
	}
	return item, nil
}

// rank orders candidates by SLA status, then priority, then age.
func (s *AssignmentService) rank(items []*models.QueueItem, now time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		ri := sla.Rank(s.sla.Status(items[i].SLADeadline, now))
		rj := sla.Rank(s.sla.Status(items[j].SLADeadline, now))
		if ri != rj {
			return ri < rj
		}
		wi, wj := items[i].Priority.Weight(), items[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		return items[i].SubmittedAt.Before(items[j].SubmittedAt)
	})
}

// AssignToUser claims a specific item on behalf of a reviewer. Ordering is
// bypassed; capacity and the single-claim rule are not.
func (s *AssignmentService) AssignToUser(ctx context.Context, id string, reviewerID, adminID int64) (*models.QueueItem, error) {
	if err := s.authorize(ctx, reviewerID); err != nil {
		return nil, err
	}

	var item *models.QueueItem
	err := s.inTx(ctx, "assign", func(tx *sqlx.Tx) error {
		current, err := s.getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.claimInTx(ctx, tx, current, reviewerID, s.now()); err != nil {
			return err
		}
		item, err = s.getItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Queue item assigned by admin",
		zap.String("item_id", id),
		zap.Int64("reviewer_id", reviewerID),
		zap.Int64("admin_id", adminID),
	)
	s.notifier.Notify(ctx, reviewerID, notifier.EventItemAssigned, notifier.Payload{
		"item_id":      id,
		"content_type": item.Type,
		"content_id":   item.ContentRef.ID,
		"assigned_by":  adminID,
	})
	return item, nil
}

// GetQueueStats counts open work across orgIDs. Results may be served from
// a short-lived cache; concurrent misses share one query.
func (s *AssignmentService) GetQueueStats(ctx context.Context, orgIDs []int64) (*QueueStats, error) {
	ids := normalizeOrgIDs(orgIDs)
	if len(ids) == 0 {
		return &QueueStats{}, nil
	}

	v, err := s.stats.get(ctx, orgKey("queue", ids), func(ctx context.Context) (any, error) {
		return s.loadQueueStats(ctx, ids)
	})
	if err != nil {
		return nil, storageErr("queue stats", err)
	}
	stats := *v.(*QueueStats)
	return &stats, nil
}

func (s *AssignmentService) loadQueueStats(ctx context.Context, orgIDs []int64) (*QueueStats, error) {
	now := s.now()
	counts, err := s.store.Items.CountActive(ctx, s.store.DB, orgIDs, now)
	if err != nil {
		return nil, err
	}
	completed, err := s.store.Items.CountCompleted(ctx, s.store.DB, repository.Scope{OrgIDs: orgIDs}, startOfDay(now))
	if err != nil {
		return nil, err
	}
	return &QueueStats{
		Pending:        counts.Pending,
		InReview:       counts.InReview,
		Escalated:      counts.Escalated,
		CompletedToday: completed,
		Overdue:        counts.Overdue,
	}, nil
}

func normalizeOrgIDs(orgIDs []int64) []int64 {
	seen := make(map[int64]struct{}, len(orgIDs))
	ids := make([]int64, 0, len(orgIDs))
	for _, id := range orgIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func orgKey(prefix string, orgIDs []int64) string {
	parts := make([]string, len(orgIDs))
	for i, id := range orgIDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return prefix + ":" + strings.Join(parts, ",")
}
