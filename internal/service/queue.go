package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/models"
	"moderation-service/internal/notifier"
	"moderation-service/internal/repository"
	"moderation-service/internal/sla"
)

// escalateAttempts bounds retries when an item changes between read and
// the version-keyed escalation update.
const escalateAttempts = 3

// SubmitInput describes content entering the queue.
type SubmitInput struct {
	Ref         models.ContentRef
	SubmittedBy int64
	Priority    models.Priority
	SLAHours    int
	Metadata    models.Metadata
	// AllowedOrgIDs, when non-nil, restricts submission to content owned by
	// one of these organizations.
	AllowedOrgIDs []int64
}

// QueueService owns item lifecycle operations outside of decisions.
type QueueService struct {
	*engine
}

func NewQueueService(d Deps) *QueueService {
	return &QueueService{engine: newEngine(d)}
}

// SLAStatus reports the item's SLA standing at the current time.
func (s *QueueService) SLAStatus(item *models.QueueItem) sla.Status {
	return s.sla.Status(item.SLADeadline, s.now())
}

// Submit queues content for review and marks it pending_review.
func (s *QueueService) Submit(ctx context.Context, in SubmitInput) (*models.QueueItem, error) {
	var item *models.QueueItem
	err := s.inTx(ctx, "submit", func(tx *sqlx.Tx) error {
		var err error
		item, err = s.enqueue(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Content submitted for moderation",
		zap.String("item_id", item.ID),
		zap.String("content_type", item.Type),
		zap.Int64("content_id", item.ContentRef.ID),
		zap.String("priority", string(item.Priority)),
	)
	return item, nil
}

// Resubmit queues revised content as a new item linked to the previous one.
// It fails with ErrDuplicateSubmission while an earlier item is still open.
func (s *QueueService) Resubmit(ctx context.Context, ref models.ContentRef, submittedBy int64, allowedOrgIDs []int64) (*models.QueueItem, error) {
	var item *models.QueueItem
	err := s.inTx(ctx, "resubmit", func(tx *sqlx.Tx) error {
		history, err := s.store.Items.ListByContent(ctx, tx, ref)
		if err != nil {
			return err
		}

		in := SubmitInput{
			Ref:           ref,
			SubmittedBy:   submittedBy,
			Metadata:      models.Metadata{models.MetaResubmission: true},
			AllowedOrgIDs: allowedOrgIDs,
		}
		if len(history) > 0 {
			prev := history[len(history)-1]
			if prev.Status.IsActive() {
				return ErrDuplicateSubmission
			}
			in.Priority = prev.Priority
			in.Metadata[models.MetaPreviousItemID] = prev.ID
			if prev.RequiresNote() {
				in.Metadata[models.MetaRequiredNote] = true
			}
		}

		item, err = s.enqueue(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Content resubmitted for moderation",
		zap.String("item_id", item.ID),
		zap.String("content_type", item.Type),
		zap.Int64("content_id", item.ContentRef.ID),
	)
	return item, nil
}

func (e *engine) enqueue(ctx context.Context, tx *sqlx.Tx, in SubmitInput) (*models.QueueItem, error) {
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}
	if in.SLAHours < 0 {
		return nil, ErrInvalidSLAHours
	}

	c, err := e.loadContent(ctx, tx, in.Ref)
	if err != nil {
		return nil, err
	}
	if in.AllowedOrgIDs != nil && !containsID(in.AllowedOrgIDs, c.OrgID) {
		return nil, ErrPermissionDenied
	}

	hours := in.SLAHours
	if hours == 0 {
		hours = e.sla.HoursFor(priority)
	}

	metadata := models.Metadata{}
	for k, v := range in.Metadata {
		metadata[k] = v
	}

	now := e.now()
	item := &models.QueueItem{
		ID:          uuid.NewString(),
		OrgID:       c.OrgID,
		ContentRef:  in.Ref,
		Status:      models.QueueStatusPending,
		Priority:    priority,
		SubmittedBy: in.SubmittedBy,
		SubmittedAt: now,
		SLAHours:    hours,
		SLADeadline: e.sla.Deadline(now, hours),
		Metadata:    metadata,
		Version:     1,
		UpdatedAt:   now,
	}

	if err := e.store.Items.Create(ctx, tx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateSubmission
		}
		return nil, err
	}

	if err := e.content.MarkSubmitted(ctx, tx, c, now); err != nil {
		return nil, err
	}
	return item, nil
}

// Get returns a single item.
func (s *QueueService) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	item, err := s.getItem(ctx, s.store.DB, id)
	if err != nil && !errors.Is(err, ErrItemNotFound) {
		return nil, storageErr("get item", err)
	}
	return item, err
}

// History lists the moderation results recorded for content, oldest first.
func (s *QueueService) History(ctx context.Context, ref models.ContentRef) ([]*models.ModerationResult, error) {
	if _, err := s.content.Resolve(ref.Type); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContentType, ref.Type)
	}

	results, err := s.store.Results.ListByContent(ctx, s.store.DB, ref)
	if err != nil {
		return nil, storageErr("history", err)
	}
	if results == nil {
		results = []*models.ModerationResult{}
	}
	return results, nil
}

// Claim assigns a pending or escalated item to the reviewer. Claiming an item
// the reviewer already holds returns it unchanged.
func (s *QueueService) Claim(ctx context.Context, id string, reviewerID int64) (*models.QueueItem, error) {
	if err := s.authorize(ctx, reviewerID); err != nil {
		return nil, err
	}

	var item *models.QueueItem
	err := s.inTx(ctx, "claim", func(tx *sqlx.Tx) error {
		current, err := s.getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.IsAssignedTo(reviewerID) {
			item = current
			return nil
		}
		now := s.now()
		if err := s.claimInTx(ctx, tx, current, reviewerID, now); err != nil {
			return err
		}
		item, err = s.getItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Queue item claimed", zap.String("item_id", id), zap.Int64("reviewer_id", reviewerID))
	return item, nil
}

// Release returns the reviewer's item to pending.
func (s *QueueService) Release(ctx context.Context, id string, reviewerID int64) (*models.QueueItem, error) {
	var item *models.QueueItem
	err := s.inTx(ctx, "release", func(tx *sqlx.Tx) error {
		if err := s.releaseInTx(ctx, tx, id, reviewerID, "release", s.now()); err != nil {
			return err
		}
		var err error
		item, err = s.getItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Queue item released", zap.String("item_id", id), zap.Int64("reviewer_id", reviewerID))
	return item, nil
}

// Skip releases the reviewer's item and hides it from their next pulls.
func (s *QueueService) Skip(ctx context.Context, id string, reviewerID int64) (*models.QueueItem, error) {
	var item *models.QueueItem
	err := s.inTx(ctx, "skip", func(tx *sqlx.Tx) error {
		if err := s.skipInTx(ctx, tx, id, reviewerID, s.now()); err != nil {
			return err
		}
		var err error
		item, err = s.getItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Queue item skipped", zap.String("item_id", id), zap.Int64("reviewer_id", reviewerID))
	return item, nil
}

// Escalate raises a pending or in-review item to urgent and clears its
// assignment. actorID 0 denotes an automated caller.
func (s *QueueService) Escalate(ctx context.Context, id, reason string, actorID int64) (*models.QueueItem, error) {
	var (
		item         *models.QueueItem
		prevAssignee *int64
	)
	err := s.inTx(ctx, "escalate", func(tx *sqlx.Tx) error {
		for attempt := 0; attempt < escalateAttempts; attempt++ {
			current, err := s.getItem(ctx, tx, id)
			if err != nil {
				return err
			}

			ok, err := s.escalateInTx(ctx, tx, current, reason, actorID, s.now())
			if err != nil {
				return err
			}
			if ok {
				prevAssignee = current.AssignedTo
				item, err = s.getItem(ctx, tx, id)
				return err
			}
		}
		return s.escalateConflict(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Queue item escalated",
		zap.String("item_id", id),
		zap.Int64("actor_id", actorID),
		zap.String("reason", reason),
	)
	if prevAssignee != nil {
		s.notifier.Notify(ctx, *prevAssignee, notifier.EventItemEscalated, notifier.Payload{
			"item_id": id,
			"reason":  reason,
		})
	}
	return item, nil
}

func (e *engine) escalateConflict(ctx context.Context, q repository.Querier, id string) error {
	item, err := e.getItem(ctx, q, id)
	if err != nil {
		return err
	}
	return &TransitionError{ItemID: id, Current: item.Status, Attempted: "escalate"}
}

// TeamSetting returns a reviewer's capacity settings.
func (s *QueueService) TeamSetting(ctx context.Context, userID int64) (*models.TeamSetting, error) {
	setting, err := s.store.Team.Get(ctx, s.store.DB, userID)
	if err != nil {
		return nil, storageErr("get team setting", err)
	}
	if setting == nil {
		return nil, ErrPermissionDenied
	}
	return setting, nil
}

// UpsertTeamSetting creates or updates a reviewer's capacity. Lowering the
// limit below the current load of an available reviewer is refused with
// ErrCapacityExceeded.
func (s *QueueService) UpsertTeamSetting(ctx context.Context, userID int64, in models.UpsertTeamSettingInput) (*models.TeamSetting, error) {
	available := true
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}

	for _, t := range in.ContentSpecializations {
		if _, err := s.content.Resolve(t); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownContentType, t)
		}
	}

	setting := &models.TeamSetting{
		UserID:                 userID,
		OrgID:                  in.OrgID,
		MaxConcurrentItems:     in.MaxConcurrentItems,
		IsAvailable:            available,
		ContentSpecializations: models.StringList(in.ContentSpecializations),
		UpdatedAt:              s.now(),
	}

	var saved *models.TeamSetting
	err := s.inTx(ctx, "upsert team setting", func(tx *sqlx.Tx) error {
		ok, err := s.store.Team.Upsert(ctx, tx, setting)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCapacityExceeded
		}
		saved, err = s.store.Team.Get(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Team setting saved",
		zap.Int64("user_id", userID),
		zap.Int("max_concurrent_items", saved.MaxConcurrentItems),
		zap.Bool("is_available", saved.IsAvailable),
	)
	return saved, nil
}

// SetAvailability toggles whether the reviewer receives new items.
func (s *QueueService) SetAvailability(ctx context.Context, userID int64, available bool) (*models.TeamSetting, error) {
	var saved *models.TeamSetting
	err := s.inTx(ctx, "set availability", func(tx *sqlx.Tx) error {
		setting, err := s.store.Team.Get(ctx, tx, userID)
		if err != nil {
			return err
		}
		if setting == nil {
			return ErrPermissionDenied
		}

		ok, err := s.store.Team.SetAvailability(ctx, tx, userID, available, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrCapacityExceeded
		}
		saved, err = s.store.Team.Get(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// RecomputeLoad resets a reviewer's cached load from their in-review items.
func (s *QueueService) RecomputeLoad(ctx context.Context, userID int64) error {
	return s.inTx(ctx, "recompute load", func(tx *sqlx.Tx) error {
		return s.store.Team.RecomputeLoad(ctx, tx, userID, s.now())
	})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// startOfWeek returns Monday 00:00 UTC of t's week.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// OverduePending lists pending items past their SLA deadline, most overdue first.
func (s *QueueService) OverduePending(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	items, err := s.store.Items.ListOverduePending(ctx, s.store.DB, s.now(), limit)
	if err != nil {
		return nil, storageErr("list overdue", err)
	}
	return items, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
