package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"moderation-service/internal/content"
	"moderation-service/internal/models"
	"moderation-service/internal/notifier"
	"moderation-service/internal/repository"
	"moderation-service/internal/sla"
)

const defaultSkipCooldownPulls = 3

// Store bundles the repositories that share one database handle.
type Store struct {
	DB      *sqlx.DB
	Items   repository.QueueItemRepository
	Results repository.ModerationResultRepository
	Team    repository.TeamSettingRepository
	Skips   repository.SkipRepository
}

// NewStore wires the SQL repositories to db.
func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{
		DB:      db,
		Items:   repository.NewQueueItemRepository(logger),
		Results: repository.NewModerationResultRepository(logger),
		Team:    repository.NewTeamSettingRepository(logger),
		Skips:   repository.NewSkipRepository(logger),
	}
}

// Deps holds the collaborators shared by the moderation services.
type Deps struct {
	Store             *Store
	Content           *content.Registry
	Authorizer        Authorizer
	Notifier          notifier.Notifier
	SLA               sla.Calculator
	Logger            *zap.Logger
	Clock             func() time.Time
	SkipCooldownPulls int
}

// engine carries the transition helpers every service builds on.
type engine struct {
	store     *Store
	content   *content.Registry
	authz     Authorizer
	notifier  notifier.Notifier
	sla       sla.Calculator
	logger    *zap.Logger
	clock     func() time.Time
	skipPulls int
}

func newEngine(d Deps) *engine {
	e := &engine{
		store:     d.Store,
		content:   d.Content,
		authz:     d.Authorizer,
		notifier:  d.Notifier,
		sla:       d.SLA,
		logger:    d.Logger,
		clock:     d.Clock,
		skipPulls: d.SkipCooldownPulls,
	}
	if e.authz == nil {
		e.authz = NewTeamAuthorizer(d.Store)
	}
	if e.notifier == nil {
		e.notifier = notifier.Nop{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.skipPulls <= 0 {
		e.skipPulls = defaultSkipCooldownPulls
	}
	if e.sla.HoursByPriority == nil {
		e.sla = sla.NewCalculator(e.sla.WarningThreshold, nil)
	}
	return e
}

func (e *engine) now() time.Time {
	return e.clock().UTC()
}

// inTx runs fn in a transaction. Domain errors pass through untouched;
// anything else is reported as a StorageError.
func (e *engine) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	err := repository.WithTx(ctx, e.store.DB, fn)
	if err == nil || isDomainErr(err) {
		return err
	}
	e.logger.Error("Transaction failed", zap.String("op", op), zap.Error(err))
	return storageErr(op, err)
}

// authorize consults the authorizer. It must run outside any open
// transaction since the authorizer may use its own connection.
func (e *engine) authorize(ctx context.Context, userID int64) error {
	ok, err := e.authz.CanModerate(ctx, userID)
	if err != nil {
		return storageErr("authorize", err)
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

func (e *engine) getItem(ctx context.Context, q repository.Querier, id string) (*models.QueueItem, error) {
	item, err := e.store.Items.GetByID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	return item, nil
}

func (e *engine) loadContent(ctx context.Context, q repository.Querier, ref models.ContentRef) (*content.Content, error) {
	c, err := e.content.Load(ctx, q, ref)
	switch {
	case errors.Is(err, content.ErrUnknownType):
		return nil, fmt.Errorf("%w: %s", ErrUnknownContentType, ref.Type)
	case errors.Is(err, content.ErrNotFound):
		return nil, fmt.Errorf("%w: %s %d", ErrContentNotFound, ref.Type, ref.ID)
	case err != nil:
		return nil, err
	}
	return c, nil
}

// claimInTx moves item to in_review for reviewerID and charges the reviewer's
// load. A failed load increment must abort the transaction: the claim row has
// already changed by then.
func (e *engine) claimInTx(ctx context.Context, tx *sqlx.Tx, item *models.QueueItem, reviewerID int64, now time.Time) error {
	setting, err := e.store.Team.Get(ctx, tx, reviewerID)
	if err != nil {
		return err
	}
	if setting == nil || setting.OrgID != item.OrgID || !setting.Handles(item.Type) {
		return ErrPermissionDenied
	}

	ok, err := e.store.Items.Claim(ctx, tx, item.ID, reviewerID, now)
	if err != nil {
		return err
	}
	if !ok {
		return e.claimFailure(ctx, tx, item.ID)
	}

	ok, err = e.store.Team.IncrementLoad(ctx, tx, reviewerID, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCapacityExceeded
	}
	return nil
}

func (e *engine) claimFailure(ctx context.Context, q repository.Querier, id string) error {
	item, err := e.getItem(ctx, q, id)
	if err != nil {
		return err
	}
	if item.Status == models.QueueStatusInReview {
		return ErrAlreadyClaimed
	}
	return &TransitionError{ItemID: id, Current: item.Status, Attempted: "claim"}
}

// assignmentFailure explains why a transition keyed on the reviewer's
// assignment did not apply.
func (e *engine) assignmentFailure(ctx context.Context, q repository.Querier, id string, reviewerID int64, attempted string) error {
	item, err := e.getItem(ctx, q, id)
	if err != nil {
		return err
	}
	if item.Status == models.QueueStatusInReview && !item.IsAssignedTo(reviewerID) {
		return ErrNotAssignedToReviewer
	}
	return &TransitionError{ItemID: id, Current: item.Status, Attempted: attempted}
}

// releaseInTx returns an in_review item to pending and frees the reviewer.
func (e *engine) releaseInTx(ctx context.Context, tx *sqlx.Tx, id string, reviewerID int64, attempted string, now time.Time) error {
	ok, err := e.store.Items.Release(ctx, tx, id, reviewerID, now)
	if err != nil {
		return err
	}
	if !ok {
		return e.assignmentFailure(ctx, tx, id, reviewerID, attempted)
	}
	return e.store.Team.DecrementLoad(ctx, tx, reviewerID, now)
}

// skipInTx releases the item and hides it from the reviewer for the
// configured number of pulls.
func (e *engine) skipInTx(ctx context.Context, tx *sqlx.Tx, id string, reviewerID int64, now time.Time) error {
	if err := e.releaseInTx(ctx, tx, id, reviewerID, "skip", now); err != nil {
		return err
	}
	return e.store.Skips.Mark(ctx, tx, id, reviewerID, e.skipPulls, now)
}

// escalateInTx escalates the item as read. It reports false when the item
// changed since it was read. The previous assignee, if any, is freed.
func (e *engine) escalateInTx(ctx context.Context, tx *sqlx.Tx, item *models.QueueItem, reason string, actorID int64, now time.Time) (bool, error) {
	if item.Status != models.QueueStatusPending && item.Status != models.QueueStatusInReview {
		return false, &TransitionError{ItemID: item.ID, Current: item.Status, Attempted: "escalate"}
	}

	updated := *item
	updated.Metadata = models.Metadata{}
	for k, v := range item.Metadata {
		updated.Metadata[k] = v
	}
	updated.Metadata[models.MetaEscalated] = true

	ok, err := e.store.Items.Escalate(ctx, tx, &updated, noteLine(now, "escalated", actorID, reason), now)
	if err != nil || !ok {
		return false, err
	}

	if item.AssignedTo != nil {
		if err := e.store.Team.DecrementLoad(ctx, tx, *item.AssignedTo, now); err != nil {
			return false, err
		}
	}
	return true, nil
}

func noteLine(at time.Time, action string, actorID int64, text string) string {
	actor := "system"
	if actorID != 0 {
		actor = fmt.Sprintf("user %d", actorID)
	}
	line := fmt.Sprintf("[%s] %s by %s", at.Format(time.RFC3339), action, actor)
	if text != "" {
		line += ": " + text
	}
	return line
}
