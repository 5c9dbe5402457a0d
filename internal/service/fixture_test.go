package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderation-service/internal/content"
	"moderation-service/internal/models"
	"moderation-service/internal/notifier"
	"moderation-service/internal/sla"
	"moderation-service/internal/testutil"
)

const testOrg int64 = 10

type sentNotification struct {
	UserID  int64
	Event   notifier.Event
	Payload notifier.Payload
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, userID int64, event notifier.Event, payload notifier.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{UserID: userID, Event: event, Payload: payload})
}

func (r *recordingNotifier) events() []sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentNotification(nil), r.sent...)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	db      *sqlx.DB
	store   *Store
	courses *content.SQLRepository
	blocks  *content.SQLRepository
	notes   *recordingNotifier

	mu  sync.Mutex
	now time.Time

	queue      *QueueService
	assignment *AssignmentService
	workflow   *WorkflowService
	stats      *StatsService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	db := testutil.NewDB(t)
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		store:   NewStore(db, logger),
		courses: content.NewCourseRepository(logger),
		blocks:  content.NewContentBlockRepository(logger),
		notes:   &recordingNotifier{},
		now:     time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC), // a Wednesday
	}

	deps := Deps{
		Store: f.store,
		Content: content.NewRegistry(map[string]content.Repository{
			content.TypeCourse:       f.courses,
			content.TypeContentBlock: f.blocks,
		}),
		Notifier: f.notes,
		SLA:      sla.NewCalculator(4*time.Hour, nil),
		Logger:   logger,
		Clock:    f.clock,
	}
	f.queue = NewQueueService(deps)
	f.assignment = NewAssignmentService(deps, 0)
	f.workflow = NewWorkflowService(deps)
	f.stats = NewStatsService(deps, 0)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) course(ownerID int64) models.ContentRef {
	f.t.Helper()
	id, err := f.courses.Create(f.ctx, f.db, testOrg, ownerID, "Intro to Go", f.clock())
	require.NoError(f.t, err)
	return models.ContentRef{Type: content.TypeCourse, ID: id}
}

func (f *fixture) block(ownerID int64) models.ContentRef {
	f.t.Helper()
	id, err := f.blocks.Create(f.ctx, f.db, testOrg, ownerID, "Lesson 1", f.clock())
	require.NoError(f.t, err)
	return models.ContentRef{Type: content.TypeContentBlock, ID: id}
}

func (f *fixture) reviewer(userID int64, maxItems int, specializations ...string) {
	f.t.Helper()
	_, err := f.queue.UpsertTeamSetting(f.ctx, userID, models.UpsertTeamSettingInput{
		OrgID:                  testOrg,
		MaxConcurrentItems:     maxItems,
		ContentSpecializations: specializations,
	})
	require.NoError(f.t, err)
}

func (f *fixture) submit(ref models.ContentRef, priority models.Priority, slaHours int) *models.QueueItem {
	f.t.Helper()
	item, err := f.queue.Submit(f.ctx, SubmitInput{
		Ref:         ref,
		SubmittedBy: 99,
		Priority:    priority,
		SLAHours:    slaHours,
	})
	require.NoError(f.t, err)
	return item
}

func (f *fixture) load(userID int64) int {
	f.t.Helper()
	setting, err := f.store.Team.Get(f.ctx, f.db, userID)
	require.NoError(f.t, err)
	require.NotNil(f.t, setting)
	return setting.CurrentLoad
}

func (f *fixture) contentStatus(ref models.ContentRef) string {
	f.t.Helper()
	repo := f.courses
	if ref.Type == content.TypeContentBlock {
		repo = f.blocks
	}
	c, err := repo.Load(f.ctx, f.db, ref.ID)
	require.NoError(f.t, err)
	return c.Status
}

// assertAssignmentInvariant checks assigned_to is set exactly for in_review rows.
func (f *fixture) assertAssignmentInvariant() {
	f.t.Helper()
	var violations int
	err := f.db.Get(&violations, `
		SELECT COUNT(*) FROM queue_items
		WHERE (status = 'in_review' AND assigned_to IS NULL)
		   OR (status <> 'in_review' AND assigned_to IS NOT NULL)`)
	require.NoError(f.t, err)
	require.Zero(f.t, violations)
}
