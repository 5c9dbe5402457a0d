package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderation-service/internal/models"
	"moderation-service/internal/service"
)

type fakeQueue struct {
	mu        sync.Mutex
	items     []*models.QueueItem
	failures  map[string]error
	listErr   error
	escalated []string
	reasons   []string
	actors    []int64
}

func (q *fakeQueue) OverduePending(_ context.Context, limit int) ([]*models.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.listErr != nil {
		return nil, q.listErr
	}
	if len(q.items) > limit {
		return q.items[:limit], nil
	}
	return q.items, nil
}

func (q *fakeQueue) Escalate(_ context.Context, id, reason string, actorID int64) (*models.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.failures[id]; err != nil {
		return nil, err
	}
	q.escalated = append(q.escalated, id)
	q.reasons = append(q.reasons, reason)
	q.actors = append(q.actors, actorID)
	return &models.QueueItem{ID: id, Status: models.QueueStatusEscalated}, nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.escalated)
}

func TestSweep(t *testing.T) {
	deadline := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	q := &fakeQueue{
		items: []*models.QueueItem{
			{ID: "a", SLADeadline: deadline},
			{ID: "b", SLADeadline: deadline},
			{ID: "c", SLADeadline: deadline},
			{ID: "d", SLADeadline: deadline},
		},
		failures: map[string]error{
			"b": &service.TransitionError{ItemID: "b", Current: models.QueueStatusInReview, Attempted: "escalate"},
			"c": errors.New("connection reset"),
		},
	}

	n, err := NewSweeper(q, time.Minute, 10, zap.NewNop()).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "d"}, q.escalated)
	assert.Equal(t, "SLA deadline 2026-10-14T08:00:00Z missed", q.reasons[0])
	assert.Equal(t, []int64{0, 0}, q.actors)
}

func TestSweepRespectsBatchSize(t *testing.T) {
	q := &fakeQueue{items: []*models.QueueItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	n, err := NewSweeper(q, time.Minute, 2, zap.NewNop()).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSweepListFailure(t *testing.T) {
	q := &fakeQueue{listErr: errors.New("db down")}
	_, err := NewSweeper(q, time.Minute, 0, zap.NewNop()).Sweep(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	q := &fakeQueue{items: []*models.QueueItem{{ID: "a"}}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewSweeper(q, 5*time.Millisecond, 10, zap.NewNop()).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return q.count() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
