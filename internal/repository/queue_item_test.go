package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderation-service/internal/models"
	"moderation-service/internal/repository"
	"moderation-service/internal/testutil"
)

var base = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newItem(contentID int64, deadline time.Time) *models.QueueItem {
	return &models.QueueItem{
		ID:          uuid.NewString(),
		OrgID:       10,
		ContentRef:  models.ContentRef{Type: "course", ID: contentID},
		Status:      models.QueueStatusPending,
		Priority:    models.PriorityNormal,
		SubmittedBy: 7,
		SubmittedAt: base,
		SLAHours:    24,
		SLADeadline: deadline,
		UpdatedAt:   base,
	}
}

func TestQueueItemRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.NewQueueItemRepository(zap.NewNop())

	item := newItem(1, base.Add(24*time.Hour))
	require.NoError(t, repo.Create(ctx, db, item))

	t.Run("one active item per content", func(t *testing.T) {
		err := repo.Create(ctx, db, newItem(1, base))
		assert.ErrorIs(t, err, repository.ErrDuplicate)
	})

	t.Run("missing item", func(t *testing.T) {
		got, err := repo.GetByID(ctx, db, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("claim is compare and swap", func(t *testing.T) {
		ok, err := repo.Claim(ctx, db, item.ID, 2, base)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Claim(ctx, db, item.ID, 3, base)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByID(ctx, db, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusInReview, got.Status)
		require.NotNil(t, got.AssignedTo)
		assert.EqualValues(t, 2, *got.AssignedTo)
		assert.EqualValues(t, 2, got.Version)
	})

	t.Run("release only by assignee", func(t *testing.T) {
		ok, err := repo.Release(ctx, db, item.ID, 3, base)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.Release(ctx, db, item.ID, 2, base)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("complete requires the claim", func(t *testing.T) {
		ok, err := repo.Complete(ctx, db, item.ID, 2, models.DecisionApprove, "done", base)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = repo.Claim(ctx, db, item.ID, 2, base)
		require.NoError(t, err)
		ok, err = repo.Complete(ctx, db, item.ID, 2, models.DecisionApprove, "done", base.Add(10*time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, db, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusCompleted, got.Status)
		assert.Nil(t, got.AssignedTo)
		assert.Equal(t, "done", got.Notes)
	})

	t.Run("completed content may be queued again", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, db, newItem(1, base.Add(-time.Hour))))
		history, err := repo.ListByContent(ctx, db, models.ContentRef{Type: "course", ID: 1})
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	t.Run("counts", func(t *testing.T) {
		counts, err := repo.CountActive(ctx, db, []int64{10}, base)
		require.NoError(t, err)
		assert.Equal(t, repository.ActiveCounts{Pending: 1, Overdue: 1}, counts)

		overdue, err := repo.ListOverduePending(ctx, db, base, 10)
		require.NoError(t, err)
		assert.Len(t, overdue, 1)

		completed, err := repo.CountCompleted(ctx, db, repository.Scope{ReviewerID: 2}, base)
		require.NoError(t, err)
		assert.Equal(t, 1, completed)

		timings, err := repo.ListDecisionTimings(ctx, db, repository.Scope{OrgIDs: []int64{10}}, base)
		require.NoError(t, err)
		require.Len(t, timings, 1)
		assert.Equal(t, 10*time.Minute, timings[0].CompletedAt.Sub(*timings[0].StartedAt))
	})
}

func TestTeamSettingLoad(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.NewTeamSettingRepository(zap.NewNop())

	ok, err := repo.Upsert(ctx, db, &models.TeamSetting{UserID: 2, OrgID: 10, MaxConcurrentItems: 1, IsAvailable: true, UpdatedAt: base})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.IncrementLoad(ctx, db, 2, base)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IncrementLoad(ctx, db, 2, base)
	require.NoError(t, err)
	assert.False(t, ok, "at capacity")

	require.NoError(t, repo.DecrementLoad(ctx, db, 2, base))
	require.NoError(t, repo.DecrementLoad(ctx, db, 2, base))

	setting, err := repo.Get(ctx, db, 2)
	require.NoError(t, err)
	assert.Zero(t, setting.CurrentLoad, "load never goes negative")
	assert.Empty(t, setting.ContentSpecializations)

	missing, err := repo.Get(ctx, db, 404)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSkipMarkers(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	items := repository.NewQueueItemRepository(zap.NewNop())
	skips := repository.NewSkipRepository(zap.NewNop())

	item := newItem(1, base.Add(time.Hour))
	require.NoError(t, items.Create(ctx, db, item))
	require.NoError(t, skips.Mark(ctx, db, item.ID, 2, 2, base))

	for pull := 0; pull < 2; pull++ {
		excluded, err := skips.ExcludedItems(ctx, db, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{item.ID}, excluded)
		require.NoError(t, skips.ConsumePull(ctx, db, 2))
	}

	excluded, err := skips.ExcludedItems(ctx, db, 2)
	require.NoError(t, err)
	assert.Empty(t, excluded)

	other, err := skips.ExcludedItems(ctx, db, 3)
	require.NoError(t, err)
	assert.Empty(t, other)
}
