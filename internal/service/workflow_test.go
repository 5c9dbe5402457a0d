package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderation-service/internal/content"
	"moderation-service/internal/models"
	"moderation-service/internal/notifier"
)

func (f *fixture) claimed(ref models.ContentRef, reviewerID int64, meta models.Metadata) *models.QueueItem {
	f.t.Helper()
	item, err := f.queue.Submit(f.ctx, SubmitInput{Ref: ref, SubmittedBy: 99, Metadata: meta})
	require.NoError(f.t, err)
	item, err = f.queue.Claim(f.ctx, item.ID, reviewerID)
	require.NoError(f.t, err)
	return item
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	f.reviewer(1, 3)

	t.Run("course is published", func(t *testing.T) {
		ref := f.course(7)
		item := f.claimed(ref, 1, nil)

		result, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionApprove, Notes: "looks good"})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, models.ResultApproved, result.Status)
		assert.Equal(t, ref, result.ContentRef)
		assert.Equal(t, "looks good", result.Feedback)

		assert.Equal(t, content.StatusPublished, f.contentStatus(ref))
		assert.Equal(t, 0, f.load(1))

		done, err := f.queue.Get(f.ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusCompleted, done.Status)
		assert.Nil(t, done.AssignedTo)
		require.NotNil(t, done.Outcome)
		assert.Equal(t, "approve", *done.Outcome)
		require.NotNil(t, done.CompletedBy)
		assert.EqualValues(t, 1, *done.CompletedBy)
		assert.Contains(t, done.Notes, "approve by user 1: looks good")

		events := f.notes.events()
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.EqualValues(t, 7, last.UserID)
		assert.Equal(t, notifier.EventDecisionRecorded, last.Event)
		assert.Equal(t, "approved", last.Payload["status"])
	})

	t.Run("content block is approved", func(t *testing.T) {
		ref := f.block(8)
		item := f.claimed(ref, 1, nil)

		_, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionApprove})
		require.NoError(t, err)
		assert.Equal(t, content.StatusApproved, f.contentStatus(ref))
	})

	t.Run("completed items are terminal", func(t *testing.T) {
		item := f.claimed(f.course(7), 1, nil)
		_, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionReject})
		require.NoError(t, err)

		_, err = f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionApprove})
		assert.ErrorIs(t, err, ErrNotAssignedToReviewer)
		_, err = f.queue.Claim(f.ctx, item.ID, 1)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	f.assertAssignmentInvariant()
}

func TestRejectAcceptsEmptyFeedback(t *testing.T) {
	f := newFixture(t)
	f.reviewer(1, 3)
	ref := f.course(7)
	item := f.claimed(ref, 1, nil)

	result, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionReject})
	require.NoError(t, err)
	assert.Equal(t, models.ResultRejected, result.Status)
	assert.Empty(t, result.Feedback)
	assert.Equal(t, content.StatusRejected, f.contentStatus(ref))
}

func TestDecisionByWrongReviewer(t *testing.T) {
	f := newFixture(t)
	f.reviewer(1, 3)
	f.reviewer(2, 3)
	item := f.claimed(f.course(7), 1, nil)

	_, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 2, Decision: models.DecisionApprove})
	assert.ErrorIs(t, err, ErrNotAssignedToReviewer)

	still, err := f.queue.Get(f.ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, still.IsAssignedTo(1))
}

func TestRequiredNote(t *testing.T) {
	f := newFixture(t)
	f.reviewer(1, 3)
	ref := f.course(7)
	item := f.claimed(ref, 1, models.Metadata{models.MetaRequiredNote: true})

	_, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionRequestChanges, Notes: ""})
	assert.ErrorIs(t, err, ErrNotesRequired)

	_, err = f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionRequestChanges, Notes: "   "})
	assert.ErrorIs(t, err, ErrNotesRequired)

	result, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{
		ItemID:      item.ID,
		ReviewerID:  1,
		Decision:    models.DecisionRequestChanges,
		Notes:       "needs more examples",
		Suggestions: []string{"add a worked example", "link the reference docs"},
		Scores:      models.Scores{"clarity": 2.5},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ResultNeedsRevision, result.Status)
	assert.Equal(t, models.StringList{"add a worked example", "link the reference docs"}, result.Suggestions)
	assert.Equal(t, content.StatusNeedsRevision, f.contentStatus(ref))

	history, err := f.queue.History(f.ctx, ref)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StringList{"add a worked example", "link the reference docs"}, history[0].Suggestions)
	assert.Equal(t, 2.5, history[0].Scores["clarity"])
}

func TestSkipDoesNotNeedRequiredNote(t *testing.T) {
	f := newFixture(t)
	f.reviewer(1, 3)
	item := f.claimed(f.course(7), 1, models.Metadata{models.MetaRequiredNote: true})

	result, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionSkip})
	require.NoError(t, err)
	assert.Nil(t, result)

	skipped, err := f.queue.Get(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, skipped.Status)
	assert.Equal(t, 0, f.load(1))

	_, err = f.queue.Claim(f.ctx, item.ID, 1)
	require.NoError(t, err)
	_, err = f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionEscalate})
	assert.ErrorIs(t, err, ErrNotesRequired)
}

func TestInvalidDecision(t *testing.T) {
	f := newFixture(t)
	f.reviewer(1, 3)
	item := f.claimed(f.course(7), 1, nil)

	_, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: "publish"})
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestDecisionRequiresAuthorization(t *testing.T) {
	f := newFixture(t)
	f.reviewer(1, 3)
	item := f.claimed(f.course(7), 1, nil)

	denying := NewWorkflowService(Deps{
		Store:      f.store,
		Content:    content.NewDefaultRegistry(zap.NewNop()),
		Authorizer: AuthorizerFunc(func(context.Context, int64) (bool, error) { return false, nil }),
		Clock:      f.clock,
	})
	_, err := denying.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionApprove})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestEscalateDecisionFreesReviewer(t *testing.T) {
	f := newFixture(t)
	f.reviewer(1, 1)
	item := f.claimed(f.course(7), 1, nil)

	result, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionEscalate, Notes: "policy question"})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, f.load(1))

	escalated, err := f.queue.Get(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusEscalated, escalated.Status)
	assert.Equal(t, models.PriorityUrgent, escalated.Priority)
	assert.Contains(t, escalated.Notes, "policy question")

	history, err := f.queue.History(f.ctx, item.ContentRef)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryGrowsWithEachCompletedDecision(t *testing.T) {
	f := newFixture(t)
	f.reviewer(1, 3)
	ref := f.course(7)

	item := f.claimed(ref, 1, nil)
	_, err := f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: item.ID, ReviewerID: 1, Decision: models.DecisionRequestChanges, Notes: "first pass"})
	require.NoError(t, err)

	f.advance(time.Hour)
	resubmitted, err := f.queue.Resubmit(f.ctx, ref, 7, nil)
	require.NoError(t, err)
	_, err = f.queue.Claim(f.ctx, resubmitted.ID, 1)
	require.NoError(t, err)
	_, err = f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: resubmitted.ID, ReviewerID: 1, Decision: models.DecisionEscalate})
	require.NoError(t, err)
	_, err = f.queue.Claim(f.ctx, resubmitted.ID, 1)
	require.NoError(t, err)
	f.advance(time.Hour)
	_, err = f.workflow.ProcessDecision(f.ctx, DecisionInput{ItemID: resubmitted.ID, ReviewerID: 1, Decision: models.DecisionApprove})
	require.NoError(t, err)

	history, err := f.queue.History(f.ctx, ref)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.ResultNeedsRevision, history[0].Status)
	assert.Equal(t, models.ResultApproved, history[1].Status)
	assert.Equal(t, item.ID, history[0].QueueItemID)
	assert.Equal(t, resubmitted.ID, history[1].QueueItemID)

	_, err = f.queue.History(f.ctx, models.ContentRef{Type: "survey", ID: 1})
	assert.ErrorIs(t, err, ErrUnknownContentType)
}

func TestBulkApprovalIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.reviewer(1, 5)
	f.reviewer(2, 5)

	pending := f.submit(f.course(7), models.PriorityNormal, 0)
	mine := f.claimed(f.course(7), 1, nil)
	theirs := f.claimed(f.course(7), 2, nil)
	needsNote := f.claimed(f.course(7), 1, models.Metadata{models.MetaRequiredNote: true})

	results, err := f.workflow.ProcessBulkApproval(f.ctx, []string{pending.ID, mine.ID, theirs.ID, "missing", needsNote.ID}, 1, "")
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, models.ResultApproved, results[0].Result.Status)
	assert.NoError(t, results[1].Err)
	assert.ErrorIs(t, results[2].Err, ErrNotAssignedToReviewer)
	assert.NotEmpty(t, results[2].Error)
	assert.ErrorIs(t, results[3].Err, ErrItemNotFound)
	assert.ErrorIs(t, results[4].Err, ErrNotesRequired)

	for _, id := range []string{pending.ID, mine.ID} {
		item, err := f.queue.Get(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusCompleted, item.Status)
	}
	still, err := f.queue.Get(f.ctx, needsNote.ID)
	require.NoError(t, err)
	assert.True(t, still.IsAssignedTo(1))

	assert.Equal(t, 1, f.load(1))
	assert.Equal(t, 1, f.load(2))
	f.assertAssignmentInvariant()
}
