package models

import "time"

// ResultStatus is the content verdict recorded by a completed decision.
type ResultStatus string

const (
	ResultApproved      ResultStatus = "approved"
	ResultRejected      ResultStatus = "rejected"
	ResultNeedsRevision ResultStatus = "needs_revision"
)

// ModerationResult is an append-only record stored in 'moderation_results'.
type ModerationResult struct {
	ID          string       `db:"id" json:"id"`
	OrgID       int64        `db:"org_id" json:"org_id"`
	QueueItemID string       `db:"queue_item_id" json:"queue_item_id"`
	ContentRef               // content_type, content_id
	Status      ResultStatus `db:"status" json:"status"`
	ReviewerID  int64        `db:"reviewer_id" json:"reviewer_id"`
	Feedback    string       `db:"feedback" json:"feedback"`
	Suggestions StringList   `db:"suggestions" json:"suggestions"`
	Scores      Scores       `db:"scores" json:"scores,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// Decision is the reviewer action submitted against an item.
type Decision string

const (
	DecisionApprove        Decision = "approve"
	DecisionReject         Decision = "reject"
	DecisionRequestChanges Decision = "request_changes"
	DecisionEscalate       Decision = "escalate"
	DecisionSkip           Decision = "skip"
)

// ResultStatus maps completing decisions to the verdict they record.
// The second return value is false for routing decisions (escalate, skip)
// and unknown values.
func (d Decision) ResultStatus() (ResultStatus, bool) {
	switch d {
	case DecisionApprove:
		return ResultApproved, true
	case DecisionReject:
		return ResultRejected, true
	case DecisionRequestChanges:
		return ResultNeedsRevision, true
	}
	return "", false
}

// Valid reports whether d is a recognised decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestChanges, DecisionEscalate, DecisionSkip:
		return true
	}
	return false
}
