package models

import "time"

// QueueStatus is the moderation state of a queue item.
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusInReview  QueueStatus = "in_review"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusEscalated QueueStatus = "escalated"
)

// IsActive reports whether an item in this status still needs a decision.
func (s QueueStatus) IsActive() bool {
	return s == QueueStatusPending || s == QueueStatusInReview || s == QueueStatusEscalated
}

// Priority is independent of status and only affects ordering.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Weight orders priorities, higher is more urgent. Unknown values weigh zero.
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p.Weight() > 0
}

// ContentRef is a weak reference to content owned by another subsystem.
type ContentRef struct {
	Type string `db:"content_type" json:"content_type"`
	ID   int64  `db:"content_id" json:"content_id"`
}

// Metadata keys understood by the engine.
const (
	MetaRequiredNote   = "required_note"
	MetaResubmission   = "resubmission"
	MetaPreviousItemID = "previous_item_id"
	MetaEscalated      = "escalated"
)

// QueueItem is one unit of moderation work stored in the 'queue_items' table.
type QueueItem struct {
	ID          string      `db:"id" json:"id"`
	OrgID       int64       `db:"org_id" json:"org_id"`
	ContentRef              // content_type, content_id
	Status      QueueStatus `db:"status" json:"status"`
	Priority    Priority    `db:"priority" json:"priority"`
	AssignedTo  *int64      `db:"assigned_to" json:"assigned_to,omitempty"`
	SubmittedBy int64       `db:"submitted_by" json:"submitted_by"`
	SubmittedAt time.Time   `db:"submitted_at" json:"submitted_at"`
	StartedAt   *time.Time  `db:"started_at" json:"started_at,omitempty"`
	SLAHours    int         `db:"sla_hours" json:"sla_hours"`
	SLADeadline time.Time   `db:"sla_deadline" json:"sla_deadline"`
	Metadata    Metadata    `db:"metadata" json:"metadata"`
	Notes       string      `db:"notes" json:"notes"`
	Outcome     *string     `db:"outcome" json:"outcome,omitempty"`
	CompletedBy *int64      `db:"completed_by" json:"completed_by,omitempty"`
	CompletedAt *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	Version     int64       `db:"version" json:"version"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// RequiresNote reports whether decisions on this item must carry notes.
func (q *QueueItem) RequiresNote() bool {
	return q.Metadata.Bool(MetaRequiredNote)
}

// IsAssignedTo reports whether the item is currently in review by reviewerID.
func (q *QueueItem) IsAssignedTo(reviewerID int64) bool {
	return q.Status == QueueStatusInReview && q.AssignedTo != nil && *q.AssignedTo == reviewerID
}
