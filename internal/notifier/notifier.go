// Package notifier delivers moderation events to content owners and reviewers.
// Delivery is best-effort: callers enqueue and move on, failures are logged.
package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event names a moderation occurrence a user may be told about.
type Event string

const (
	EventDecisionRecorded Event = "moderation.decision_recorded"
	EventItemEscalated    Event = "moderation.item_escalated"
	EventItemAssigned     Event = "moderation.item_assigned"
)

// Payload carries event details; values must be JSON-encodable.
type Payload map[string]any

// Message is one queued notification.
type Message struct {
	UserID  int64     `json:"user_id"`
	Event   Event     `json:"event"`
	Payload Payload   `json:"payload"`
	At      time.Time `json:"at"`
}

// Notifier is the collaborator the workflow engine calls. Implementations
// must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, userID int64, event Event, payload Payload)
}

// Sender performs one delivery attempt over a single channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, int64, Event, Payload) {}

// LogSender writes notifications to the application log.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("Notification",
		zap.Int64("user_id", msg.UserID),
		zap.String("event", string(msg.Event)),
		zap.Any("payload", msg.Payload),
	)
	return nil
}
