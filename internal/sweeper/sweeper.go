// Package sweeper periodically escalates pending items that missed their SLA.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"moderation-service/internal/models"
	"moderation-service/internal/service"
)

// Queue is the part of the queue service the sweeper drives.
type Queue interface {
	OverduePending(ctx context.Context, limit int) ([]*models.QueueItem, error)
	Escalate(ctx context.Context, id, reason string, actorID int64) (*models.QueueItem, error)
}

// Sweeper escalates overdue pending items on an interval.
type Sweeper struct {
	queue     Queue
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewSweeper creates a new SLA sweeper.
func NewSweeper(queue Queue, interval time.Duration, batchSize int, logger *zap.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		queue:     queue,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("SLA sweeper started.", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SLA sweeper stopped.")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("SLA sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep escalates one batch and returns how many items were escalated.
// Items that changed state concurrently are skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	items, err := s.queue.OverduePending(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, item := range items {
		reason := fmt.Sprintf("SLA deadline %s missed", item.SLADeadline.UTC().Format(time.RFC3339))
		_, err := s.queue.Escalate(ctx, item.ID, reason, 0)
		switch {
		case err == nil:
			escalated++
		case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrItemNotFound):
			s.logger.Debug("Overdue item changed before escalation", zap.String("item_id", item.ID), zap.Error(err))
		default:
			s.logger.Error("Failed to escalate overdue item", zap.String("item_id", item.ID), zap.Error(err))
		}
	}

	if escalated > 0 {
		s.logger.Info("Escalated overdue items", zap.Int("count", escalated))
	}
	return escalated, nil
}
