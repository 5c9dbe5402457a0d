package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is reported when the dispatcher cannot accept more work.
var ErrQueueFull = errors.New("notification queue full")

// DispatcherOptions tunes the worker pool.
type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

// Dispatcher fans each message out to every sender from a fixed pool of
// workers, retrying failed sends per sender.
type Dispatcher struct {
	senders     []Sender
	jobs        chan Message
	workers     int
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher constructs a dispatcher. Call Start before Notify has any effect.
func NewDispatcher(opts DispatcherOptions, logger *zap.Logger, senders ...Sender) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		senders:     senders,
		jobs:        make(chan Message, opts.QueueSize),
		workers:     opts.Workers,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches worker goroutines.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.workerLoop()
		}
	})
}

// Stop stops accepting messages, drains the queue and waits for workers.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()

		d.wg.Wait()
		d.cancel()
	})
}

// Notify implements Notifier. It never blocks; a full or stopped queue drops
// the message with a warning.
func (d *Dispatcher) Notify(_ context.Context, userID int64, event Event, payload Payload) {
	msg := Message{UserID: userID, Event: event, Payload: payload, At: d.now()}
	if err := d.Enqueue(msg); err != nil {
		d.logger.Warn("Dropping notification",
			zap.Int64("user_id", userID),
			zap.String("event", string(event)),
			zap.Error(err),
		)
	}
}

// Enqueue queues a message for delivery.
func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.New("notification dispatcher stopped")
	}

	select {
	case d.jobs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) workerLoop() {
	defer d.wg.Done()
	for msg := range d.jobs {
		for _, sender := range d.senders {
			d.deliver(sender, msg)
		}
	}
}

func (d *Dispatcher) deliver(sender Sender, msg Message) {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err = sender.Send(d.ctx, msg); err == nil {
			return
		}

		d.logger.Warn("Notification attempt failed",
			zap.String("sender", sender.Name()),
			zap.Int64("user_id", msg.UserID),
			zap.String("event", string(msg.Event)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-time.After(d.retryDelay * time.Duration(attempt)):
		case <-d.ctx.Done():
			return
		}
	}

	d.logger.Error("Giving up on notification",
		zap.String("sender", sender.Name()),
		zap.Int64("user_id", msg.UserID),
		zap.String("event", string(msg.Event)),
		zap.Error(err),
	)
}
