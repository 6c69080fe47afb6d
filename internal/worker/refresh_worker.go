// Package worker reacts to change notifications from other processes by
// reloading the affected owners' records.
package worker

import (
	"context"
	"errors"
	"time"

	"tally/internal/log"
)

// Refresher reloads the records of subscribed owners.
type Refresher interface {
	Refresh(ownerID string)
	RefreshAll()
}

// ChangeConsumer delivers owner ids whose records changed elsewhere.
type ChangeConsumer interface {
	ConsumeChanges(ctx context.Context, handler func(ownerID string) error) error
}

// RefreshWorker keeps local subscriptions current with writes made by
// other processes.
type RefreshWorker struct {
	refresher Refresher
	interval  time.Duration
	logger    *log.Logger
}

// NewRefreshWorker creates a worker. A positive interval also reloads every
// subscribed owner periodically, covering notifications that were lost.
func NewRefreshWorker(refresher Refresher, interval time.Duration, logger *log.Logger) *RefreshWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &RefreshWorker{
		refresher: refresher,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleChange processes a single change notification.
func (w *RefreshWorker) HandleChange(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return errors.New("change notification without owner")
	}
	w.logger.DebugContext(ctx, "Processing change notification", log.FieldOwner, ownerID)
	w.refresher.Refresh(ownerID)
	return nil
}

// Run consumes notifications and runs the periodic reload until ctx is
// done. It returns the consumer's error, or nil on cancellation.
func (w *RefreshWorker) Run(ctx context.Context, consumer ChangeConsumer) error {
	if w.interval > 0 {
		go w.resync(ctx)
	}

	err := consumer.ConsumeChanges(ctx, func(ownerID string) error {
		return w.HandleChange(ctx, ownerID)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("Change consumer stopped", log.FieldError, err.Error())
		return err
	}
	return nil
}

func (w *RefreshWorker) resync(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.logger.Debug("Periodic reload of subscribed owners")
			w.refresher.RefreshAll()
		case <-ctx.Done():
			return
		}
	}
}
