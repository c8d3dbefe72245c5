package audit

import (
	"context"
	"log/slog"
	"time"
)

// drainTimeout bounds each store write made by Drain.
const drainTimeout = 5 * time.Second

// Worker consumes audit events from a channel and persists them.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run persists events until ctx is done or the inbox is closed.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.persist(ctx, event)
		}
	}
}

// Drain persists events until the inbox is closed.
func (w *Worker) Drain() {
	for event := range w.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		w.persist(ctx, event)
		cancel()
	}
}

func (w *Worker) persist(ctx context.Context, event Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to persist audit event",
			"case_id", event.CaseID,
			"action", event.Action,
			"error", err,
		)
	}
}
