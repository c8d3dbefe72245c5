package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kycgate/pkg/requestcontext"
)

var droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kyc_audit_events_dropped_total",
	Help: "Audit events dropped because the async buffer was full",
})

// Publisher records audit events. Without a buffer, Emit writes through to
// the store. With WithAsyncBuffer, events are queued for a Worker and Emit
// never blocks the caller.
type Publisher struct {
	store  Store
	logger *slog.Logger
	inbox  chan Event
	wg     sync.WaitGroup
	once   sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithAsyncBuffer queues up to size events and drains them on a background worker.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		w := NewWorker(store, p.inbox, p.logger)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Drain()
		}()
	}
	return p
}

// Emit fills id, timestamp, actor and request id from ctx when unset.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.ActorType == "" {
		actor := requestcontext.ActorFrom(ctx)
		event.ActorType, event.ActorID = actor.Type, actor.ID
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
	default:
		droppedEvents.Inc()
		p.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"case_id", event.CaseID,
			"action", event.Action,
		)
	}
	return nil
}

func (p *Publisher) List(ctx context.Context, caseID string) ([]Event, error) {
	return p.store.ListByCase(ctx, caseID)
}

// Close stops accepting async events and waits for the buffer to drain.
func (p *Publisher) Close() {
	if p == nil || p.inbox == nil {
		return
	}
	p.once.Do(func() {
		close(p.inbox)
		p.wg.Wait()
	})
}
