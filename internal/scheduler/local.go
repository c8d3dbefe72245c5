package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"kycgate/pkg/requestcontext"
)

const backendLocal = "local"

// Local is an in-process queue drained by a fixed pool of workers.
type Local struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	queue   chan Trigger
	done    chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

type LocalOption func(*Local)

func WithLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

func WithWorkers(n int) LocalOption {
	return func(l *Local) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithBuffer sets how many triggers may wait before Enqueue blocks.
func WithBuffer(n int) LocalOption {
	return func(l *Local) {
		if n > 0 {
			l.queue = make(chan Trigger, n)
		}
	}
}

func NewLocal(runner Runner, opts ...LocalOption) *Local {
	l := &Local{
		runner:  runner,
		logger:  slog.Default(),
		workers: 4,
		queue:   make(chan Trigger, 256),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enqueue blocks while the buffer is full, until ctx is done or the queue
// shuts down.
func (l *Local) Enqueue(ctx context.Context, caseID string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrQueueClosed
	}
	t := Trigger{
		CaseID:      caseID,
		RequestID:   requestcontext.RequestID(ctx),
		RequestedAt: requestcontext.Now(ctx),
	}
	select {
	case l.queue <- t:
		enqueued.WithLabelValues(backendLocal).Inc()
		return nil
	case <-l.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the workers until ctx is done, then drains what is already queued.
func (l *Local) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for range l.workers {
		g.Go(func() error {
			l.work(gctx)
			return nil
		})
	}
	<-ctx.Done()
	l.close()
	err := g.Wait()

	drainCtx := context.WithoutCancel(ctx)
	for t := range l.queue {
		l.dispatch(drainCtx, t)
	}
	return err
}

func (l *Local) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-l.queue:
			if !ok {
				return
			}
			l.dispatch(ctx, t)
		}
	}
}

func (l *Local) dispatch(ctx context.Context, t Trigger) {
	if t.RequestID != "" {
		ctx = requestcontext.WithRequestID(ctx, t.RequestID)
	}
	l.runner.Run(ctx, t.CaseID)
	dispatched.WithLabelValues(backendLocal, "ok").Inc()
}

// close wakes blocked senders before taking the write lock, so shutdown
// never waits on a caller's ctx.
func (l *Local) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		defer l.mu.Unlock()
		l.closed = true
		close(l.queue)
	})
}
