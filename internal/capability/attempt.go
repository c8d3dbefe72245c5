package capability

import (
	"context"
	"time"
)

type attemptTimeoutKey struct{}

// WithAttemptTimeout records the bound a capability applies to each backend
// attempt. The overall call stays bounded by ctx alone.
func WithAttemptTimeout(ctx context.Context, d time.Duration) context.Context {
	if d <= 0 {
		return ctx
	}
	return context.WithValue(ctx, attemptTimeoutKey{}, d)
}

// AttemptTimeout returns the per-attempt bound carried by ctx, or zero.
func AttemptTimeout(ctx context.Context) time.Duration {
	d, _ := ctx.Value(attemptTimeoutKey{}).(time.Duration)
	return d
}

// AttemptContext derives the context for one attempt.
func AttemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := AttemptTimeout(ctx); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
