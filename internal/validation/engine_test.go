package validation

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/internal/capability"
	"kycgate/internal/capability/llm"
)

// stallingGenerator hangs on its first reasoner call until that attempt's
// deadline and answers normally afterwards.
type stallingGenerator struct {
	calls atomic.Int32
}

func (g *stallingGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	if g.calls.Add(1) == 1 {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return `{"discrepancies":[],"overall_confidence":0.9,"summary":"ok"}`, nil
}

func TestEngineRetriesTimedOutReasonerAttempt(t *testing.T) {
	gen := &stallingGenerator{}
	set := llm.NewSet("scripted", gen, llm.WithRetryPolicy(llm.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}))
	engine := newEngine(set.Reasoner, &options{callTimeout: 50 * time.Millisecond, logger: slog.Default()})

	found, err := engine.Evaluate(context.Background(), capability.CaseContext{CaseID: "INT-1"})
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestEngineStopsWhenRunIsCancelled(t *testing.T) {
	gen := &stallingGenerator{}
	set := llm.NewSet("scripted", gen, llm.WithRetryPolicy(llm.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}))
	engine := newEngine(set.Reasoner, &options{callTimeout: time.Minute, logger: slog.Default()})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := engine.Evaluate(ctx, capability.CaseContext{CaseID: "INT-1"})
	require.ErrorIs(t, err, ErrReasoning)
	assert.Equal(t, int32(1), gen.calls.Load())
}
