package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kycgate/internal/audit"
	"kycgate/internal/capability"
	"kycgate/internal/cases/models"
	"kycgate/internal/profile"
	"kycgate/pkg/requestcontext"
)

// ErrReasoning wraps a reasoner failure that survived its retries.
var ErrReasoning = errors.New("reasoning failed")

const defaultDiscrepancyMessage = "Discrepancy detected"

// Engine turns a populated case context into the run's discrepancy set.
type Engine struct {
	reasoner    capability.Reasoner
	audit       *audit.Publisher
	logger      *slog.Logger
	fallback    bool
	callTimeout time.Duration
}

func newEngine(reasoner capability.Reasoner, o *options) *Engine {
	return &Engine{
		reasoner:    reasoner,
		audit:       o.audit,
		logger:      o.logger,
		fallback:    o.deterministicFallback,
		callTimeout: o.callTimeout,
	}
}

// Evaluate calls the reasoner and converts its findings. Every severity is
// parsed before anything is returned, so an unknown label yields no
// discrepancies at all. The call timeout bounds each reasoner attempt; the
// retry loop as a whole is bounded by ctx.
func (e *Engine) Evaluate(ctx context.Context, caseCtx capability.CaseContext) ([]*models.Discrepancy, error) {
	start := time.Now()
	result, err := e.reasoner.Reason(capability.WithAttemptTimeout(ctx, e.callTimeout), caseCtx)
	elapsed := time.Since(start)
	observeCall("reasoner", err, elapsed)
	emitInvocation(ctx, e.audit, caseCtx.CaseID, "", "reasoner", err, elapsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReasoning, err)
	}

	now := requestcontext.Now(ctx)
	out := make([]*models.Discrepancy, 0, len(result.Discrepancies))
	for i, item := range result.Discrepancies {
		severity, err := models.ParseSeverity(item.Severity)
		if err != nil {
			return nil, fmt.Errorf("reasoner item %d field %q: %w", i, item.Field, err)
		}
		message := item.Explanation
		if message == "" {
			message = defaultDiscrepancyMessage
		}
		d := models.NewDiscrepancy(caseCtx.CaseID, item.Field, message, severity, now)
		d.ExpectedValue = item.Expected
		d.ReceivedValue = item.Received
		d.ResolutionRequired = item.ResolutionRequired
		out = append(out, d)
	}

	if len(out) == 0 && e.fallback {
		if d := dobFallback(caseCtx, now); d != nil {
			e.logger.InfoContext(ctx, "deterministic dob check flagged case",
				"case_id", caseCtx.CaseID,
			)
			out = append(out, d)
		}
	}
	return out, nil
}

// dobFallback compares the customer-declared dob with the profile. It only
// runs when the reasoner found nothing.
func dobFallback(caseCtx capability.CaseContext, now time.Time) *models.Discrepancy {
	raw, ok := caseCtx.FormPayload["dob"].(string)
	if !ok || raw == "" || caseCtx.Profile.DOB == "" {
		return nil
	}
	declared := raw
	if normalized, err := profile.NormalizeDOB(raw); err == nil {
		declared = normalized
	}
	if declared == caseCtx.Profile.DOB {
		return nil
	}
	d := models.NewDiscrepancy(caseCtx.CaseID, "dob", "DOB mismatch with customer profile", models.SeverityCritical, now)
	d.ExpectedValue = models.StrPtr(caseCtx.Profile.DOB)
	d.ReceivedValue = models.StrPtr(raw)
	d.ResolutionRequired = map[string]any{"action": "update_form"}
	return d
}
