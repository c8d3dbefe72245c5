// Package validation runs the case validation saga: policy, profile,
// per-evidence extraction, reasoning, and the single terminal commit.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kycgate/internal/audit"
	"kycgate/internal/capability"
	"kycgate/internal/cases/models"
	"kycgate/internal/objectstore"
	"kycgate/internal/policy"
	"kycgate/internal/profile"
	"kycgate/pkg/platform/sentinel"
	"kycgate/pkg/requestcontext"
)

// CaseStore is the case persistence the orchestrator needs.
type CaseStore interface {
	FindByID(ctx context.Context, caseID string) (*models.Case, error)
	Save(ctx context.Context, c *models.Case) error
}

// DiscrepancyStore is the discrepancy persistence the orchestrator needs.
type DiscrepancyStore interface {
	ClearOpen(ctx context.Context, caseID string, now time.Time) (int, error)
	Create(ctx context.Context, d *models.Discrepancy) error
}

// EvidenceStore loads evidence records by id.
type EvidenceStore interface {
	FindByIDs(ctx context.Context, evidenceIDs []string) ([]*models.Evidence, error)
}

// PolicyResolver maps a category to its rules.
type PolicyResolver interface {
	GetCategoryRules(ctx context.Context, categoryID string) (policy.CategoryRules, error)
}

// TxRunner runs fn atomically.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Dependencies are the collaborators of a run.
type Dependencies struct {
	Cases         CaseStore
	Evidence      EvidenceStore
	Discrepancies DiscrepancyStore
	Policy        PolicyResolver
	Profiles      profile.Provider
	Objects       objectstore.Store
	Capabilities  capability.Set
	Tx            TxRunner
}

func (d Dependencies) validate() error {
	switch {
	case d.Cases == nil:
		return errors.New("case store is required")
	case d.Evidence == nil:
		return errors.New("evidence store is required")
	case d.Discrepancies == nil:
		return errors.New("discrepancy store is required")
	case d.Policy == nil:
		return errors.New("policy resolver is required")
	case d.Profiles == nil:
		return errors.New("profile provider is required")
	case d.Objects == nil:
		return errors.New("object store is required")
	case d.Tx == nil:
		return errors.New("tx runner is required")
	}
	return d.Capabilities.Validate()
}

type options struct {
	logger                *slog.Logger
	audit                 *audit.Publisher
	locker                Locker
	targetLanguage        string
	callTimeout           time.Duration
	lockTimeout           time.Duration
	deterministicFallback bool
	defaultCountry        string
	defaultRiskTier       string
}

// Option configures the Orchestrator.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithAuditPublisher(p *audit.Publisher) Option {
	return func(o *options) {
		o.audit = p
	}
}

// WithLocker replaces the in-process ShardedLocker.
func WithLocker(l Locker) Option {
	return func(o *options) {
		o.locker = l
	}
}

func WithTargetLanguage(lang string) Option {
	return func(o *options) {
		if lang != "" {
			o.targetLanguage = lang
		}
	}
}

// WithCallTimeout bounds each external call made during a run.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) {
		o.callTimeout = d
	}
}

// WithLockTimeout bounds the wait for the per-case lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// WithDeterministicFallback enables the form-vs-profile dob check when the
// reasoner reports nothing.
func WithDeterministicFallback(enabled bool) Option {
	return func(o *options) {
		o.deterministicFallback = enabled
	}
}

// WithContextDefaults sets country and risk tier for cases whose form omits them.
func WithContextDefaults(country, riskTier string) Option {
	return func(o *options) {
		o.defaultCountry = country
		o.defaultRiskTier = riskTier
	}
}

// Orchestrator drives one validation run per call.
type Orchestrator struct {
	deps     Dependencies
	opts     options
	logger   *slog.Logger
	pipeline *Pipeline
	engine   *Engine
}

func New(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("validation orchestrator: %w", err)
	}
	o := options{
		logger:          slog.Default(),
		targetLanguage:  "en",
		callTimeout:     30 * time.Second,
		lockTimeout:     30 * time.Second,
		defaultCountry:  "IN",
		defaultRiskTier: "medium",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locker == nil {
		o.locker = NewShardedLocker()
	}
	return &Orchestrator{
		deps:     deps,
		opts:     o,
		logger:   o.logger,
		pipeline: newPipeline(deps.Capabilities, deps.Objects, &o),
		engine:   newEngine(deps.Capabilities.Reasoner, &o),
	}, nil
}

// RunOutcome summarizes a run for logs and the scheduler.
type RunOutcome struct {
	CaseID        string
	Status        models.Status
	Discrepancies int
	Skipped       bool
	SkipReason    string
	// Retryable marks failures a later trigger may clear on its own.
	Retryable bool
}

func (r RunOutcome) label(err error) string {
	switch {
	case r.Skipped && r.SkipReason == skipNotFound:
		return "not_found"
	case r.Skipped:
		return "skipped"
	case err != nil:
		return "failed"
	case r.Status == models.StatusValidated:
		return "validated"
	default:
		return "action_required"
	}
}

const skipNotFound = "not_found"

// Run is the scheduler entry point. It never panics and never returns an
// error; failures end in a logged, well-defined case status.
func (o *Orchestrator) Run(ctx context.Context, caseID string) {
	defer func() {
		if r := recover(); r != nil {
			runOutcomes.WithLabelValues("panic").Inc()
			o.logger.ErrorContext(ctx, "validation run panicked",
				"case_id", caseID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			o.markFailed(context.WithoutCancel(ctx), caseID)
		}
	}()

	out, err := o.Execute(ctx, caseID)
	runOutcomes.WithLabelValues(out.label(err)).Inc()
	if err != nil {
		o.logger.ErrorContext(ctx, "validation run failed",
			"case_id", caseID,
			"status", out.Status,
			"retryable", out.Retryable,
			"error", err,
		)
		return
	}
	if out.Skipped {
		o.logger.InfoContext(ctx, "validation run skipped",
			"case_id", caseID,
			"reason", out.SkipReason,
		)
		return
	}
	o.logger.InfoContext(ctx, "validation run completed",
		"case_id", caseID,
		"status", out.Status,
		"discrepancies", out.Discrepancies,
	)
}

// Execute performs one run and reports how it ended. A missing case or a
// case not in VALIDATING is a skipped no-op.
func (o *Orchestrator) Execute(ctx context.Context, caseID string) (RunOutcome, error) {
	ctx, span := tracer.Start(ctx, "validation.run", trace.WithAttributes(attribute.String("case.id", caseID)))
	defer span.End()
	out := RunOutcome{CaseID: caseID}

	unlock, err := o.lock(ctx, caseID)
	if err != nil {
		return out, fmt.Errorf("lock case %s: %w", caseID, err)
	}
	defer unlock()

	c, err := o.deps.Cases.FindByID(ctx, caseID)
	if errors.Is(err, sentinel.ErrNotFound) {
		out.Skipped, out.SkipReason = true, skipNotFound
		return out, nil
	}
	if err != nil {
		return out, recordSpanError(span, fmt.Errorf("load case: %w", err))
	}
	out.Status = c.Status
	if c.Status != models.StatusValidating {
		out.Skipped, out.SkipReason = true, "status "+string(c.Status)
		return out, nil
	}
	o.emitRun(ctx, c.ID, audit.ActionValidationStarted, nil)

	out, err = o.execute(ctx, c, out)
	if err != nil {
		recordSpanError(span, err)
	}
	o.emitRun(ctx, c.ID, audit.ActionValidationFinished, map[string]any{
		"status":        string(out.Status),
		"discrepancies": out.Discrepancies,
		"retryable":     out.Retryable,
		"failed":        err != nil,
	})
	return out, err
}

func (o *Orchestrator) execute(ctx context.Context, c *models.Case, out RunOutcome) (RunOutcome, error) {
	err := o.stage(ctx, "clear_discrepancies", func(ctx context.Context) error {
		_, err := o.deps.Discrepancies.ClearOpen(ctx, c.ID, requestcontext.Now(ctx))
		return err
	})
	if err != nil {
		return o.fail(ctx, c, out, fmt.Errorf("clear open discrepancies: %w", err))
	}

	var rules policy.CategoryRules
	err = o.stage(ctx, "policy", func(ctx context.Context) error {
		var err error
		rules, err = o.deps.Policy.GetCategoryRules(ctx, c.CategoryID)
		return err
	})
	if errors.Is(err, policy.ErrPolicyNotFound) {
		return o.finish(ctx, c, out, []*models.Discrepancy{unknownCategory(ctx, c)})
	}
	if err != nil {
		return o.fail(ctx, c, out, fmt.Errorf("resolve policy: %w", err))
	}

	var prof models.NormalizedProfile
	err = o.stage(ctx, "profile", func(ctx context.Context) error {
		callCtx, cancel := bounded(ctx, o.opts.callTimeout)
		defer cancel()
		start := time.Now()
		var err error
		prof, err = o.deps.Profiles.FetchCustomerProfile(callCtx, c.CustomerID)
		observeCall("profile", err, time.Since(start))
		return err
	})
	if err != nil {
		out.Retryable = true
		return o.fail(ctx, c, out, fmt.Errorf("fetch profile: %w", err))
	}

	var evidences []*models.Evidence
	if len(c.EvidenceIDs) > 0 {
		err = o.stage(ctx, "load_evidence", func(ctx context.Context) error {
			var err error
			evidences, err = o.deps.Evidence.FindByIDs(ctx, c.EvidenceIDs)
			return err
		})
		if err != nil {
			return o.fail(ctx, c, out, fmt.Errorf("load evidence: %w", err))
		}
	}
	caseCtx := o.buildContext(c, prof, evidences)

	var result PipelineResult
	_ = o.stage(ctx, "evidence_pipeline", func(ctx context.Context) error {
		result = o.pipeline.Process(ctx, c, c.EvidenceIDs, evidences, rules)
		return nil
	})
	if result.Aborted() {
		if err := ctx.Err(); err != nil {
			out.Retryable = true
			return o.fail(ctx, c, out, fmt.Errorf("validation run interrupted: %w", err))
		}
		return o.finish(ctx, c, out, []*models.Discrepancy{result.Abort})
	}
	caseCtx.FormPayload[EvidenceBundleKey] = result.Bundle

	var found []*models.Discrepancy
	err = o.stage(ctx, "reasoning", func(ctx context.Context) error {
		var err error
		found, err = o.engine.Evaluate(ctx, caseCtx)
		return err
	})
	if err != nil {
		out.Retryable = ctx.Err() != nil
		return o.fail(ctx, c, out, err)
	}
	return o.finish(ctx, c, out, found)
}

func (o *Orchestrator) buildContext(c *models.Case, prof models.NormalizedProfile, evidences []*models.Evidence) capability.CaseContext {
	payload := c.PayloadCopy()
	country, _ := payload["country"].(string)
	if country == "" {
		country = o.opts.defaultCountry
	}
	riskTier, _ := payload["risk_tier"].(string)
	if riskTier == "" {
		riskTier = o.opts.defaultRiskTier
	}
	descriptors := make([]capability.EvidenceDescriptor, 0, len(evidences))
	for _, ev := range evidences {
		descriptors = append(descriptors, Descriptor(ev))
	}
	return capability.CaseContext{
		CaseID:        c.ID,
		CategoryID:    c.CategoryID,
		PolicyVersion: c.PolicyVersion,
		Country:       country,
		RiskTier:      riskTier,
		Profile:       prof,
		FormPayload:   payload,
		Evidences:     descriptors,
	}
}

// finish commits ACTION_REQUIRED when ds is non-empty, VALIDATED otherwise.
// The commit outlives ctx: once the open set has been cleared the case must
// not be left in VALIDATING.
func (o *Orchestrator) finish(ctx context.Context, c *models.Case, out RunOutcome, ds []*models.Discrepancy) (RunOutcome, error) {
	status := models.StatusValidated
	if len(ds) > 0 {
		status = models.StatusActionRequired
	}
	if err := o.commit(context.WithoutCancel(ctx), c, status, ds, ""); err != nil {
		out.Status = c.Status
		return out, err
	}
	out.Status = c.Status
	out.Discrepancies = len(ds)
	return out, nil
}

// fail moves the case to ACTION_REQUIRED with no discrepancies so it does
// not sit in VALIDATING, then returns cause.
func (o *Orchestrator) fail(ctx context.Context, c *models.Case, out RunOutcome, cause error) (RunOutcome, error) {
	if err := o.commit(context.WithoutCancel(ctx), c, models.StatusActionRequired, nil, cause.Error()); err != nil {
		o.logger.ErrorContext(ctx, "failed to move case out of VALIDATING",
			"case_id", c.ID,
			"error", err,
		)
	}
	out.Status = c.Status
	return out, cause
}

// commit replaces the open discrepancy set and saves the new status in one
// transaction. c is updated only when the transaction succeeds.
func (o *Orchestrator) commit(ctx context.Context, c *models.Case, status models.Status, ds []*models.Discrepancy, reason string) error {
	now := requestcontext.Now(ctx)
	updated := c.Clone()
	if err := updated.TransitionTo(status, now); err != nil {
		o.logger.ErrorContext(ctx, "illegal status change attempted by validation run",
			"case_id", c.ID,
			"from", c.Status,
			"to", status,
			"error", err,
		)
		return err
	}

	err := o.stage(ctx, "commit", func(ctx context.Context) error {
		return o.deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := o.deps.Discrepancies.ClearOpen(ctx, c.ID, now); err != nil {
				return fmt.Errorf("clear open discrepancies: %w", err)
			}
			for _, d := range ds {
				if err := o.deps.Discrepancies.Create(ctx, d); err != nil {
					return fmt.Errorf("create discrepancy %s: %w", d.Field, err)
				}
			}
			if err := o.deps.Cases.Save(ctx, updated); err != nil {
				return fmt.Errorf("save case: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	from := c.Status
	*c = *updated
	for _, d := range ds {
		discrepanciesRecorded.WithLabelValues(string(d.Severity)).Inc()
	}
	_ = o.opts.audit.Emit(ctx, audit.Transition(c.ID, string(from), string(status), reason))
	return nil
}

// markFailed is the panic path: reload the case and move it out of
// VALIDATING if it is still there.
func (o *Orchestrator) markFailed(ctx context.Context, caseID string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "recovery after panic also panicked", "case_id", caseID, "panic", r)
		}
	}()
	unlock, err := o.lock(ctx, caseID)
	if err != nil {
		o.logger.ErrorContext(ctx, "could not lock case after panic", "case_id", caseID, "error", err)
		return
	}
	defer unlock()

	c, err := o.deps.Cases.FindByID(ctx, caseID)
	if err != nil || c.Status != models.StatusValidating {
		return
	}
	if err := o.commit(ctx, c, models.StatusActionRequired, nil, "validation run panicked"); err != nil {
		o.logger.ErrorContext(ctx, "failed to move case out of VALIDATING after panic",
			"case_id", caseID,
			"error", err,
		)
	}
}

func (o *Orchestrator) lock(ctx context.Context, caseID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, o.opts.lockTimeout)
	defer cancel()
	start := time.Now()
	unlock, err := o.opts.locker.Lock(lockCtx, caseID)
	lockWait.Observe(time.Since(start).Seconds())
	return unlock, err
}

func (o *Orchestrator) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "validation."+name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	stageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

func (o *Orchestrator) emitRun(ctx context.Context, caseID, action string, payload map[string]any) {
	_ = o.opts.audit.Emit(ctx, audit.Event{
		CaseID:  caseID,
		Type:    audit.EventValidationRun,
		Action:  action,
		Payload: payload,
	})
}

func unknownCategory(ctx context.Context, c *models.Case) *models.Discrepancy {
	d := models.NewDiscrepancy(c.ID, "category_id",
		fmt.Sprintf("No policy is configured for category '%s'.", c.CategoryID),
		models.SeverityHigh,
		requestcontext.Now(ctx),
	)
	d.ReceivedValue = models.StrPtr(c.CategoryID)
	d.ResolutionRequired = map[string]any{"action": "contact_support"}
	return d
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
