// Package service implements the case lifecycle around validation: opening a
// case, registering evidence, submission and resubmission, and the review
// hand-off after a case validates.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kycgate/internal/audit"
	"kycgate/internal/cases/models"
	"kycgate/internal/objectstore"
	"kycgate/internal/platform/metrics"
	"kycgate/internal/policy"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/sentinel"
)

type CaseStore interface {
	Create(ctx context.Context, c *models.Case) error
	FindByID(ctx context.Context, caseID string) (*models.Case, error)
	Save(ctx context.Context, c *models.Case) error
	ListByCustomer(ctx context.Context, customerID string) ([]*models.Case, error)
}

type EvidenceStore interface {
	Create(ctx context.Context, ev *models.Evidence) error
	FindByID(ctx context.Context, evidenceID string) (*models.Evidence, error)
	FindByIDs(ctx context.Context, evidenceIDs []string) ([]*models.Evidence, error)
	Update(ctx context.Context, ev *models.Evidence) error
}

type DiscrepancyStore interface {
	ListOpen(ctx context.Context, caseID string) ([]*models.Discrepancy, error)
}

// PolicyCatalog answers what a category requires.
type PolicyCatalog interface {
	Version() string
	ListCategories(ctx context.Context) []policy.Category
	GetRequirements(ctx context.Context, categoryID, country, riskTier string) (policy.Requirements, error)
}

// Scheduler queues a validation run for a case.
type Scheduler interface {
	Enqueue(ctx context.Context, caseID string) error
}

// Locker serializes lifecycle writes with validation runs on the same case.
type Locker interface {
	Lock(ctx context.Context, caseID string) (func(), error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Dependencies are the collaborators of the lifecycle service.
type Dependencies struct {
	Cases         CaseStore
	Evidence      EvidenceStore
	Discrepancies DiscrepancyStore
	Policy        PolicyCatalog
	Objects       objectstore.Store
	Scheduler     Scheduler
	Locker        Locker
	Tx            TxRunner
}

// Service owns every lifecycle transition except the ones a validation run
// makes.
type Service struct {
	Dependencies
	logger      *slog.Logger
	audit       *audit.Publisher
	metrics     *metrics.Metrics
	lockTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLockTimeout bounds how long a lifecycle write waits for a running
// validation to release the case.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func New(deps Dependencies, opts ...Option) (*Service, error) {
	switch {
	case deps.Cases == nil, deps.Evidence == nil, deps.Discrepancies == nil:
		return nil, errors.New("case, evidence and discrepancy stores are required")
	case deps.Policy == nil:
		return nil, errors.New("policy catalog is required")
	case deps.Objects == nil:
		return nil, errors.New("object store is required")
	case deps.Scheduler == nil:
		return nil, errors.New("scheduler is required")
	case deps.Locker == nil:
		return nil, errors.New("locker is required")
	case deps.Tx == nil:
		return nil, errors.New("tx runner is required")
	}
	s := &Service{
		Dependencies: deps,
		logger:       slog.Default(),
		lockTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) loadCase(ctx context.Context, caseID string) (*models.Case, error) {
	c, err := s.Cases.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}
	return c, nil
}

// lock waits briefly for the case. A validation run holding it surfaces as a
// conflict rather than a long stall.
func (s *Service) lock(ctx context.Context, caseID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	unlock, err := s.Locker.Lock(lockCtx, caseID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "case is busy, retry shortly")
	}
	return unlock, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"case_id", event.CaseID,
			"action", event.Action,
			"error", err,
		)
	}
}

func (s *Service) recordTransition(ctx context.Context, caseID string, from, to models.Status, reason string) {
	s.metrics.IncrementTransition(string(from), string(to))
	s.emit(ctx, audit.Transition(caseID, string(from), string(to), reason))
}
