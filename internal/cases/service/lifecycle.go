package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"kycgate/internal/audit"
	"kycgate/internal/cases/models"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/strings"
	"kycgate/pkg/requestcontext"
)

// SubmitInput is the customer's completed form.
type SubmitInput struct {
	Consent         bool
	CustomerDetails map[string]any
	EvidenceIDs     []string
}

// ResolveInput carries the corrections made after ACTION_REQUIRED.
// A nil UpdatedCustomerDetails keeps the stored payload.
type ResolveInput struct {
	UpdatedCustomerDetails map[string]any
	AdditionalEvidenceIDs  []string
}

// StatusView is the customer-visible state of a case.
type StatusView struct {
	Case          *models.Case
	Discrepancies []*models.Discrepancy
	NextSteps     []string
}

// Initiate opens a DRAFT case stamped with the current policy version.
func (s *Service) Initiate(ctx context.Context, customerID, categoryID string) (*models.Case, error) {
	c, err := models.NewCase(customerID, categoryID, s.Policy.Version(), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.Cases.Create(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create case")
	}
	s.metrics.IncrementCasesCreated()
	s.emit(ctx, audit.Event{
		CaseID:   c.ID,
		Type:     audit.EventStateTransition,
		Action:   audit.ActionCaseCreated,
		ToStatus: string(c.Status),
		Payload:  map[string]any{"customer_id": customerID, "category_id": categoryID},
	})
	return c, nil
}

// Submit records consent, the form payload and the evidence set, moves the
// case DRAFT → SUBMITTED → VALIDATING, and queues the first validation run.
func (s *Service) Submit(ctx context.Context, caseID string, in SubmitInput) (*models.Case, error) {
	if !in.Consent {
		return nil, dErrors.New(dErrors.CodeValidation, "consent required")
	}
	evidenceIDs := strings.DedupeAndTrim(in.EvidenceIDs)
	if len(evidenceIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one evidence_id is required")
	}

	c, err := s.mutate(ctx, caseID, "submitted", func(ctx context.Context, c *models.Case) ([]models.Status, error) {
		if c.Status != models.StatusDraft {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("case is %s, only DRAFT cases can be submitted", c.Status))
		}
		if err := s.checkEvidence(ctx, c.ID, evidenceIDs); err != nil {
			return nil, err
		}
		c.FormPayload = maps.Clone(in.CustomerDetails)
		if c.FormPayload == nil {
			c.FormPayload = map[string]any{}
		}
		c.EvidenceIDs = evidenceIDs
		return []models.Status{models.StatusSubmitted, models.StatusValidating}, nil
	})
	if err != nil {
		return nil, err
	}
	return c, s.enqueue(ctx, c.ID)
}

// Resolve applies customer corrections to an ACTION_REQUIRED case and queues
// a fresh validation run. New evidence ids are unioned into the set.
func (s *Service) Resolve(ctx context.Context, caseID string, in ResolveInput) (*models.Case, error) {
	additional := strings.DedupeAndTrim(in.AdditionalEvidenceIDs)
	c, err := s.mutate(ctx, caseID, "resubmitted", func(ctx context.Context, c *models.Case) ([]models.Status, error) {
		if c.Status != models.StatusActionRequired {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("case is %s, only ACTION_REQUIRED cases can be resolved", c.Status))
		}
		if err := s.checkEvidence(ctx, c.ID, additional); err != nil {
			return nil, err
		}
		if in.UpdatedCustomerDetails != nil {
			c.FormPayload = maps.Clone(in.UpdatedCustomerDetails)
		}
		c.AttachEvidence(additional)
		return []models.Status{models.StatusValidating}, nil
	})
	if err != nil {
		return nil, err
	}
	return c, s.enqueue(ctx, c.ID)
}

// Requeue schedules another run for a case already VALIDATING, for when the
// original trigger was lost.
func (s *Service) Requeue(ctx context.Context, caseID string) (*models.Case, error) {
	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.StatusValidating {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("case is %s, only VALIDATING cases can be requeued", c.Status))
	}
	return c, s.enqueue(ctx, c.ID)
}

// Status returns the case with its open discrepancies and what the customer
// should do next.
func (s *Service) Status(ctx context.Context, caseID string) (*StatusView, error) {
	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	open, err := s.Discrepancies.ListOpen(ctx, caseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list discrepancies")
	}
	return &StatusView{Case: c, Discrepancies: open, NextSteps: NextSteps(c.Status)}, nil
}

// ListByCustomer returns a customer's cases.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*models.Case, error) {
	out, err := s.Cases.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cases")
	}
	slices.SortFunc(out, func(a, b *models.Case) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// NextSteps is the guidance shown alongside a status.
func NextSteps(status models.Status) []string {
	switch status {
	case models.StatusDraft:
		return []string{"Upload evidence and submit the case with consent"}
	case models.StatusActionRequired:
		return []string{"Resolve discrepancies and upload additional evidence"}
	case models.StatusValidated:
		return []string{"Submit case for human review"}
	case models.StatusReadyForReview, models.StatusInReview:
		return []string{"Await reviewer decision"}
	case models.StatusApproved, models.StatusRejected, models.StatusClosed:
		return []string{"No further action required"}
	default:
		return []string{"Await validation completion"}
	}
}

// mutate runs fn on a locked, freshly loaded case, walks the returned
// statuses in order and saves the result in one transaction.
func (s *Service) mutate(ctx context.Context, caseID, reason string, fn func(context.Context, *models.Case) ([]models.Status, error)) (*models.Case, error) {
	unlock, err := s.lock(ctx, caseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	path, err := fn(ctx, c)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	from := c.Status
	steps := make([][2]models.Status, 0, len(path))
	for _, to := range path {
		prev := c.Status
		if err := c.TransitionTo(to, now); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle attempted an invalid transition",
				"case_id", c.ID,
				"from", prev,
				"to", to,
				"error", err,
			)
			return nil, err
		}
		steps = append(steps, [2]models.Status{prev, to})
	}
	c.UpdatedAt = now

	err = s.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.Cases.Save(txCtx, c)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save case")
	}
	for _, step := range steps {
		s.recordTransition(ctx, c.ID, step[0], step[1], reason)
	}
	s.logger.InfoContext(ctx, "case status changed",
		"case_id", c.ID,
		"from", from,
		"to", c.Status,
		"reason", reason,
	)
	return c, nil
}

// checkEvidence rejects ids that are unknown or belong to another case.
func (s *Service) checkEvidence(ctx context.Context, caseID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.Evidence.FindByIDs(ctx, ids)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load evidence")
	}
	owned := make(map[string]bool, len(found))
	for _, ev := range found {
		owned[ev.ID] = ev.CaseID == caseID
	}
	for _, id := range ids {
		if !owned[id] {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("evidence %s does not belong to this case", id))
		}
	}
	return nil
}

// enqueue runs after the status change committed. A failure leaves the case
// VALIDATING; Requeue recovers it.
func (s *Service) enqueue(ctx context.Context, caseID string) error {
	if err := s.Scheduler.Enqueue(ctx, caseID); err != nil {
		s.logger.ErrorContext(ctx, "failed to schedule validation",
			"case_id", caseID,
			"error", err,
		)
		if errors.Is(err, context.Canceled) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "validation could not be scheduled, requeue the case")
	}
	s.metrics.IncrementQueued()
	return nil
}
