package service

import (
	"context"
	"fmt"

	"kycgate/internal/cases/models"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/requestcontext"
)

// Decision is a reviewer's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// SubmitForReview hands a VALIDATED case to reviewers and assigns the
// reviewer-facing case id.
func (s *Service) SubmitForReview(ctx context.Context, caseID string) (*models.Case, error) {
	return s.mutate(ctx, caseID, "submitted for review", func(ctx context.Context, c *models.Case) ([]models.Status, error) {
		if err := expectStatus(c, models.StatusValidated); err != nil {
			return nil, err
		}
		c.AssignFinalCaseID(requestcontext.Now(ctx))
		return []models.Status{models.StatusReadyForReview}, nil
	})
}

// StartReview claims a READY_FOR_REVIEW case.
func (s *Service) StartReview(ctx context.Context, caseID string) (*models.Case, error) {
	return s.mutate(ctx, caseID, "review started", func(_ context.Context, c *models.Case) ([]models.Status, error) {
		if err := expectStatus(c, models.StatusReadyForReview); err != nil {
			return nil, err
		}
		return []models.Status{models.StatusInReview}, nil
	})
}

// Decide records the reviewer's verdict on an IN_REVIEW case.
func (s *Service) Decide(ctx context.Context, caseID string, decision Decision, reason string) (*models.Case, error) {
	var to models.Status
	switch decision {
	case DecisionApprove:
		to = models.StatusApproved
	case DecisionReject:
		to = models.StatusRejected
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("decision must be %q or %q", DecisionApprove, DecisionReject))
	}
	if reason == "" {
		reason = string(decision)
	}
	return s.mutate(ctx, caseID, reason, func(_ context.Context, c *models.Case) ([]models.Status, error) {
		if err := expectStatus(c, models.StatusInReview); err != nil {
			return nil, err
		}
		return []models.Status{to}, nil
	})
}

// Close archives a decided case.
func (s *Service) Close(ctx context.Context, caseID string) (*models.Case, error) {
	return s.mutate(ctx, caseID, "closed", func(_ context.Context, c *models.Case) ([]models.Status, error) {
		if err := expectStatus(c, models.StatusApproved, models.StatusRejected); err != nil {
			return nil, err
		}
		return []models.Status{models.StatusClosed}, nil
	})
}

func expectStatus(c *models.Case, allowed ...models.Status) error {
	for _, s := range allowed {
		if c.Status == s {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("case is %s, expected %v", c.Status, allowed))
}
