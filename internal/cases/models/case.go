package models

import (
	"fmt"
	"maps"
	"time"

	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/strings"
)

// DefaultPolicyVersion is stamped on cases that do not name one.
const DefaultPolicyVersion = "v1.0"

// ErrInvalidTransition is returned for an edge outside the lifecycle graph.
// Reaching it means a caller skipped its own status check.
var ErrInvalidTransition = dErrors.New(dErrors.CodeInvariantViolation, "invalid case status transition")

// Case is the unit of validation work.
type Case struct {
	ID            string
	CustomerID    string
	CategoryID    string
	PolicyVersion string
	Status        Status
	FormPayload   map[string]any
	EvidenceIDs   []string
	FinalCaseID   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewCase builds a DRAFT case.
func NewCase(customerID, categoryID, policyVersion string, now time.Time) (*Case, error) {
	if customerID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "customer_id is required")
	}
	if categoryID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "category_id is required")
	}
	if policyVersion == "" {
		policyVersion = DefaultPolicyVersion
	}
	return &Case{
		ID:            NewCaseID(),
		CustomerID:    customerID,
		CategoryID:    categoryID,
		PolicyVersion: policyVersion,
		Status:        StatusDraft,
		FormPayload:   map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// TransitionTo moves the case along one lifecycle edge.
func (c *Case) TransitionTo(to Status, now time.Time) error {
	if !CanTransition(c.Status, to) {
		return dErrors.Wrap(ErrInvalidTransition, dErrors.CodeInvariantViolation,
			fmt.Sprintf("case %s: %s -> %s", c.ID, c.Status, to))
	}
	c.Status = to
	c.UpdatedAt = now
	return nil
}

// AttachEvidence unions ids into the case's evidence set.
func (c *Case) AttachEvidence(ids []string) {
	c.EvidenceIDs = strings.Union(c.EvidenceIDs, ids)
}

// AssignFinalCaseID sets the reviewer-facing id once. Later calls keep the
// first value.
func (c *Case) AssignFinalCaseID(now time.Time) {
	if c.FinalCaseID == "" {
		c.FinalCaseID = NewFinalCaseID(now)
	}
}

// PayloadCopy returns a shallow copy of the form payload.
func (c *Case) PayloadCopy() map[string]any {
	out := make(map[string]any, len(c.FormPayload)+1)
	maps.Copy(out, c.FormPayload)
	return out
}

// Clone returns a copy whose payload map and evidence slice are not shared.
func (c *Case) Clone() *Case {
	out := *c
	out.FormPayload = c.PayloadCopy()
	out.EvidenceIDs = append([]string(nil), c.EvidenceIDs...)
	return &out
}
