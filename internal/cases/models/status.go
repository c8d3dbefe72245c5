package models

import (
	"fmt"
	"strings"
)

// Status is the lifecycle position of a case.
type Status string

const (
	StatusDraft          Status = "DRAFT"
	StatusSubmitted      Status = "SUBMITTED"
	StatusValidating     Status = "VALIDATING"
	StatusActionRequired Status = "ACTION_REQUIRED"
	StatusValidated      Status = "VALIDATED"
	StatusReadyForReview Status = "READY_FOR_REVIEW"
	StatusInReview       Status = "IN_REVIEW"
	StatusApproved       Status = "APPROVED"
	StatusRejected       Status = "REJECTED"
	StatusClosed         Status = "CLOSED"
)

var transitions = map[Status][]Status{
	StatusDraft:          {StatusSubmitted},
	StatusSubmitted:      {StatusValidating},
	StatusValidating:     {StatusActionRequired, StatusValidated},
	StatusActionRequired: {StatusValidating},
	StatusValidated:      {StatusReadyForReview},
	StatusReadyForReview: {StatusInReview},
	StatusInReview:       {StatusApproved, StatusRejected},
	StatusApproved:       {StatusClosed},
	StatusRejected:       {StatusClosed},
	StatusClosed:         nil,
}

// AllStatuses lists every known status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusSubmitted, StatusValidating, StatusActionRequired, StatusValidated,
		StatusReadyForReview, StatusInReview, StatusApproved, StatusRejected, StatusClosed,
	}
}

// ParseStatus rejects anything outside the closed status set.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := transitions[s]; !ok {
		return "", fmt.Errorf("unknown case status %q", raw)
	}
	return s, nil
}

// CanTransition reports whether from → to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}
