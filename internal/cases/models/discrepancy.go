package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity ranks how badly a discrepancy blocks a case.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ErrUnknownSeverity is returned by ParseSeverity for labels outside the set.
var ErrUnknownSeverity = errors.New("unknown severity")

// ParseSeverity normalizes a label. Unknown labels are an error, never a
// silent downgrade.
func ParseSeverity(raw string) (Severity, error) {
	switch s := Severity(strings.ToUpper(strings.TrimSpace(raw))); s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, raw)
	}
}

// DiscrepancyStatus is OPEN until a later run clears it.
type DiscrepancyStatus string

const (
	DiscrepancyOpen     DiscrepancyStatus = "OPEN"
	DiscrepancyResolved DiscrepancyStatus = "RESOLVED"
)

// Discrepancy is a customer-facing finding that blocks validation.
type Discrepancy struct {
	ID                 string
	CaseID             string
	Field              string
	Message            string
	ExpectedValue      *string
	ReceivedValue      *string
	Severity           Severity
	Status             DiscrepancyStatus
	ResolutionRequired map[string]any
	CreatedAt          time.Time
}

// NewDiscrepancy builds an OPEN discrepancy with a fresh id.
func NewDiscrepancy(caseID, field, message string, severity Severity, now time.Time) *Discrepancy {
	return &Discrepancy{
		ID:        NewDiscrepancyID(),
		CaseID:    caseID,
		Field:     field,
		Message:   message,
		Severity:  severity,
		Status:    DiscrepancyOpen,
		CreatedAt: now,
	}
}

// StrPtr is a helper for optional expected/received values.
func StrPtr(s string) *string {
	return &s
}
