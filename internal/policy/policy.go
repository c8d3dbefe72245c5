// Package policy serves the versioned category rule table: which document
// types a category accepts and which fields extraction must produce.
package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrPolicyNotFound is returned for unknown categories in fail-closed mode.
var ErrPolicyNotFound = errors.New("policy not found for category")

// UnknownCategoryMode decides what an unknown category resolves to.
type UnknownCategoryMode string

const (
	// FailOpen returns an empty rule set: every document type is accepted.
	FailOpen UnknownCategoryMode = "fail_open"
	// FailClosed returns ErrPolicyNotFound.
	FailClosed UnknownCategoryMode = "fail_closed"
)

// ParseUnknownCategoryMode defaults anything unrecognized to FailOpen.
func ParseUnknownCategoryMode(raw string) UnknownCategoryMode {
	if UnknownCategoryMode(raw) == FailClosed {
		return FailClosed
	}
	return FailOpen
}

// CategoryRules is the policy applied to one category. An empty
// AllowedDocumentTypes means no document-type restriction.
type CategoryRules struct {
	AllowedDocumentTypes []string
	ExtractionFields     []string
}

// Category describes one entry of the catalogue.
type Category struct {
	ID          string
	Title       string
	Description string
}

// Requirements is what a client must collect before submitting a case.
type Requirements struct {
	CategoryID        string
	PolicyVersion     string
	RequiredFields    []string
	RequiredDocuments []string
	Rules             CategoryRules
	Controls          map[string]string
}

// Resolver answers policy lookups from the static table.
type Resolver struct {
	mode UnknownCategoryMode
}

type Option func(*Resolver)

// WithUnknownCategoryMode overrides the default FailOpen posture.
func WithUnknownCategoryMode(mode UnknownCategoryMode) Option {
	return func(r *Resolver) {
		r.mode = mode
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{mode: FailOpen}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetCategoryRules returns a copy of the rules for categoryID.
func (r *Resolver) GetCategoryRules(ctx context.Context, categoryID string) (CategoryRules, error) {
	if err := ctx.Err(); err != nil {
		return CategoryRules{}, err
	}
	rules, ok := categoryRules[categoryID]
	if !ok {
		if r.mode == FailClosed {
			return CategoryRules{}, fmt.Errorf("%w: %q", ErrPolicyNotFound, categoryID)
		}
		return CategoryRules{}, nil
	}
	return CategoryRules{
		AllowedDocumentTypes: slices.Clone(rules.AllowedDocumentTypes),
		ExtractionFields:     slices.Clone(rules.ExtractionFields),
	}, nil
}

// ListCategories returns the catalogue in display order.
func (r *Resolver) ListCategories(context.Context) []Category {
	return slices.Clone(categories)
}

// GetRequirements expands category rules with the form fields a submission
// must carry. Country and risk tier do not change the v1.0 table.
func (r *Resolver) GetRequirements(ctx context.Context, categoryID, country, riskTier string) (Requirements, error) {
	rules, err := r.GetCategoryRules(ctx, categoryID)
	if err != nil {
		return Requirements{}, err
	}
	return Requirements{
		CategoryID:        categoryID,
		PolicyVersion:     Version,
		RequiredFields:    requiredFormFields(categoryID),
		RequiredDocuments: slices.Clone(rules.AllowedDocumentTypes),
		Rules:             rules,
		Controls: map[string]string{
			"dob_mismatch":     "hard_fail",
			"address_mismatch": "secondary_doc_allowed",
		},
	}, nil
}

// Version reports the version of the rule table.
func (r *Resolver) Version() string {
	return Version
}
