// Package contract holds reusable tests every capability backend must pass.
package contract

import (
	"context"
	"slices"
	"testing"

	"kycgate/internal/capability"
	"kycgate/internal/cases/models"
)

// ClassifierCase is one classification expectation. An empty Expected only
// checks that the label is in the vocabulary.
type ClassifierCase struct {
	Name     string
	Input    capability.EvidenceInput
	Expected capability.DocumentType
}

// Suite is a collection of contract tests for a capability Set.
type Suite struct {
	Set             capability.Set
	Classifications []ClassifierCase
	Document        capability.EvidenceInput
	TargetLanguage  string
	Fields          []string
	Case            capability.CaseContext
}

// Run executes every contract check against the Set.
func (s *Suite) Run(t *testing.T) {
	ctx := context.Background()

	for _, tc := range s.Classifications {
		t.Run("classify/"+tc.Name, func(t *testing.T) {
			got, err := s.Set.Classifier.Classify(ctx, tc.Input)
			if err != nil {
				t.Fatalf("classify failed: %v", err)
			}
			if !slices.Contains(capability.Vocabulary(), got.DocumentType) {
				t.Errorf("document type %q outside vocabulary", got.DocumentType)
			}
			if tc.Expected != "" && got.DocumentType != tc.Expected {
				t.Errorf("expected %s, got %s", tc.Expected, got.DocumentType)
			}
			checkConfidence(t, "classification", got.Confidence)
		})
	}

	t.Run("ocr_translate_extract", func(t *testing.T) {
		ocr, err := s.Set.OCR.Run(ctx, s.Document)
		if err != nil {
			t.Fatalf("ocr failed: %v", err)
		}
		if ocr.Language == "" {
			t.Error("ocr language not set")
		}
		checkConfidence(t, "ocr", ocr.Confidence)

		tr, err := s.Set.Translator.Translate(ctx, ocr, s.TargetLanguage)
		if err != nil {
			t.Fatalf("translate failed: %v", err)
		}
		if tr.TargetLanguage != s.TargetLanguage {
			t.Errorf("expected target %s, got %s", s.TargetLanguage, tr.TargetLanguage)
		}
		checkConfidence(t, "translation", tr.Confidence)

		fields, err := s.Set.Extractor.Extract(ctx, tr.Text, s.Fields)
		if err != nil {
			t.Fatalf("extract failed: %v", err)
		}
		for name, fv := range fields {
			if !slices.Contains(s.Fields, name) {
				t.Errorf("extractor returned unrequested field %q", name)
			}
			checkConfidence(t, "field "+name, fv.Confidence)
			if fv.Value == nil && fv.Confidence != 0 {
				t.Errorf("field %q has no value but confidence %f", name, fv.Confidence)
			}
		}
	})

	t.Run("reason", func(t *testing.T) {
		res, err := s.Set.Reasoner.Reason(ctx, s.Case)
		if err != nil {
			t.Fatalf("reason failed: %v", err)
		}
		checkConfidence(t, "overall", res.OverallConfidence)
		for _, d := range res.Discrepancies {
			if d.Field == "" {
				t.Error("discrepancy without field")
			}
			if _, err := models.ParseSeverity(d.Severity); err != nil {
				t.Errorf("discrepancy %q: %v", d.Field, err)
			}
		}
	})
}

// ErrorContractTest checks that a failing backend reports the taxonomy.
type ErrorContractTest struct {
	Name          string
	Call          func(ctx context.Context) error
	ExpectedError capability.ErrorCategory
	ExpectedRetry bool
}

// Run executes an error contract test
func (ect *ErrorContractTest) Run(t *testing.T) {
	t.Run(ect.Name, func(t *testing.T) {
		err := ect.Call(context.Background())
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if got := capability.GetCategory(err); got != ect.ExpectedError {
			t.Errorf("expected category %s, got %s (%v)", ect.ExpectedError, got, err)
		}
		if got := capability.IsRetryable(err); got != ect.ExpectedRetry {
			t.Errorf("expected retryable=%v, got %v", ect.ExpectedRetry, got)
		}
	})
}

func checkConfidence(t *testing.T, what string, c float64) {
	t.Helper()
	if c < 0 || c > 1 {
		t.Errorf("%s confidence %f out of range [0, 1]", what, c)
	}
}
