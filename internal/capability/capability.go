// Package capability defines the pluggable AI/document capabilities the
// validation saga depends on. Implementations are selected once at startup
// and handed to the orchestrator as an immutable Set.
package capability

//go:generate mockgen -source=capability.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"strings"

	"kycgate/internal/cases/models"
)

// DocumentType is the closed classification vocabulary.
type DocumentType string

const (
	DocPassport                 DocumentType = "passport"
	DocDriversLicense           DocumentType = "drivers_license"
	DocNationalID               DocumentType = "national_id"
	DocUtilityBill              DocumentType = "utility_bill"
	DocBankStatement            DocumentType = "bank_statement"
	DocRentAgreement            DocumentType = "rent_agreement"
	DocCertificateIncorporation DocumentType = "certificate_incorporation"
	DocDBA                      DocumentType = "dba"
	DocTaxRegistration          DocumentType = "tax_registration"
	DocSOFDeclaration           DocumentType = "sof_declaration"
	DocUnknown                  DocumentType = "unknown"
)

var vocabulary = []DocumentType{
	DocPassport, DocDriversLicense, DocNationalID, DocUtilityBill, DocBankStatement,
	DocRentAgreement, DocCertificateIncorporation, DocDBA, DocTaxRegistration, DocSOFDeclaration, DocUnknown,
}

// Vocabulary lists every label a classifier may return.
func Vocabulary() []DocumentType {
	return append([]DocumentType(nil), vocabulary...)
}

// NormalizeDocumentType maps any label outside the vocabulary to DocUnknown.
func NormalizeDocumentType(label string) DocumentType {
	candidate := DocumentType(strings.ToLower(strings.TrimSpace(label)))
	for _, known := range vocabulary {
		if candidate == known {
			return known
		}
	}
	return DocUnknown
}

// EvidenceDescriptor identifies a document without its content.
type EvidenceDescriptor struct {
	ID          string `json:"evidence_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"storage_key"`
}

// EvidenceInput is a descriptor plus the downloaded bytes.
type EvidenceInput struct {
	Descriptor EvidenceDescriptor
	Content    []byte
}

// Classification is a classifier verdict.
type Classification struct {
	DocumentType DocumentType `json:"document_type"`
	Confidence   float64      `json:"confidence"`
}

// OCRBlock is one recognized text region.
type OCRBlock struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// OCRResult is the text recognized in a document.
type OCRResult struct {
	Language   string     `json:"language"`
	RawText    string     `json:"raw_text"`
	Blocks     []OCRBlock `json:"blocks,omitempty"`
	Confidence float64    `json:"confidence"`
}

// Translation is OCR text rendered in the target language.
type Translation struct {
	Text           string  `json:"text"`
	SourceLanguage string  `json:"source_language"`
	TargetLanguage string  `json:"target_language"`
	Confidence     float64 `json:"confidence"`
}

// FieldValue is one extracted field. Value is nil when the document does not
// show it.
type FieldValue struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ExtractedFields is keyed by the requested field names.
type ExtractedFields map[string]FieldValue

// CaseContext is everything the reasoner sees for one run.
type CaseContext struct {
	CaseID        string                   `json:"case_id"`
	CategoryID    string                   `json:"category_id"`
	PolicyVersion string                   `json:"policy_version"`
	Country       string                   `json:"country"`
	RiskTier      string                   `json:"risk_tier"`
	Profile       models.NormalizedProfile `json:"customer_profile"`
	FormPayload   map[string]any           `json:"form_payload"`
	Evidences     []EvidenceDescriptor     `json:"evidences"`
}

// ReasonedDiscrepancy is a reasoner finding before severity is parsed.
type ReasonedDiscrepancy struct {
	Field              string         `json:"field"`
	Expected           *string        `json:"expected"`
	Received           *string        `json:"received"`
	Severity           string         `json:"severity"`
	Explanation        string         `json:"explanation"`
	ResolutionRequired map[string]any `json:"resolution_required"`
}

// ReasoningResult is the reasoner's full answer for a case.
type ReasoningResult struct {
	Discrepancies     []ReasonedDiscrepancy `json:"discrepancies"`
	OverallConfidence float64               `json:"overall_confidence"`
	Summary           string                `json:"summary"`
}

// Classifier labels a document with a type from the vocabulary.
type Classifier interface {
	Classify(ctx context.Context, in EvidenceInput) (Classification, error)
}

// OCR recognizes text in a document.
type OCR interface {
	Run(ctx context.Context, in EvidenceInput) (OCRResult, error)
}

// Translator renders OCR text in the target language.
type Translator interface {
	Translate(ctx context.Context, ocr OCRResult, targetLanguage string) (Translation, error)
}

// Extractor pulls the requested fields out of document text.
type Extractor interface {
	Extract(ctx context.Context, text string, fields []string) (ExtractedFields, error)
}

// Reasoner compares declared, authoritative and extracted data.
// Implementations that retry bound each attempt with AttemptContext.
type Reasoner interface {
	Reason(ctx context.Context, caseCtx CaseContext) (ReasoningResult, error)
}

// Set is the capability configuration for a process. Build it once and pass
// it by value; nothing swaps members at runtime.
type Set struct {
	Backend    string
	Classifier Classifier
	OCR        OCR
	Translator Translator
	Extractor  Extractor
	Reasoner   Reasoner
}

// Validate reports a Set with a missing member.
func (s Set) Validate() error {
	var errs []error
	if s.Classifier == nil {
		errs = append(errs, errors.New("classifier not configured"))
	}
	if s.OCR == nil {
		errs = append(errs, errors.New("ocr not configured"))
	}
	if s.Translator == nil {
		errs = append(errs, errors.New("translator not configured"))
	}
	if s.Extractor == nil {
		errs = append(errs, errors.New("extractor not configured"))
	}
	if s.Reasoner == nil {
		errs = append(errs, errors.New("reasoner not configured"))
	}
	return errors.Join(errs...)
}
