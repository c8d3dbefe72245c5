// Package stub provides deterministic capability implementations for local
// runs and tests. No network calls are made.
package stub

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"kycgate/internal/capability"
)

// BackendName identifies the stub Set in logs and audit events.
const BackendName = "stub"

// NewSet wires every stub into a capability.Set.
func NewSet() capability.Set {
	return capability.Set{
		Backend:    BackendName,
		Classifier: Classifier{},
		OCR:        OCR{Language: "en"},
		Translator: Translator{},
		Extractor:  Extractor{},
		Reasoner:   Reasoner{},
	}
}

// Classifier labels documents from keywords in the file name.
type Classifier struct{}

var fileNameHints = []struct {
	keyword string
	docType capability.DocumentType
}{
	{"passport", capability.DocPassport},
	{"license", capability.DocDriversLicense},
	{"licence", capability.DocDriversLicense},
	{"national", capability.DocNationalID},
	{"aadhaar", capability.DocNationalID},
	{"utility", capability.DocUtilityBill},
	{"bank", capability.DocBankStatement},
	{"rent", capability.DocRentAgreement},
	{"incorporation", capability.DocCertificateIncorporation},
	{"tax", capability.DocTaxRegistration},
	{"sof", capability.DocSOFDeclaration},
}

func (Classifier) Classify(ctx context.Context, in capability.EvidenceInput) (capability.Classification, error) {
	if err := ctx.Err(); err != nil {
		return capability.Classification{}, capability.NewError(capability.ErrorTimeout, "classifier", "context done", err)
	}
	name := strings.ToLower(in.Descriptor.FileName)
	for _, hint := range fileNameHints {
		if strings.Contains(name, hint.keyword) {
			return capability.Classification{DocumentType: hint.docType, Confidence: 0.75}, nil
		}
	}
	return capability.Classification{DocumentType: capability.DocUnknown, Confidence: 0.75}, nil
}

// OCR returns UTF-8 content verbatim and a placeholder for binary files. A
// first line of the form "lang: xx" overrides Language.
type OCR struct {
	Language string
}

func (o OCR) Run(ctx context.Context, in capability.EvidenceInput) (capability.OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return capability.OCRResult{}, capability.NewError(capability.ErrorTimeout, "ocr", "context done", err)
	}
	lang := o.Language
	if lang == "" {
		lang = "en"
	}
	if len(in.Content) == 0 || !utf8.Valid(in.Content) {
		return capability.OCRResult{
			Language:   lang,
			RawText:    fmt.Sprintf("document %s", in.Descriptor.FileName),
			Confidence: 0.85,
		}, nil
	}

	text := string(in.Content)
	if first, rest, ok := strings.Cut(text, "\n"); ok {
		if l, found := strings.CutPrefix(strings.TrimSpace(first), "lang:"); found {
			lang = strings.TrimSpace(l)
			text = rest
		}
	}
	var blocks []capability.OCRBlock
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			blocks = append(blocks, capability.OCRBlock{Text: strings.TrimSpace(line), Confidence: 0.85})
		}
	}
	return capability.OCRResult{Language: lang, RawText: text, Blocks: blocks, Confidence: 0.85}, nil
}

// Translator passes text through unchanged.
type Translator struct{}

func (Translator) Translate(ctx context.Context, ocr capability.OCRResult, targetLanguage string) (capability.Translation, error) {
	if err := ctx.Err(); err != nil {
		return capability.Translation{}, capability.NewError(capability.ErrorTimeout, "translator", "context done", err)
	}
	return capability.Translation{
		Text:           ocr.RawText,
		SourceLanguage: ocr.Language,
		TargetLanguage: targetLanguage,
		Confidence:     0.9,
	}, nil
}

// Extractor reads "field: value" lines. Requested fields without a line come
// back with a nil value and zero confidence.
type Extractor struct{}

func (Extractor) Extract(ctx context.Context, text string, fields []string) (capability.ExtractedFields, error) {
	if err := ctx.Err(); err != nil {
		return nil, capability.NewError(capability.ErrorTimeout, "extractor", "context done", err)
	}
	found := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := found[key]; !seen {
			found[key] = strings.TrimSpace(value)
		}
	}

	out := make(capability.ExtractedFields, len(fields))
	for _, field := range fields {
		if v, ok := found[strings.ToLower(field)]; ok && v != "" {
			out[field] = capability.FieldValue{Value: &v, Confidence: 0.9}
			continue
		}
		out[field] = capability.FieldValue{}
	}
	return out, nil
}

// Reasoner never reports a discrepancy.
type Reasoner struct{}

func (Reasoner) Reason(ctx context.Context, caseCtx capability.CaseContext) (capability.ReasoningResult, error) {
	if err := ctx.Err(); err != nil {
		return capability.ReasoningResult{}, capability.NewError(capability.ErrorTimeout, "reasoner", "context done", err)
	}
	return capability.ReasoningResult{
		Discrepancies:     []capability.ReasonedDiscrepancy{},
		OverallConfidence: 0.8,
		Summary:           "no discrepancies detected",
	}, nil
}
