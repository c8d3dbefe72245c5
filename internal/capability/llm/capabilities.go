package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"kycgate/internal/capability"
)

// BackendName prefixes the provider in capability.Set.Backend.
const BackendName = "llm"

// RetryPolicy bounds reasoner retries: MaxRetries extra attempts after the
// first, waiting BaseDelay, 2*BaseDelay, ... between them.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is two retries starting at 800ms.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, BaseDelay: 800 * time.Millisecond}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = p.BaseDelay << p.MaxRetries
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, p.MaxRetries), ctx)
}

type options struct {
	logger    *slog.Logger
	retry     RetryPolicy
	redaction RedactionConfig
}

// Option configures NewSet.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		o.retry = p
	}
}

// WithRedaction sets which identifiers the extractor masks before sending
// document text to the model.
func WithRedaction(c RedactionConfig) Option {
	return func(o *options) {
		o.redaction = c
	}
}

var (
	classifyCall  = mustCompile("classification", classificationSchema)
	ocrCall       = mustCompile("ocr", ocrSchema)
	translateCall = mustCompile("translation", translationSchema)
	extractCall   = mustCompile("extraction", extractionSchema)
	reasonCall    = mustCompile("reasoning", reasoningSchema)
)

func mustCompile(name, schema string) *structured {
	s, err := compileSchema(name, schema)
	if err != nil {
		panic(err)
	}
	return s
}

// NewSet builds every capability on one Generator.
func NewSet(provider string, gen Generator, opts ...Option) capability.Set {
	o := options{logger: slog.Default(), retry: DefaultRetryPolicy, redaction: DefaultRedaction}
	for _, opt := range opts {
		opt(&o)
	}
	return capability.Set{
		Backend:    BackendName + ":" + provider,
		Classifier: &Classifier{call: classifyCall.with(gen)},
		OCR:        &OCR{call: ocrCall.with(gen)},
		Translator: &Translator{call: translateCall.with(gen)},
		Extractor:  &Extractor{call: extractCall.with(gen), redaction: o.redaction},
		Reasoner:   &Reasoner{call: reasonCall.with(gen), retry: o.retry, logger: o.logger},
	}
}

func attachment(in capability.EvidenceInput) []Attachment {
	if len(in.Content) == 0 {
		return nil
	}
	mime := in.Descriptor.ContentType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return []Attachment{{MimeType: mime, Data: in.Content}}
}

// Classifier asks the model for a document type from the vocabulary.
type Classifier struct {
	call *structured
}

func (c *Classifier) Classify(ctx context.Context, in capability.EvidenceInput) (capability.Classification, error) {
	var out struct {
		DocumentType string  `json:"document_type"`
		Confidence   float64 `json:"confidence"`
	}
	err := c.call.generate(ctx, Request{
		Capability:  "classifier",
		System:      "You classify identity and KYC documents.",
		Prompt:      fmt.Sprintf("Classify the attached document (file name %q). Answer with one document_type from the allowed list.", in.Descriptor.FileName),
		Attachments: attachment(in),
	}, &out)
	if err != nil {
		return capability.Classification{}, err
	}
	return capability.Classification{
		DocumentType: capability.NormalizeDocumentType(out.DocumentType),
		Confidence:   out.Confidence,
	}, nil
}

// OCR transcribes the document and reports its language.
type OCR struct {
	call *structured
}

func (o *OCR) Run(ctx context.Context, in capability.EvidenceInput) (capability.OCRResult, error) {
	var out capability.OCRResult
	err := o.call.generate(ctx, Request{
		Capability:  "ocr",
		System:      "You transcribe documents exactly as printed.",
		Prompt:      "Transcribe all text in the attached document. Report the ISO 639-1 language code of the text.",
		Attachments: attachment(in),
	}, &out)
	if err != nil {
		return capability.OCRResult{}, err
	}
	out.Language = strings.ToLower(strings.TrimSpace(out.Language))
	return out, nil
}

// Translator renders OCR text in the target language.
type Translator struct {
	call *structured
}

func (t *Translator) Translate(ctx context.Context, ocr capability.OCRResult, targetLanguage string) (capability.Translation, error) {
	var out struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	err := t.call.generate(ctx, Request{
		Capability: "translator",
		System:     "You translate document transcriptions faithfully, keeping names, numbers and dates unchanged.",
		Prompt:     fmt.Sprintf("Translate from %s to %s:\n\n%s", ocr.Language, targetLanguage, ocr.RawText),
	}, &out)
	if err != nil {
		return capability.Translation{}, err
	}
	return capability.Translation{
		Text:           out.Text,
		SourceLanguage: ocr.Language,
		TargetLanguage: targetLanguage,
		Confidence:     out.Confidence,
	}, nil
}

// Extractor pulls named fields out of document text. Identifiers selected by
// redaction are masked before the text is sent.
type Extractor struct {
	call      *structured
	redaction RedactionConfig
}

func (e *Extractor) Extract(ctx context.Context, text string, fields []string) (capability.ExtractedFields, error) {
	var out struct {
		Fields []struct {
			Name       string  `json:"name"`
			Value      string  `json:"value"`
			Confidence float64 `json:"confidence"`
		} `json:"fields"`
	}
	err := e.call.generate(ctx, Request{
		Capability: "extractor",
		System:     "You extract structured fields from KYC document text. Use an empty value when a field is not present. Dates are YYYY-MM-DD.",
		Prompt:     fmt.Sprintf("Fields: %s\n\nDocument text:\n%s", strings.Join(fields, ", "), e.redaction.Redact(text)),
	}, &out)
	if err != nil {
		return nil, err
	}

	result := make(capability.ExtractedFields, len(fields))
	for _, f := range out.Fields {
		if !slices.Contains(fields, f.Name) {
			continue
		}
		if strings.TrimSpace(f.Value) == "" {
			result[f.Name] = capability.FieldValue{}
			continue
		}
		v := strings.TrimSpace(f.Value)
		result[f.Name] = capability.FieldValue{Value: &v, Confidence: f.Confidence}
	}
	return result, nil
}

// Reasoner compares the case context and lists discrepancies. Its single
// generation call is retried per RetryPolicy on retryable failures.
type Reasoner struct {
	call   *structured
	retry  RetryPolicy
	logger *slog.Logger
}

const reasonerSystem = `You are a KYC validation analyst. Compare the customer_profile (authoritative),
the form_payload (customer declared) and form_payload._evidence_extracted (read from documents).
Report every material mismatch as a discrepancy with a severity of LOW, MEDIUM, HIGH or CRITICAL.
Report nothing when the data agrees.`

func (r *Reasoner) Reason(ctx context.Context, caseCtx capability.CaseContext) (capability.ReasoningResult, error) {
	payload, err := json.Marshal(caseCtx)
	if err != nil {
		return capability.ReasoningResult{}, capability.NewError(capability.ErrorInternal, "reasoner", "marshal case context", err)
	}
	req := Request{
		Capability: "reasoner",
		System:     reasonerSystem,
		Prompt:     string(payload),
	}

	var result capability.ReasoningResult
	attempt := 0
	op := func() error {
		attempt++
		result = capability.ReasoningResult{}
		attemptCtx, cancel := capability.AttemptContext(ctx)
		defer cancel()
		err := r.call.generate(attemptCtx, req, &result)
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !capability.IsRetryable(err) {
			err = capability.NewError(capability.ErrorTimeout, "reasoner", fmt.Sprintf("attempt %d timed out", attempt), err)
		}
		if err != nil && !capability.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		reasonerRetries.Inc()
		r.logger.WarnContext(ctx, "reasoner call failed, retrying",
			"case_id", caseCtx.CaseID,
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	}
	if err := backoff.RetryNotify(op, r.retry.backOff(ctx), notify); err != nil {
		return capability.ReasoningResult{}, err
	}
	if result.Discrepancies == nil {
		result.Discrepancies = []capability.ReasonedDiscrepancy{}
	}
	return result, nil
}
