package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"kycgate/internal/audit"
	"kycgate/internal/capability"
	"kycgate/internal/cases/models"
	"kycgate/internal/objectstore"
	"kycgate/internal/policy"
	"kycgate/pkg/requestcontext"
)

// EvidenceBundleKey is the form payload key the extracted bundle is stored under.
const EvidenceBundleKey = "_evidence_extracted"

// FieldProcessingError is the discrepancy field for per-evidence failures.
const FieldProcessingError = "evidence_processing"

// defaultExtractionFields are requested when the policy names none.
var defaultExtractionFields = []string{"full_name", "dob"}

var errEvidenceMissing = errors.New("evidence record not found")

// ExtractedEvidence is one entry of the extracted bundle handed to the reasoner.
type ExtractedEvidence struct {
	DocType              capability.Classification  `json:"doc_type"`
	Fields               capability.ExtractedFields `json:"fields"`
	ExtractionConfidence float64                    `json:"extraction_confidence"`
	OCRConfidence        float64                    `json:"ocr_confidence"`
}

// PipelineResult holds either the full bundle or the discrepancy that
// stopped processing.
type PipelineResult struct {
	Bundle map[string]ExtractedEvidence
	Abort  *models.Discrepancy
}

// Aborted reports whether an evidence item stopped the run.
func (r PipelineResult) Aborted() bool {
	return r.Abort != nil
}

// Pipeline runs download, classify, doc-type check, OCR, translate and
// extract for each evidence item in order. The first failure ends the run.
type Pipeline struct {
	caps           capability.Set
	objects        objectstore.Store
	audit          *audit.Publisher
	logger         *slog.Logger
	targetLanguage string
	callTimeout    time.Duration
}

func newPipeline(caps capability.Set, objects objectstore.Store, o *options) *Pipeline {
	return &Pipeline{
		caps:           caps,
		objects:        objects,
		audit:          o.audit,
		logger:         o.logger,
		targetLanguage: o.targetLanguage,
		callTimeout:    o.callTimeout,
	}
}

// Process walks evidences in order. ids lists the evidence ids the case
// references; ids without a loaded record abort the run.
func (p *Pipeline) Process(ctx context.Context, c *models.Case, ids []string, evidences []*models.Evidence, rules policy.CategoryRules) PipelineResult {
	byID := make(map[string]*models.Evidence, len(evidences))
	for _, ev := range evidences {
		byID[ev.ID] = ev
	}
	fields := rules.ExtractionFields
	if len(fields) == 0 {
		fields = defaultExtractionFields
	}

	bundle := make(map[string]ExtractedEvidence, len(ids))
	for _, id := range ids {
		ev, ok := byID[id]
		if !ok {
			return PipelineResult{Abort: p.processingDiscrepancy(ctx, c.ID, id, errEvidenceMissing)}
		}
		extracted, abort := p.processOne(ctx, c, ev, rules.AllowedDocumentTypes, fields)
		if abort != nil {
			return PipelineResult{Abort: abort}
		}
		bundle[ev.ID] = extracted
	}
	return PipelineResult{Bundle: bundle}
}

func (p *Pipeline) processOne(ctx context.Context, c *models.Case, ev *models.Evidence, allowed, fields []string) (ExtractedEvidence, *models.Discrepancy) {
	ctx, span := tracer.Start(ctx, "validation.evidence")
	defer span.End()
	span.SetAttributes(attribute.String("evidence.id", ev.ID))

	content, err := p.download(ctx, ev)
	if err != nil {
		return ExtractedEvidence{}, p.processingDiscrepancy(ctx, c.ID, ev.ID, err)
	}
	input := capability.EvidenceInput{Descriptor: Descriptor(ev), Content: content}

	classification, err := callCapability(ctx, p, c.ID, ev.ID, "classifier", func(ctx context.Context) (capability.Classification, error) {
		return p.caps.Classifier.Classify(ctx, input)
	})
	if err != nil {
		return ExtractedEvidence{}, p.processingDiscrepancy(ctx, c.ID, ev.ID, err)
	}
	classification.DocumentType = capability.NormalizeDocumentType(string(classification.DocumentType))
	span.SetAttributes(attribute.String("evidence.document_type", string(classification.DocumentType)))

	check := ValidateDocumentType(c.ID, c.CategoryID, ev.ID, string(classification.DocumentType), allowed, requestcontext.Now(ctx))
	if !check.Valid {
		p.logger.InfoContext(ctx, "evidence document type rejected by policy",
			"case_id", c.ID,
			"evidence_id", ev.ID,
			"document_type", classification.DocumentType,
		)
		return ExtractedEvidence{}, check.Discrepancy
	}

	ocr, err := callCapability(ctx, p, c.ID, ev.ID, "ocr", func(ctx context.Context) (capability.OCRResult, error) {
		return p.caps.OCR.Run(ctx, input)
	})
	if err != nil {
		return ExtractedEvidence{}, p.processingDiscrepancy(ctx, c.ID, ev.ID, err)
	}

	text := ocr.RawText
	if ocr.Language != "" && ocr.Language != p.targetLanguage {
		tr, err := callCapability(ctx, p, c.ID, ev.ID, "translator", func(ctx context.Context) (capability.Translation, error) {
			return p.caps.Translator.Translate(ctx, ocr, p.targetLanguage)
		})
		if err != nil {
			return ExtractedEvidence{}, p.processingDiscrepancy(ctx, c.ID, ev.ID, err)
		}
		text = tr.Text
	}

	raw, err := callCapability(ctx, p, c.ID, ev.ID, "extractor", func(ctx context.Context) (capability.ExtractedFields, error) {
		return p.caps.Extractor.Extract(ctx, text, fields)
	})
	if err != nil {
		return ExtractedEvidence{}, p.processingDiscrepancy(ctx, c.ID, ev.ID, err)
	}

	extracted, mean := normalizeFields(raw, fields)
	return ExtractedEvidence{
		DocType:              classification,
		Fields:               extracted,
		ExtractionConfidence: mean,
		OCRConfidence:        clamp(ocr.Confidence),
	}, nil
}

func (p *Pipeline) download(ctx context.Context, ev *models.Evidence) ([]byte, error) {
	start := time.Now()
	callCtx, cancel := bounded(ctx, p.callTimeout)
	defer cancel()
	data, err := p.objects.Download(callCtx, ev.StorageKey)
	observeCall("object_store", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ev.StorageKey, err)
	}
	return data, nil
}

// bounded applies the per-call timeout; zero means no bound beyond ctx.
func bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// callCapability bounds fn by the per-call timeout and records latency and
// an AI_INVOCATION audit event.
func callCapability[T any](ctx context.Context, p *Pipeline, caseID, evidenceID, name string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	callCtx, cancel := bounded(ctx, p.callTimeout)
	defer cancel()

	out, err := fn(callCtx)
	elapsed := time.Since(start)
	observeCall(name, err, elapsed)
	emitInvocation(ctx, p.audit, caseID, evidenceID, name, err, elapsed)
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func (p *Pipeline) processingDiscrepancy(ctx context.Context, caseID, evidenceID string, cause error) *models.Discrepancy {
	p.logger.WarnContext(ctx, "evidence processing failed",
		"case_id", caseID,
		"evidence_id", evidenceID,
		"error", cause,
	)
	d := models.NewDiscrepancy(caseID, FieldProcessingError,
		fmt.Sprintf("Failed to process evidence %s: %v", evidenceID, cause),
		models.SeverityHigh,
		requestcontext.Now(ctx),
	)
	d.ReceivedValue = models.StrPtr(evidenceID)
	d.ResolutionRequired = map[string]any{
		"action":      "reupload_evidence",
		"evidence_id": evidenceID,
	}
	return d
}

// Descriptor projects an evidence record onto the capability input.
func Descriptor(ev *models.Evidence) capability.EvidenceDescriptor {
	return capability.EvidenceDescriptor{
		ID:          ev.ID,
		FileName:    ev.FileName,
		ContentType: ev.ContentType,
		StorageKey:  ev.StorageKey,
	}
}

// normalizeFields keeps exactly the requested fields and returns the mean
// confidence across them.
func normalizeFields(raw capability.ExtractedFields, fields []string) (capability.ExtractedFields, float64) {
	out := make(capability.ExtractedFields, len(fields))
	var sum float64
	for _, name := range fields {
		fv := raw[name]
		if fv.Value == nil {
			out[name] = capability.FieldValue{}
			continue
		}
		fv.Confidence = clamp(fv.Confidence)
		out[name] = fv
		sum += fv.Confidence
	}
	if len(fields) == 0 {
		return out, 0
	}
	return out, sum / float64(len(fields))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func emitInvocation(ctx context.Context, pub *audit.Publisher, caseID, evidenceID, name string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(capability.GetCategory(err))
	}
	payload := map[string]any{
		"capability":  name,
		"outcome":     outcome,
		"duration_ms": elapsed.Milliseconds(),
	}
	if evidenceID != "" {
		payload["evidence_id"] = evidenceID
	}
	_ = pub.Emit(ctx, audit.Event{
		CaseID:  caseID,
		Type:    audit.EventAIInvocation,
		Action:  audit.ActionCapabilityCalled,
		Payload: payload,
	})
}
