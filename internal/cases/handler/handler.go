// Package handler exposes the case lifecycle over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kycgate/internal/audit"
	"kycgate/internal/cases/models"
	"kycgate/internal/cases/service"
	"kycgate/internal/platform/metrics"
	"kycgate/internal/platform/middleware"
	"kycgate/internal/policy"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/httputil"
	"kycgate/pkg/requestcontext"
)

const maxEvidenceBytes = 32 << 20

// Service is the lifecycle surface the handlers drive.
type Service interface {
	Initiate(ctx context.Context, customerID, categoryID string) (*models.Case, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*models.Case, error)
	RegisterEvidence(ctx context.Context, caseID, fileName, contentType string) (*models.Evidence, error)
	ConfirmUpload(ctx context.Context, evidenceID, checksum string, size int64) (*models.Evidence, error)
	UploadContent(ctx context.Context, evidenceID string, data []byte) (*models.Evidence, error)
	Submit(ctx context.Context, caseID string, in service.SubmitInput) (*models.Case, error)
	Resolve(ctx context.Context, caseID string, in service.ResolveInput) (*models.Case, error)
	Requeue(ctx context.Context, caseID string) (*models.Case, error)
	Status(ctx context.Context, caseID string) (*service.StatusView, error)
	SubmitForReview(ctx context.Context, caseID string) (*models.Case, error)
	StartReview(ctx context.Context, caseID string) (*models.Case, error)
	Decide(ctx context.Context, caseID string, decision service.Decision, reason string) (*models.Case, error)
	Close(ctx context.Context, caseID string) (*models.Case, error)
}

// Catalog serves the policy catalogue.
type Catalog interface {
	ListCategories(ctx context.Context) []policy.Category
	GetRequirements(ctx context.Context, categoryID, country, riskTier string) (policy.Requirements, error)
}

// AuditLog lists a case's audit trail.
type AuditLog interface {
	List(ctx context.Context, caseID string) ([]audit.Event, error)
}

type Handler struct {
	cases     Service
	catalog   Catalog
	auditLog  AuditLog
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

func New(cases Service, catalog Catalog, auditLog AuditLog, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		cases:     cases,
		catalog:   catalog,
		auditLog:  auditLog,
		logger:    logger,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the /v1 routes on r.
func (h *Handler) Register(r chi.Router) {
	v1 := chi.NewRouter()
	v1.Use(middleware.Recovery(h.logger))
	v1.Use(middleware.RequestID)
	v1.Use(middleware.RequestTime)
	v1.Use(middleware.Logger(h.logger))
	v1.Use(middleware.Latency(h.metrics))
	v1.Use(middleware.RequireAuth(h.validator, h.logger))

	v1.Get("/categories", h.handleListCategories)
	v1.Get("/categories/{categoryID}/requirements", h.handleRequirements)

	v1.Post("/cases", h.handleInitiate)
	v1.Get("/customers/{customerID}/cases", h.handleListByCustomer)
	v1.Get("/cases/{caseID}", h.handleStatus)
	v1.Post("/cases/{caseID}/evidence", h.handleRegisterEvidence)
	v1.Post("/cases/{caseID}/submit", h.handleSubmit)
	v1.Post("/cases/{caseID}/resolve", h.handleResolve)
	v1.Post("/cases/{caseID}/review-request", h.handleSubmitForReview)
	v1.Post("/evidence/{evidenceID}/confirm", h.handleConfirmUpload)
	v1.Put("/evidence/{evidenceID}/content", h.handleUploadContent)

	v1.Group(func(rev chi.Router) {
		rev.Use(middleware.RequireRole(h.logger, middleware.RoleReviewer))
		rev.Get("/cases/{caseID}/audit", h.handleAudit)
		rev.Post("/cases/{caseID}/requeue", h.handleRequeue)
		rev.Post("/cases/{caseID}/review/start", h.handleStartReview)
		rev.Post("/cases/{caseID}/review/decision", h.handleDecide)
		rev.Post("/cases/{caseID}/close", h.handleClose)
	})

	r.Mount("/v1", v1)
}

// fail writes err, logging unexpected failures at error level.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch code := dErrors.CodeOf(err); code {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, op+" failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	default:
		h.logger.WarnContext(ctx, op+" rejected",
			"error", err,
			"code", code,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats := h.catalog.ListCategories(r.Context())
	out := make([]CategoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, CategoryResponse{ID: c.ID, Title: c.Title, Description: c.Description})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRequirements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	req, err := h.catalog.GetRequirements(ctx, chi.URLParam(r, "categoryID"), q.Get("country"), q.Get("risk_tier"))
	if err != nil {
		if errors.Is(err, policy.ErrPolicyNotFound) {
			err = dErrors.Wrap(err, dErrors.CodeNotFound, "unknown category")
		}
		h.fail(ctx, w, "get requirements", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequirementsResponse(req))
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[InitiateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.cases.Initiate(ctx, req.CustomerID, req.CategoryID)
	if err != nil {
		h.fail(ctx, w, "initiate case", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCaseResponse(c))
}

func (h *Handler) handleListByCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.cases.ListByCustomer(ctx, chi.URLParam(r, "customerID"))
	if err != nil {
		h.fail(ctx, w, "list cases", err)
		return
	}
	out := make([]CaseResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCaseResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.cases.Status(ctx, chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(ctx, w, "case status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(view))
}

func (h *Handler) handleRegisterEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[RegisterEvidenceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	ev, err := h.cases.RegisterEvidence(ctx, chi.URLParam(r, "caseID"), req.FileName, req.ContentType)
	if err != nil {
		h.fail(ctx, w, "register evidence", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toEvidenceResponse(ev))
}

func (h *Handler) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[ConfirmUploadRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	ev, err := h.cases.ConfirmUpload(ctx, chi.URLParam(r, "evidenceID"), req.SHA256, req.FileSize)
	if err != nil {
		h.fail(ctx, w, "confirm upload", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEvidenceResponse(ev))
}

func (h *Handler) handleUploadContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEvidenceBytes))
	if err != nil {
		h.fail(ctx, w, "upload content", dErrors.Wrap(err, dErrors.CodeBadRequest, "evidence body too large or unreadable"))
		return
	}
	ev, err := h.cases.UploadContent(ctx, chi.URLParam(r, "evidenceID"), data)
	if err != nil {
		h.fail(ctx, w, "upload content", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEvidenceResponse(ev))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[SubmitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.cases.Submit(ctx, chi.URLParam(r, "caseID"), service.SubmitInput{
		Consent:         req.Consent,
		CustomerDetails: req.CustomerDetails,
		EvidenceIDs:     req.EvidenceIDs,
	})
	if err != nil {
		h.fail(ctx, w, "submit case", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toCaseResponse(c))
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[ResolveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.cases.Resolve(ctx, chi.URLParam(r, "caseID"), service.ResolveInput{
		UpdatedCustomerDetails: req.UpdatedCustomerDetails,
		AdditionalEvidenceIDs:  req.AdditionalEvidenceIDs,
	})
	if err != nil {
		h.fail(ctx, w, "resolve case", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toCaseResponse(c))
}

func (h *Handler) handleRequeue(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "requeue case", http.StatusAccepted, h.cases.Requeue)
}

func (h *Handler) handleSubmitForReview(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit for review", http.StatusOK, h.cases.SubmitForReview)
}

func (h *Handler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start review", http.StatusOK, h.cases.StartReview)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "close case", http.StatusOK, h.cases.Close)
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[DecisionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.cases.Decide(ctx, chi.URLParam(r, "caseID"), service.Decision(req.Decision), req.Reason)
	if err != nil {
		h.fail(ctx, w, "decide case", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCaseResponse(c))
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.auditLog.List(ctx, chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(ctx, w, "list audit", dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditResponse(events))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, status int, fn func(context.Context, string) (*models.Case, error)) {
	ctx := r.Context()
	c, err := fn(ctx, chi.URLParam(r, "caseID"))
	if err != nil {
		h.fail(ctx, w, op, err)
		return
	}
	httputil.WriteJSON(w, status, toCaseResponse(c))
}

