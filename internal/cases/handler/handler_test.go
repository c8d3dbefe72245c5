package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycgate/internal/audit"
	"kycgate/internal/cases/handler/mocks"
	"kycgate/internal/cases/models"
	"kycgate/internal/cases/service"
	"kycgate/internal/platform/middleware"
	"kycgate/internal/policy"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/handler-mocks.go -package=mocks

type tokens map[string]*middleware.Claims

func (t tokens) ValidateToken(token string) (*middleware.Claims, error) {
	if c, ok := t[token]; ok {
		return c, nil
	}
	return nil, errors.New("invalid")
}

type CaseHandlerSuite struct {
	suite.Suite
	router  chi.Router
	service *mocks.MockService
	catalog *mocks.MockCatalog
	audit   *mocks.MockAuditLog
}

func TestCaseHandlerSuite(t *testing.T) {
	suite.Run(t, new(CaseHandlerSuite))
}

func (s *CaseHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.catalog = mocks.NewMockCatalog(ctrl)
	s.audit = mocks.NewMockAuditLog(ctrl)
	validator := tokens{
		"svc": {Subject: "onboarding-web", Role: middleware.RoleService},
		"rev": {Subject: "analyst-7", Role: middleware.RoleReviewer},
	}
	h := New(s.service, s.catalog, s.audit, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, validator)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *CaseHandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](s *CaseHandlerSuite, rr *httptest.ResponseRecorder) T {
	var out T
	s.Require().NoError(json.NewDecoder(rr.Body).Decode(&out))
	return out
}

func sampleCase(status models.Status) *models.Case {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	return &models.Case{
		ID:            "INT-ABC",
		CustomerID:    "CUST-1",
		CategoryID:    "cip",
		PolicyVersion: "v1.0",
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *CaseHandlerSuite) TestRequiresAuth() {
	rr := s.do(http.MethodPost, "/v1/cases", "", InitiateRequest{CustomerID: "CUST-1", CategoryID: "cip"})
	s.Equal(http.StatusUnauthorized, rr.Code)
	s.NotEmpty(rr.Header().Get(middleware.HeaderRequestID))
}

func (s *CaseHandlerSuite) TestInitiate() {
	s.Run("created", func() {
		s.service.EXPECT().Initiate(gomock.Any(), "CUST-1", "cip").
			DoAndReturn(func(ctx context.Context, _, _ string) (*models.Case, error) {
				s.Equal("onboarding-web", requestcontext.ActorFrom(ctx).ID)
				return sampleCase(models.StatusDraft), nil
			})
		rr := s.do(http.MethodPost, "/v1/cases", "svc", InitiateRequest{CustomerID: " CUST-1 ", CategoryID: "cip"})
		s.Equal(http.StatusCreated, rr.Code)
		resp := decode[CaseResponse](s, rr)
		s.Equal("INT-ABC", resp.CaseID)
		s.Equal("DRAFT", resp.Status)
		s.Equal([]string{}, resp.EvidenceIDs)
	})
	s.Run("invalid body", func() {
		rr := s.do(http.MethodPost, "/v1/cases", "svc", []byte("{"))
		s.Equal(http.StatusBadRequest, rr.Code)
	})
	s.Run("missing fields", func() {
		rr := s.do(http.MethodPost, "/v1/cases", "svc", InitiateRequest{CustomerID: "CUST-1"})
		s.Equal(http.StatusBadRequest, rr.Code)
		s.Equal(string(dErrors.CodeValidation), decode[map[string]string](s, rr)["error"])
	})
}

func (s *CaseHandlerSuite) TestSubmit() {
	s.Run("accepted", func() {
		s.service.EXPECT().Submit(gomock.Any(), "INT-ABC", service.SubmitInput{
			Consent:         true,
			CustomerDetails: map[string]any{"full_name": "Jane Doe"},
			EvidenceIDs:     []string{"EVD-1"},
		}).Return(sampleCase(models.StatusValidating), nil)
		rr := s.do(http.MethodPost, "/v1/cases/INT-ABC/submit", "svc", SubmitRequest{
			Consent:         true,
			CustomerDetails: map[string]any{"full_name": "Jane Doe"},
			EvidenceIDs:     []string{"EVD-1"},
		})
		s.Equal(http.StatusAccepted, rr.Code)
		s.Equal("VALIDATING", decode[CaseResponse](s, rr).Status)
	})
	s.Run("no consent never reaches the service", func() {
		rr := s.do(http.MethodPost, "/v1/cases/INT-ABC/submit", "svc", SubmitRequest{EvidenceIDs: []string{"EVD-1"}})
		s.Equal(http.StatusBadRequest, rr.Code)
	})
	s.Run("wrong state is a conflict", func() {
		s.service.EXPECT().Submit(gomock.Any(), "INT-ABC", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "case is VALIDATING"))
		rr := s.do(http.MethodPost, "/v1/cases/INT-ABC/submit", "svc", SubmitRequest{Consent: true, EvidenceIDs: []string{"EVD-1"}})
		s.Equal(http.StatusConflict, rr.Code)
		s.Equal("case is VALIDATING", decode[map[string]string](s, rr)["error_description"])
	})
}

func (s *CaseHandlerSuite) TestStatus() {
	d := models.NewDiscrepancy("INT-ABC", "dob", "DOB mismatch with customer profile", models.SeverityCritical, time.Now())
	d.ExpectedValue = models.StrPtr("1990-01-01")
	d.ReceivedValue = models.StrPtr("1990-01-10")
	d.ResolutionRequired = map[string]any{"action": "update_form"}
	s.service.EXPECT().Status(gomock.Any(), "INT-ABC").Return(&service.StatusView{
		Case:          sampleCase(models.StatusActionRequired),
		Discrepancies: []*models.Discrepancy{d},
		NextSteps:     service.NextSteps(models.StatusActionRequired),
	}, nil)

	rr := s.do(http.MethodGet, "/v1/cases/INT-ABC", "svc", nil)
	s.Equal(http.StatusOK, rr.Code)
	resp := decode[StatusResponse](s, rr)
	s.Equal("ACTION_REQUIRED", resp.Status)
	s.Require().Len(resp.Discrepancies, 1)
	s.Equal("CRITICAL", resp.Discrepancies[0].Severity)
	s.Equal("1990-01-10", *resp.Discrepancies[0].ReceivedValue)
	s.Equal("update_form", resp.Discrepancies[0].ResolutionRequired["action"])

	s.service.EXPECT().Status(gomock.Any(), "INT-NOPE").Return(nil, dErrors.New(dErrors.CodeNotFound, "case not found"))
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v1/cases/INT-NOPE", "svc", nil).Code)
}

func (s *CaseHandlerSuite) TestEvidence() {
	ev := &models.Evidence{ID: "EVD-1", CaseID: "INT-ABC", FileName: "p.pdf", ContentType: "application/pdf", Status: models.EvidenceInitiated}
	s.service.EXPECT().RegisterEvidence(gomock.Any(), "INT-ABC", "p.pdf", "application/pdf").Return(ev, nil)
	rr := s.do(http.MethodPost, "/v1/cases/INT-ABC/evidence", "svc", RegisterEvidenceRequest{FileName: "p.pdf", ContentType: "application/pdf"})
	s.Equal(http.StatusCreated, rr.Code)
	s.Equal("INITIATED", decode[EvidenceResponse](s, rr).Status)

	sum := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	verified := *ev
	verified.Status = models.EvidenceVerified
	s.service.EXPECT().ConfirmUpload(gomock.Any(), "EVD-1", sum, int64(5)).Return(&verified, nil)
	rr = s.do(http.MethodPost, "/v1/evidence/EVD-1/confirm", "svc", ConfirmUploadRequest{SHA256: sum, FileSize: 5})
	s.Equal(http.StatusOK, rr.Code)

	rr = s.do(http.MethodPost, "/v1/evidence/EVD-1/confirm", "svc", ConfirmUploadRequest{SHA256: "short", FileSize: 5})
	s.Equal(http.StatusBadRequest, rr.Code)

	s.service.EXPECT().UploadContent(gomock.Any(), "EVD-1", []byte("hello")).Return(&verified, nil)
	rr = s.do(http.MethodPut, "/v1/evidence/EVD-1/content", "svc", []byte("hello"))
	s.Equal(http.StatusOK, rr.Code)
	s.Equal("VERIFIED", decode[EvidenceResponse](s, rr).Status)
}

func (s *CaseHandlerSuite) TestReviewerRoutes() {
	s.Run("service token is forbidden", func() {
		rr := s.do(http.MethodPost, "/v1/cases/INT-ABC/review/start", "svc", nil)
		s.Equal(http.StatusForbidden, rr.Code)
	})
	s.Run("start review", func() {
		s.service.EXPECT().StartReview(gomock.Any(), "INT-ABC").Return(sampleCase(models.StatusInReview), nil)
		rr := s.do(http.MethodPost, "/v1/cases/INT-ABC/review/start", "rev", nil)
		s.Equal(http.StatusOK, rr.Code)
	})
	s.Run("decision", func() {
		s.service.EXPECT().Decide(gomock.Any(), "INT-ABC", service.DecisionReject, "forged").
			Return(sampleCase(models.StatusRejected), nil)
		rr := s.do(http.MethodPost, "/v1/cases/INT-ABC/review/decision", "rev", DecisionRequest{Decision: "reject", Reason: "forged"})
		s.Equal(http.StatusOK, rr.Code)
		s.Equal("REJECTED", decode[CaseResponse](s, rr).Status)
	})
	s.Run("bad decision", func() {
		rr := s.do(http.MethodPost, "/v1/cases/INT-ABC/review/decision", "rev", DecisionRequest{Decision: "maybe"})
		s.Equal(http.StatusBadRequest, rr.Code)
	})
	s.Run("audit trail", func() {
		s.audit.EXPECT().List(gomock.Any(), "INT-ABC").Return([]audit.Event{
			audit.Transition("INT-ABC", "VALIDATING", "VALIDATED", "validation passed"),
		}, nil)
		rr := s.do(http.MethodGet, "/v1/cases/INT-ABC/audit", "rev", nil)
		s.Equal(http.StatusOK, rr.Code)
		events := decode[[]AuditEventResponse](s, rr)
		s.Require().Len(events, 1)
		s.Equal("VALIDATED", events[0].ToStatus)
	})
	s.Run("unavailable scheduler on requeue", func() {
		s.service.EXPECT().Requeue(gomock.Any(), "INT-ABC").
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "validation could not be scheduled, requeue the case"))
		rr := s.do(http.MethodPost, "/v1/cases/INT-ABC/requeue", "rev", nil)
		s.Equal(http.StatusServiceUnavailable, rr.Code)
	})
}

func (s *CaseHandlerSuite) TestCatalog() {
	s.catalog.EXPECT().ListCategories(gomock.Any()).Return([]policy.Category{{ID: "cip", Title: "Customer Identification"}})
	rr := s.do(http.MethodGet, "/v1/categories", "svc", nil)
	s.Equal(http.StatusOK, rr.Code)
	s.Equal("cip", decode[[]CategoryResponse](s, rr)[0].ID)

	s.catalog.EXPECT().GetRequirements(gomock.Any(), "cip", "IN", "high").Return(policy.Requirements{
		CategoryID:    "cip",
		PolicyVersion: "v1.0",
		Rules:         policy.CategoryRules{ExtractionFields: []string{"full_name"}},
	}, nil)
	rr = s.do(http.MethodGet, "/v1/categories/cip/requirements?country=IN&risk_tier=high", "svc", nil)
	s.Equal(http.StatusOK, rr.Code)
	s.Equal([]string{"full_name"}, decode[RequirementsResponse](s, rr).ExtractionFields)

	s.catalog.EXPECT().GetRequirements(gomock.Any(), "nope", "", "").Return(policy.Requirements{}, policy.ErrPolicyNotFound)
	rr = s.do(http.MethodGet, "/v1/categories/nope/requirements", "svc", nil)
	s.Equal(http.StatusNotFound, rr.Code)
}
