package handler

import (
	"strings"
	"time"

	"kycgate/internal/audit"
	"kycgate/internal/cases/models"
	"kycgate/internal/cases/service"
	"kycgate/internal/policy"
	dErrors "kycgate/pkg/domain-errors"
)

type InitiateRequest struct {
	CustomerID string `json:"customer_id"`
	CategoryID string `json:"category_id"`
}

func (r *InitiateRequest) Validate() error {
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.CategoryID = strings.TrimSpace(r.CategoryID)
	if r.CustomerID == "" || r.CategoryID == "" {
		return dErrors.New(dErrors.CodeValidation, "customer_id and category_id are required")
	}
	return nil
}

type SubmitRequest struct {
	Consent         bool           `json:"consent"`
	CustomerDetails map[string]any `json:"customer_details"`
	EvidenceIDs     []string       `json:"evidence_ids"`
}

func (r *SubmitRequest) Validate() error {
	if !r.Consent {
		return dErrors.New(dErrors.CodeValidation, "consent required")
	}
	if len(r.EvidenceIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "evidence_ids must not be empty")
	}
	return nil
}

type ResolveRequest struct {
	UpdatedCustomerDetails map[string]any `json:"updated_customer_details"`
	AdditionalEvidenceIDs  []string       `json:"additional_evidence_ids"`
}

func (r *ResolveRequest) Validate() error {
	return nil
}

type RegisterEvidenceRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

func (r *RegisterEvidenceRequest) Validate() error {
	if strings.TrimSpace(r.FileName) == "" || strings.TrimSpace(r.ContentType) == "" {
		return dErrors.New(dErrors.CodeValidation, "file_name and content_type are required")
	}
	return nil
}

type ConfirmUploadRequest struct {
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

func (r *ConfirmUploadRequest) Validate() error {
	if len(strings.TrimSpace(r.SHA256)) != 64 {
		return dErrors.New(dErrors.CodeValidation, "sha256 must be a 64 character hex digest")
	}
	if r.FileSize <= 0 {
		return dErrors.New(dErrors.CodeValidation, "file_size must be positive")
	}
	return nil
}

type DecisionRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func (r *DecisionRequest) Validate() error {
	switch service.Decision(r.Decision) {
	case service.DecisionApprove, service.DecisionReject:
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, "decision must be approve or reject")
}

type CaseResponse struct {
	CaseID        string         `json:"case_id"`
	CustomerID    string         `json:"customer_id"`
	CategoryID    string         `json:"category_id"`
	PolicyVersion string         `json:"policy_version"`
	Status        string         `json:"status"`
	EvidenceIDs   []string       `json:"evidence_ids"`
	FinalCaseID   string         `json:"final_case_id,omitempty"`
	FormPayload   map[string]any `json:"customer_details,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func toCaseResponse(c *models.Case) CaseResponse {
	ids := c.EvidenceIDs
	if ids == nil {
		ids = []string{}
	}
	return CaseResponse{
		CaseID:        c.ID,
		CustomerID:    c.CustomerID,
		CategoryID:    c.CategoryID,
		PolicyVersion: c.PolicyVersion,
		Status:        string(c.Status),
		EvidenceIDs:   ids,
		FinalCaseID:   c.FinalCaseID,
		FormPayload:   c.FormPayload,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type DiscrepancyResponse struct {
	ID                 string         `json:"id"`
	Field              string         `json:"field"`
	Message            string         `json:"message"`
	ExpectedValue      *string        `json:"expected_value"`
	ReceivedValue      *string        `json:"received_value"`
	Severity           string         `json:"severity"`
	Status             string         `json:"status"`
	ResolutionRequired map[string]any `json:"resolution_required"`
}

type StatusResponse struct {
	CaseID        string                `json:"case_id"`
	Status        string                `json:"status"`
	FinalCaseID   string                `json:"final_case_id,omitempty"`
	Discrepancies []DiscrepancyResponse `json:"discrepancies"`
	NextSteps     []string              `json:"next_steps"`
}

func toStatusResponse(v *service.StatusView) StatusResponse {
	out := StatusResponse{
		CaseID:        v.Case.ID,
		Status:        string(v.Case.Status),
		FinalCaseID:   v.Case.FinalCaseID,
		Discrepancies: make([]DiscrepancyResponse, 0, len(v.Discrepancies)),
		NextSteps:     v.NextSteps,
	}
	for _, d := range v.Discrepancies {
		out.Discrepancies = append(out.Discrepancies, DiscrepancyResponse{
			ID:                 d.ID,
			Field:              d.Field,
			Message:            d.Message,
			ExpectedValue:      d.ExpectedValue,
			ReceivedValue:      d.ReceivedValue,
			Severity:           string(d.Severity),
			Status:             string(d.Status),
			ResolutionRequired: d.ResolutionRequired,
		})
	}
	return out
}

type EvidenceResponse struct {
	EvidenceID  string `json:"evidence_id"`
	CaseID      string `json:"case_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"storage_key"`
	Status      string `json:"status"`
	SHA256      string `json:"sha256,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
}

func toEvidenceResponse(ev *models.Evidence) EvidenceResponse {
	return EvidenceResponse{
		EvidenceID:  ev.ID,
		CaseID:      ev.CaseID,
		FileName:    ev.FileName,
		ContentType: ev.ContentType,
		StorageKey:  ev.StorageKey,
		Status:      string(ev.Status),
		SHA256:      ev.Checksum,
		FileSize:    ev.Size,
	}
}

type CategoryResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type RequirementsResponse struct {
	CategoryID        string            `json:"category_id"`
	PolicyVersion     string            `json:"policy_version"`
	RequiredFields    []string          `json:"required_fields"`
	RequiredDocuments []string          `json:"required_documents"`
	ExtractionFields  []string          `json:"extraction_fields"`
	Controls          map[string]string `json:"controls"`
}

func toRequirementsResponse(r policy.Requirements) RequirementsResponse {
	return RequirementsResponse{
		CategoryID:        r.CategoryID,
		PolicyVersion:     r.PolicyVersion,
		RequiredFields:    r.RequiredFields,
		RequiredDocuments: r.RequiredDocuments,
		ExtractionFields:  r.Rules.ExtractionFields,
		Controls:          r.Controls,
	}
}

type AuditEventResponse struct {
	Type       string         `json:"type"`
	Action     string         `json:"action"`
	ActorType  string         `json:"actor_type"`
	ActorID    string         `json:"actor_id"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func toAuditResponse(events []audit.Event) []AuditEventResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventResponse{
			Type:       string(e.Type),
			Action:     e.Action,
			ActorType:  e.ActorType,
			ActorID:    e.ActorID,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Reason:     e.Reason,
			Payload:    e.Payload,
			Timestamp:  e.Timestamp,
		})
	}
	return out
}
