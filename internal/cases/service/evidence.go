package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"kycgate/internal/audit"
	"kycgate/internal/cases/models"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/sentinel"
	"kycgate/pkg/requestcontext"
)

// RegisterEvidence records an INITIATED evidence row and returns the object
// key the document must be uploaded under.
func (s *Service) RegisterEvidence(ctx context.Context, caseID, fileName, contentType string) (*models.Evidence, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "file_name is required")
	}
	if !models.IsAllowedContentType(contentType) {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported content_type: %s", contentType))
	}
	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeConflict, "case is closed")
	}

	now := requestcontext.Now(ctx)
	id := models.NewEvidenceID()
	ev := &models.Evidence{
		ID:          id,
		CaseID:      c.ID,
		FileName:    fileName,
		ContentType: strings.ToLower(strings.TrimSpace(contentType)),
		StorageKey:  models.StorageKey(c.ID, id, fileName),
		Status:      models.EvidenceInitiated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Evidence.Create(ctx, ev); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register evidence")
	}
	s.emit(ctx, audit.Event{
		CaseID:  c.ID,
		Type:    audit.EventEvidence,
		Action:  audit.ActionEvidenceRegistered,
		Payload: map[string]any{"evidence_id": id, "storage_key": ev.StorageKey, "content_type": ev.ContentType},
	})
	return ev, nil
}

// ConfirmUpload marks evidence VERIFIED once its object exists. Confirming
// an already VERIFIED record returns it unchanged.
func (s *Service) ConfirmUpload(ctx context.Context, evidenceID, checksum string, size int64) (*models.Evidence, error) {
	ev, err := s.loadEvidence(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	if ev.Status == models.EvidenceVerified {
		return ev, nil
	}
	if size < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file_size must not be negative")
	}
	exists, err := s.Objects.Exists(ctx, ev.StorageKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check evidence object")
	}
	if !exists {
		return nil, dErrors.New(dErrors.CodeValidation, "evidence object has not been uploaded")
	}

	ev.Checksum = strings.ToLower(strings.TrimSpace(checksum))
	ev.Size = size
	ev.Status = models.EvidenceVerified
	ev.UpdatedAt = requestcontext.Now(ctx)
	if err := s.Evidence.Update(ctx, ev); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to confirm evidence")
	}
	s.emit(ctx, audit.Event{
		CaseID:  ev.CaseID,
		Type:    audit.EventEvidence,
		Action:  audit.ActionEvidenceConfirmed,
		Payload: map[string]any{"evidence_id": ev.ID, "storage_key": ev.StorageKey, "sha256": ev.Checksum, "size": size},
	})
	return ev, nil
}

// UploadContent stores the document bytes under the evidence key and
// confirms the upload with the computed checksum.
func (s *Service) UploadContent(ctx context.Context, evidenceID string, data []byte) (*models.Evidence, error) {
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "empty upload")
	}
	ev, err := s.loadEvidence(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	if ev.Status == models.EvidenceVerified {
		return nil, dErrors.New(dErrors.CodeConflict, "evidence already uploaded")
	}
	if err := s.Objects.Upload(ctx, ev.StorageKey, ev.ContentType, data); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store evidence")
	}
	sum := sha256.Sum256(data)
	return s.ConfirmUpload(ctx, evidenceID, hex.EncodeToString(sum[:]), int64(len(data)))
}

func (s *Service) loadEvidence(ctx context.Context, evidenceID string) (*models.Evidence, error) {
	ev, err := s.Evidence.FindByID(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "evidence not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load evidence")
	}
	return ev, nil
}
