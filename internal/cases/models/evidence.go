package models

import (
	"fmt"
	"strings"
	"time"
)

// EvidenceStatus tracks an uploaded document through verification.
type EvidenceStatus string

const (
	EvidenceInitiated EvidenceStatus = "INITIATED"
	EvidenceUploaded  EvidenceStatus = "UPLOADED"
	EvidenceVerified  EvidenceStatus = "VERIFIED"
	EvidenceRejected  EvidenceStatus = "REJECTED"
)

var allowedContentTypes = map[string]struct{}{
	"application/pdf":    {},
	"image/jpeg":         {},
	"image/jpg":          {},
	"image/png":          {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// IsAllowedContentType reports whether uploads of contentType are accepted.
func IsAllowedContentType(contentType string) bool {
	_, ok := allowedContentTypes[strings.ToLower(strings.TrimSpace(contentType))]
	return ok
}

// Evidence is a document attached to a case.
type Evidence struct {
	ID          string
	CaseID      string
	FileName    string
	ContentType string
	StorageKey  string
	Status      EvidenceStatus
	Checksum    string
	Size        int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StorageKey builds the object key for an evidence file.
func StorageKey(caseID, evidenceID, fileName string) string {
	return fmt.Sprintf("cases/%s/evidence/%s/%s", caseID, evidenceID, strings.ReplaceAll(fileName, " ", "_"))
}
