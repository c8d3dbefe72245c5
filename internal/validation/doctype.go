package validation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"kycgate/internal/cases/models"
)

// DocTypeCheck is the outcome of matching a classified document against the
// category's allow-list. Discrepancy is set only when Valid is false.
type DocTypeCheck struct {
	Valid       bool
	Discrepancy *models.Discrepancy
}

// ValidateDocumentType accepts any type when allowed is empty.
func ValidateDocumentType(caseID, categoryID, evidenceID, docType string, allowed []string, now time.Time) DocTypeCheck {
	if len(allowed) == 0 || slices.Contains(allowed, docType) {
		return DocTypeCheck{Valid: true}
	}

	d := models.NewDiscrepancy(caseID,
		fmt.Sprintf("evidence.%s.document_type", evidenceID),
		fmt.Sprintf("Document type '%s' is not acceptable for category '%s'.", docType, categoryID),
		models.SeverityHigh,
		now,
	)
	d.ExpectedValue = models.StrPtr("Allowed: [" + strings.Join(allowed, ", ") + "]")
	d.ReceivedValue = models.StrPtr(docType)
	d.ResolutionRequired = map[string]any{
		"action":            "upload_additional_doc",
		"allowed_doc_types": slices.Clone(allowed),
	}
	return DocTypeCheck{Valid: false, Discrepancy: d}
}
