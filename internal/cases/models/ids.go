package models

import (
	"time"

	"github.com/google/uuid"
)

const hexDigits = "0123456789ABCDEF"

// UUID nibbles 12 (version) and 16 (variant) are fixed in a v4 UUID.
const (
	versionNibble = 12
	variantNibble = 16
)

// hexID appends n random uppercase hex digits to prefix. n must not exceed 30.
func hexID(prefix string, n int) string {
	u := uuid.New()
	out := make([]byte, 0, len(prefix)+n)
	out = append(out, prefix...)
	for i, taken := 0, 0; taken < n; i++ {
		if i == versionNibble || i == variantNibble {
			continue
		}
		b := u[i/2]
		if i%2 == 0 {
			b >>= 4
		}
		out = append(out, hexDigits[b&0x0f])
		taken++
	}
	return string(out)
}

// NewCaseID returns an internal case identifier, e.g. INT-3F2A9C1B7D04.
func NewCaseID() string { return hexID("INT-", 12) }

// NewEvidenceID returns an evidence identifier with 16 hex characters.
func NewEvidenceID() string { return hexID("EVD-", 16) }

// NewDiscrepancyID returns a discrepancy identifier with 12 hex characters.
func NewDiscrepancyID() string { return hexID("DISC-", 12) }

// NewFinalCaseID returns the reviewer-facing identifier for a case entering
// human review, e.g. KYC-20261017-9C1B7D.
func NewFinalCaseID(now time.Time) string {
	return hexID("KYC-"+now.UTC().Format("20060102")+"-", 6)
}
