package llm

import "regexp"

// RedactionConfig selects which identifiers are masked in document text
// before it leaves the process for field extraction.
type RedactionConfig struct {
	Emails     bool
	Phones     bool
	TaxIDs     bool
	DocNumbers bool
}

// DefaultRedaction masks every supported identifier.
var DefaultRedaction = RedactionConfig{Emails: true, Phones: true, TaxIDs: true, DocNumbers: true}

var (
	emailPattern  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern  = regexp.MustCompile(`\b(\+?\d{1,3}[- ]?)?\d{10}\b`)
	taxIDPattern  = regexp.MustCompile(`\b([A-Z]{5}\d{4}[A-Z])\b|\b(\d{3}-\d{2}-\d{4})\b`)
	docNumPattern = regexp.MustCompile(`\b[A-Z0-9]{7,14}\b`)
)

// Redact masks identifiers in text. Order matters: tax ids are replaced
// before the broader document-number pattern can claim them.
func (c RedactionConfig) Redact(text string) string {
	if c.Emails {
		text = emailPattern.ReplaceAllString(text, "[REDACTED_EMAIL]")
	}
	if c.Phones {
		text = phonePattern.ReplaceAllString(text, "[REDACTED_PHONE]")
	}
	if c.TaxIDs {
		text = taxIDPattern.ReplaceAllString(text, "[REDACTED_TAX_ID]")
	}
	if c.DocNumbers {
		text = docNumPattern.ReplaceAllString(text, "[REDACTED_DOC_NO]")
	}
	return text
}
