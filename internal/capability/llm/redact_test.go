package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	cases := []struct {
		name string
		cfg  RedactionConfig
		in   string
		want string
	}{
		{"email", DefaultRedaction, "contact ram.k@example.co.in today", "contact [REDACTED_EMAIL] today"},
		{"ten digit phone", DefaultRedaction, "mobile 9876543210", "mobile [REDACTED_PHONE]"},
		{"phone with country code", DefaultRedaction, "tel 91-9876543210", "tel [REDACTED_PHONE]"},
		{"pan", DefaultRedaction, "PAN ABCDE1234F", "PAN [REDACTED_TAX_ID]"},
		{"ssn", DefaultRedaction, "SSN 123-45-6789", "SSN [REDACTED_TAX_ID]"},
		{"passport number", DefaultRedaction, "Passport No: K1234567", "Passport No: [REDACTED_DOC_NO]"},
		{"names and dates kept", DefaultRedaction, "Name: MANOJ KUMAR SHARMA DOB: 1983-02-06", "Name: MANOJ KUMAR SHARMA DOB: 1983-02-06"},
		{"only emails", RedactionConfig{Emails: true}, "a@b.io K1234567", "[REDACTED_EMAIL] K1234567"},
		{"disabled", RedactionConfig{}, "a@b.io 9876543210 ABCDE1234F", "a@b.io 9876543210 ABCDE1234F"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.Redact(tc.in))
		})
	}
}

// promptRecorder keeps the last prompt it was sent.
type promptRecorder struct {
	prompt string
}

func (g *promptRecorder) Generate(_ context.Context, req Request) (string, error) {
	g.prompt = req.Prompt
	return `{"fields":[{"name":"full_name","value":"Ram","confidence":0.9}]}`, nil
}

func TestExtractorRedactsOutboundText(t *testing.T) {
	t.Run("default masks identifiers", func(t *testing.T) {
		gen := &promptRecorder{}
		set := NewSet("scripted", gen)
		_, err := set.Extractor.Extract(context.Background(), "Name: RAM\nEmail: ram@example.com\nPassport: K1234567", []string{"full_name"})
		require.NoError(t, err)
		assert.Contains(t, gen.prompt, "[REDACTED_EMAIL]")
		assert.Contains(t, gen.prompt, "[REDACTED_DOC_NO]")
		assert.NotContains(t, gen.prompt, "ram@example.com")
		assert.NotContains(t, gen.prompt, "K1234567")
	})

	t.Run("can be turned off", func(t *testing.T) {
		gen := &promptRecorder{}
		set := NewSet("scripted", gen, WithRedaction(RedactionConfig{}))
		_, err := set.Extractor.Extract(context.Background(), "Passport: K1234567", []string{"full_name"})
		require.NoError(t, err)
		assert.Contains(t, gen.prompt, "K1234567")
	})
}
