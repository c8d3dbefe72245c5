package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCase(t *testing.T) {
	now := time.Now()

	t.Run("defaults", func(t *testing.T) {
		c, err := NewCase("C-1", "cip", "", now)
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, c.Status)
		assert.Equal(t, DefaultPolicyVersion, c.PolicyVersion)
		assert.True(t, strings.HasPrefix(c.ID, "INT-"))
		assert.Len(t, c.ID, len("INT-")+12)
		assert.NotNil(t, c.FormPayload)
	})

	t.Run("requires customer and category", func(t *testing.T) {
		_, err := NewCase("", "cip", "", now)
		assert.Error(t, err)
		_, err = NewCase("C-1", "", "", now)
		assert.Error(t, err)
	})
}

func TestAssignFinalCaseIDOnce(t *testing.T) {
	c := &Case{ID: "INT-1"}
	c.AssignFinalCaseID(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	first := c.FinalCaseID
	require.True(t, strings.HasPrefix(first, "KYC-20260102-"))

	c.AssignFinalCaseID(time.Now())
	assert.Equal(t, first, c.FinalCaseID)
}

func TestAttachEvidenceIsSetUnion(t *testing.T) {
	c := &Case{EvidenceIDs: []string{"EVD-A"}}
	c.AttachEvidence([]string{"EVD-B", "EVD-A"})
	assert.Equal(t, []string{"EVD-A", "EVD-B"}, c.EvidenceIDs)
}

func TestParseSeverity(t *testing.T) {
	for _, raw := range []string{"low", "Medium", " HIGH ", "critical"} {
		_, err := ParseSeverity(raw)
		assert.NoError(t, err, raw)
	}

	_, err := ParseSeverity("SEVERE")
	assert.ErrorIs(t, err, ErrUnknownSeverity)
	_, err = ParseSeverity("")
	assert.ErrorIs(t, err, ErrUnknownSeverity)
}

func TestStorageKey(t *testing.T) {
	assert.Equal(t, "cases/INT-1/evidence/EVD-2/my_passport.pdf", StorageKey("INT-1", "EVD-2", "my passport.pdf"))
	assert.True(t, IsAllowedContentType("Application/PDF"))
	assert.False(t, IsAllowedContentType("text/html"))
}

func TestGeneratedIDsHaveNoFixedPositions(t *testing.T) {
	const samples = 200
	seen := make([]map[byte]bool, 16)
	for i := range seen {
		seen[i] = map[byte]bool{}
	}
	for range samples {
		id := NewEvidenceID()
		require.Len(t, id, len("EVD-")+16)
		suffix := strings.TrimPrefix(id, "EVD-")
		for i := range len(suffix) {
			require.Contains(t, hexDigits, string(suffix[i]))
			seen[i][suffix[i]] = true
		}
	}
	for i, chars := range seen {
		assert.Greater(t, len(chars), 1, "position %d never varies", i)
	}

	final := NewFinalCaseID(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))
	assert.Regexp(t, `^KYC-20261017-[0-9A-F]{6}$`, final)
}
