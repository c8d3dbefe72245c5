package capability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Run("retryable categories", func(t *testing.T) {
		for _, cat := range []ErrorCategory{ErrorTimeout, ErrorOutage, ErrorRateLimited, ErrorContractMismatch} {
			assert.True(t, NewError(cat, "reasoner", "x", nil).Retryable, string(cat))
		}
		for _, cat := range []ErrorCategory{ErrorAuthentication, ErrorBadOutput, ErrorInternal} {
			assert.False(t, NewError(cat, "reasoner", "x", nil).Retryable, string(cat))
		}
	})

	t.Run("survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("reason: %w", NewError(ErrorTimeout, "reasoner", "slow", context.DeadlineExceeded))
		assert.True(t, IsRetryable(err))
		assert.Equal(t, ErrorTimeout, GetCategory(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("foreign errors", func(t *testing.T) {
		assert.False(t, IsRetryable(errors.New("x")))
		assert.Equal(t, ErrorInternal, GetCategory(errors.New("x")))
	})
}

func TestCategoryFromStatus(t *testing.T) {
	assert.Equal(t, ErrorAuthentication, CategoryFromStatus(http.StatusForbidden))
	assert.Equal(t, ErrorRateLimited, CategoryFromStatus(http.StatusTooManyRequests))
	assert.Equal(t, ErrorTimeout, CategoryFromStatus(http.StatusGatewayTimeout))
	assert.Equal(t, ErrorOutage, CategoryFromStatus(http.StatusBadGateway))
	assert.Equal(t, ErrorInternal, CategoryFromStatus(http.StatusBadRequest))
}

func TestNormalizeDocumentType(t *testing.T) {
	assert.Equal(t, DocPassport, NormalizeDocumentType(" Passport "))
	assert.Equal(t, DocSOFDeclaration, NormalizeDocumentType("sof_declaration"))
	assert.Equal(t, DocUnknown, NormalizeDocumentType("selfie"))
	assert.Equal(t, DocUnknown, NormalizeDocumentType(""))
}

func TestSetValidate(t *testing.T) {
	err := Set{}.Validate()
	assert.ErrorContains(t, err, "classifier not configured")
	assert.ErrorContains(t, err, "reasoner not configured")
}
