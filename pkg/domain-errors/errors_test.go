package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	root := errors.New("boom")

	t.Run("direct code", func(t *testing.T) {
		err := Wrap(root, CodeNotFound, "case not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("nested through fmt wrapping", func(t *testing.T) {
		inner := New(CodeInvariantViolation, "illegal transition")
		err := fmt.Errorf("save case: %w", Wrap(inner, CodeInternal, "run failed"))
		assert.True(t, HasCode(err, CodeInternal))
		assert.True(t, HasCode(err, CodeInvariantViolation))
	})

	t.Run("foreign error", func(t *testing.T) {
		assert.False(t, HasCode(root, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(root))
	})

	t.Run("unwraps to root", func(t *testing.T) {
		err := Wrap(root, CodeTimeout, "deadline")
		assert.ErrorIs(t, err, root)
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:         http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeConflict:           http.StatusConflict,
		CodeInvariantViolation: http.StatusConflict,
		CodeUnauthorized:       http.StatusUnauthorized,
		CodeUnavailable:        http.StatusServiceUnavailable,
		CodeInternal:           http.StatusInternalServerError,
		Code("mystery"):        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
