package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NotFound("patient", nil), http.StatusNotFound},
		{BadRequest("invalid gender", nil), http.StatusBadRequest},
		{Conflict("duplicate license number", nil), http.StatusConflict},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Internal(fmt.Errorf("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.StatusCode(), tt.err.Error())
	}
}

func TestAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("create visit: %w", NotFound("doctor", nil))

	appErr, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "doctor not found", appErr.Message)
	assert.True(t, HasCode(wrapped, ErrNotFound))
	assert.False(t, HasCode(wrapped, ErrConflict))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := BadRequest("insufficient stock", fmt.Errorf("drug 4 has 5 units"))
	assert.Equal(t, "insufficient stock: drug 4 has 5 units", err.Error())
}
