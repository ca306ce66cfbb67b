package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kmc/ehr-api/pkg/errors"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", errors.NotFound("patient", nil), http.StatusNotFound, "patient not found"},
		{"wrapped conflict", fmt.Errorf("create: %w", errors.Conflict("duplicate license number", nil)), http.StatusConflict, "duplicate license number"},
		{"bad request", errors.BadRequest("insufficient stock", nil), http.StatusBadRequest, "insufficient stock"},
		{"internal hides detail", errors.Internal(fmt.Errorf("pq: connection refused")), http.StatusInternalServerError, "internal server error"},
		{"deadline", fmt.Errorf("list visits: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "request timed out"},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestParamID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, raw := range []string{"abc", "0", "-3"} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Params = gin.Params{{Key: "id", Value: raw}}

		_, ok := ParamID(c, "id")
		assert.False(t, ok, raw)
		assert.Equal(t, http.StatusBadRequest, w.Code, raw)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	id, ok := ParamID(c, "id")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}
