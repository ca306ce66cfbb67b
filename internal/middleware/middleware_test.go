package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

type staticValidator struct{}

func (staticValidator) ValidateToken(_ context.Context, token string) (*model.TokenClaims, error) {
	if token != "good" {
		return nil, errors.Unauthorized(nil)
	}
	return &model.TokenClaims{Username: "reception", Role: "clerk"}, nil
}

func TestAuthenticate(t *testing.T) {
	engine := gin.New()
	engine.Use(NewAuthMiddleware(staticValidator{}).Authenticate())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("username")) })

	for header, want := range map[string]int{
		"":             http.StatusUnauthorized,
		"Basic good":   http.StatusUnauthorized,
		"Bearer bad":   http.StatusUnauthorized,
		"Bearer good":  http.StatusOK,
		"bearer  good": http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := serve(engine, req)
		assert.Equal(t, want, w.Code, header)
		if want == http.StatusOK {
			assert.Equal(t, "reception", w.Body.String())
		}
	}
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w = serve(engine, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/", func(c *gin.Context) { panic("boom") })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"error"`)
}

func TestTimeout(t *testing.T) {
	engine := gin.New()
	engine.Use(Timeout(TimeoutConfig{Duration: 10 * time.Millisecond}))
	engine.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	engine.GET("/fast", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusGatewayTimeout, serve(engine, httptest.NewRequest(http.MethodGet, "/slow", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/fast", nil)).Code)
}

func TestRateLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 2}).RateLimit())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.9:4000"
	assert.Equal(t, http.StatusOK, serve(engine, other).Code)
}

func TestSizeLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 16, MaxHeaderSize: 1 << 14}))
	engine.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	w = serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://clinic.example"}
	engine := gin.New()
	engine.Use(CORS(cfg))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://clinic.example")
	w := serve(engine, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://clinic.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.Equal(t, http.StatusForbidden, serve(engine, req).Code)
}

func TestCustomValidators(t *testing.T) {
	RegisterValidators()

	ok := model.CreatePatientRequest{FirstName: "A", LastName: "B", Age: model.IntPtr(3), Gender: "Male", Phone: "1"}
	require.NoError(t, binding.Validator.ValidateStruct(&ok))

	bad := ok
	bad.Gender = "unknown"
	assert.Error(t, binding.Validator.ValidateStruct(&bad))

	code := "j45.909"
	assert.NoError(t, binding.Validator.ValidateStruct(&model.CreateDiagnosisRequest{ICD10Code: &code, Condition: "Asthma"}))
	code = "45J"
	assert.Error(t, binding.Validator.ValidateStruct(&model.CreateDiagnosisRequest{ICD10Code: &code, Condition: "Asthma"}))
}
