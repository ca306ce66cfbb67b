package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kmc/ehr-api/internal/config"
	authhandler "github.com/kmc/ehr-api/internal/handler/auth"
	billinghandler "github.com/kmc/ehr-api/internal/handler/billing"
	doctorhandler "github.com/kmc/ehr-api/internal/handler/doctor"
	"github.com/kmc/ehr-api/internal/handler/health"
	inventoryhandler "github.com/kmc/ehr-api/internal/handler/inventory"
	medicalhandler "github.com/kmc/ehr-api/internal/handler/medical"
	patienthandler "github.com/kmc/ehr-api/internal/handler/patient"
	"github.com/kmc/ehr-api/internal/handler/prometheus"
	visithandler "github.com/kmc/ehr-api/internal/handler/visit"
	"github.com/kmc/ehr-api/internal/middleware"
	"github.com/kmc/ehr-api/internal/repository/memory"
	authsvc "github.com/kmc/ehr-api/internal/service/auth"
	"github.com/kmc/ehr-api/internal/service/billing"
	"github.com/kmc/ehr-api/internal/service/cascade"
	"github.com/kmc/ehr-api/internal/service/doctor"
	"github.com/kmc/ehr-api/internal/service/identifier"
	"github.com/kmc/ehr-api/internal/service/inventory"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/internal/service/medical"
	"github.com/kmc/ehr-api/internal/service/patient"
	"github.com/kmc/ehr-api/internal/service/visit"
	"github.com/kmc/ehr-api/pkg/auth"
	"github.com/kmc/ehr-api/pkg/metrics"
)

// APIResponse mirrors the response envelope.
type APIResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	token  string
}

func newTestServer(t *testing.T, withAuth bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	prom := prometheus.New("ehr_test")
	m := metrics.NewMetrics("ehr_test", "", prom.Registry())
	ids := identifier.NewGenerator(identifier.Config{Prefix: "KMC", Scope: identifier.ScopeMonthly}, m)
	resolver := lookup.NewResolver(time.Minute)
	ledger := inventory.NewLedger(10, nil, m)
	deleter := cascade.NewDeleter(ledger)

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("front-desk-pass")
	require.NoError(t, err)
	login := authsvc.NewService(
		[]config.StaffUser{{Username: "reception", Name: "Front Desk", Role: "clerk", PasswordHash: hash}},
		auth.NewJWTService("test-secret", "kmc-ehr", time.Hour), hasher, nil)

	var authMW *middleware.AuthMiddleware
	if withAuth {
		authMW = middleware.NewAuthMiddleware(login)
	}

	r := NewRouter(authMW, prom,
		health.NewHandler(map[string]health.Pinger{"store": store}),
		[]Handler{authhandler.NewHandler(login)},
		[]Handler{
			patienthandler.NewHandler(patient.NewService(store, ids, resolver, deleter, nil)),
			doctorhandler.NewHandler(doctor.NewService(store, ids, resolver, nil)),
			visithandler.NewHandler(visit.NewService(store, ids, resolver, deleter, nil)),
			medicalhandler.NewHandler(medical.NewService(store, resolver, nil)),
			inventoryhandler.NewHandler(inventory.NewService(store, ledger, resolver, nil)),
			billinghandler.NewHandler(billing.NewService(store, ids, resolver, deleter, nil, m)),
		},
		RouterConfig{RequestTimeout: 5 * time.Second, MaxBodyBytes: 1 << 20, CORSConfig: middleware.DefaultCORSConfig()},
	)
	r.Setup()
	return &testServer{t: t, engine: r.Engine()}
}

func (s *testServer) do(method, path string, body interface{}) (int, APIResponse) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp APIResponse
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

// data decodes the envelope's data into a generic map.
func data(t *testing.T, resp APIResponse) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &m))
	return m
}

func (s *testServer) seedClinic() (patientID, doctorID string, visitNum float64, visitID string) {
	t := s.t
	code, resp := s.do(http.MethodPost, "/patients", map[string]interface{}{
		"first_name": "Amina", "last_name": "Otieno", "age": 34, "gender": "FEMALE", "phone": "0722000000",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	p := data(t, resp)
	assert.Equal(t, "female", p["gender"])
	patientID = p["patient_id"].(string)

	code, resp = s.do(http.MethodPost, "/doctors", map[string]interface{}{
		"first_name": "Joseph", "last_name": "Mwangi", "license_number": "LIC-0001", "phone": "0733000000",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	doctorID = data(t, resp)["doctor_id"].(string)

	code, resp = s.do(http.MethodPost, "/visits", map[string]interface{}{
		"patient_id": patientID, "doctor_id": doctorID, "visit_type": "walk-in", "status": "in-progress",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	v := data(t, resp)
	return patientID, doctorID, v["id"].(float64), v["visit_id"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)

	code, _ := s.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ehr_test_http_requests_total")
}

func TestClinicalFlow(t *testing.T) {
	s := newTestServer(t, false)
	patientID, _, visitNum, visitID := s.seedClinic()

	// The business id carries a slash, so it travels percent-encoded.
	escaped := url.PathEscape(visitID)
	code, resp := s.do(http.MethodGet, "/visits/"+escaped, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, visitID, data(t, resp)["visit_id"])

	code, resp = s.do(http.MethodGet, fmt.Sprintf("/visits/%d/triage", int64(visitNum)), nil)
	require.Equal(t, http.StatusOK, code, "in-progress visit has a triage record")

	code, resp = s.do(http.MethodPut, "/visits/"+escaped+"/triage", map[string]interface{}{
		"height": 170, "weight": 70, "blood_pressure_systolic": 120, "blood_pressure_diastolic": 80,
	})
	require.Equal(t, http.StatusOK, code, resp.Message)
	tr := data(t, resp)
	assert.Equal(t, 24.2, tr["bmi"])
	assert.Equal(t, "120/80", tr["triage"].(map[string]interface{})["blood_pressure"])

	code, _ = s.do(http.MethodPut, "/visits/"+escaped+"/triage", map[string]interface{}{"temperature": 50})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = s.do(http.MethodPost, "/visits/"+escaped+"/diagnoses", map[string]interface{}{
		"icd10_code": "J45.909", "condition": "Asthma",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	diagID := data(t, resp)["id"].(float64)

	code, _ = s.do(http.MethodPost, "/visits/"+escaped+"/diagnoses", map[string]interface{}{
		"icd10_code": "not-a-code", "condition": "Asthma",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/diagnoses/%d", int64(diagID)), nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodGet, "/visits/"+escaped+"/report", nil)
	assert.Equal(t, http.StatusNotFound, code)
	review := time.Now().UTC().AddDate(0, 0, 14).Format(time.RFC3339)
	code, resp = s.do(http.MethodPut, "/visits/"+escaped+"/report", map[string]interface{}{
		"presenting_complaint": "Wheezing at night", "final_diagnosis": "Asthma", "review_date": review,
	})
	require.Equal(t, http.StatusOK, code, resp.Message)
	report := data(t, resp)
	assert.Equal(t, "Wheezing at night", report["presenting_complaint"])
	assert.Equal(t, visitNum, report["visit_id"])
	code, resp = s.do(http.MethodPut, fmt.Sprintf("/visits/%d/report", int64(visitNum)), map[string]interface{}{
		"management_plan": "Inhaler as needed",
	})
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, "Asthma", data(t, resp)["final_diagnosis"])
	code, _ = s.do(http.MethodPut, "/visits/"+escaped+"/report", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = s.do(http.MethodGet, "/patients/"+patientID+"/journey", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, data(t, resp)["next_step"])

	code, _ = s.do(http.MethodDelete, "/patients/"+patientID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodGet, "/visits/"+escaped, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, false)

	code, resp := s.do(http.MethodPost, "/patients", map[string]interface{}{
		"first_name": "Amina", "last_name": "Otieno", "age": 34, "gender": "other", "phone": "0722000000",
	})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, string(resp.Data), `"field":"gender"`)

	code, _ = s.do(http.MethodGet, "/patients/KMC-01-2024-9999", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodGet, "/drugs/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/doctors", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInventoryAndBilling(t *testing.T) {
	s := newTestServer(t, false)
	_, _, _, visitID := s.seedClinic()
	escaped := url.PathEscape(visitID)

	code, resp := s.do(http.MethodPost, "/drugs", map[string]interface{}{
		"name": "Amoxicillin 500mg", "unit_price": 10, "stock": 5,
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	drugID := int64(data(t, resp)["id"].(float64))

	code, _ = s.do(http.MethodPost, "/prescriptions", map[string]interface{}{
		"visit_id": visitID, "drug_id": drugID, "quantity": 10, "frequency": "tds",
	})
	assert.Equal(t, http.StatusBadRequest, code, "stock 5 cannot cover 10")

	code, resp = s.do(http.MethodGet, fmt.Sprintf("/drugs/%d", drugID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(5), data(t, resp)["stock"])

	code, resp = s.do(http.MethodPost, fmt.Sprintf("/drugs/%d/restock", drugID), map[string]interface{}{"quantity": 5})
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, float64(10), data(t, resp)["stock"])

	code, resp = s.do(http.MethodGet, "/drugs/low-stock", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = s.do(http.MethodPost, "/visits/"+escaped+"/invoice", map[string]interface{}{
		"professional_fee": 20, "tax_amount": 5, "discount_amount": 10,
		"items": []map[string]interface{}{{"drug_id": drugID, "quantity": 10}},
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	inv := data(t, resp)
	assert.Equal(t, float64(115), inv["total_amount"])
	invoiceID := int64(inv["id"].(float64))

	code, _ = s.do(http.MethodPost, "/visits/"+escaped+"/invoice", map[string]interface{}{})
	assert.Equal(t, http.StatusConflict, code)

	code, resp = s.do(http.MethodPost, fmt.Sprintf("/invoices/%d/payments", invoiceID), map[string]interface{}{
		"amount": 50, "payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	paymentID := int64(data(t, resp)["id"].(float64))

	code, resp = s.do(http.MethodGet, fmt.Sprintf("/invoices/%d", invoiceID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(65), data(t, resp)["balance_due"])

	code, resp = s.do(http.MethodGet, fmt.Sprintf("/payments/%d/receipt", paymentID), nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.NotEmpty(t, data(t, resp)["receipt_number"])

	code, _ = s.do(http.MethodGet, "/reports/financial?from=2000-01-01&to=2999-12-31", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodGet, "/reports/financial?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = s.do(http.MethodGet, "/reports/dashboard", nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	dash := data(t, resp)
	assert.Equal(t, float64(1), dash["active_patients"])
	months := dash["months"].([]interface{})
	require.Len(t, months, 6)
	current := months[5].(map[string]interface{})
	assert.Equal(t, time.Now().UTC().Format("2006-01"), current["month"])
	assert.Equal(t, float64(1), current["visits"])
	assert.Equal(t, float64(115), current["invoiced"])

	code, resp = s.do(http.MethodGet, "/reports/prescriptions?limit=5", nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Contains(t, data(t, resp), "top_drugs")
	code, _ = s.do(http.MethodGet, "/reports/prescriptions?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, true)

	code, _ := s.do(http.MethodGet, "/patients", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, "/auth/token", map[string]string{"username": "reception", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp := s.do(http.MethodPost, "/auth/token", map[string]string{"username": "reception", "password": "front-desk-pass"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	s.token = data(t, resp)["access_token"].(string)

	code, _ = s.do(http.MethodGet, "/patients", nil)
	assert.Equal(t, http.StatusOK, code)

	s.token = "garbage"
	code, _ = s.do(http.MethodGet, "/patients", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}
