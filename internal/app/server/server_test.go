package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrms/internal/domain/auth"
	"hrms/internal/domain/tax"
	"hrms/internal/platform/config"
	"hrms/internal/platform/metrics"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	store := tax.NewMemoryStore()
	cfg := config.Config{JWTSecret: "server-test", MaxBodyBytes: 2048, MetricsEnabled: true}
	return &App{
		Config:  cfg,
		Tax:     tax.NewService(store, store, tax.Options{}),
		Metrics: metrics.New(),
	}
}

func TestHealthEndpoints(t *testing.T) {
	router := NewRouter(newTestApp(t))
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestMetricsEndpointRequiresPermission(t *testing.T) {
	app := newTestApp(t)
	router := NewRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.GenerateToken("server-test", auth.Claims{UserID: "ops", RoleName: auth.RoleSystemAdmin}, time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "requestsTotal")
}

func TestBodyLimitApplied(t *testing.T) {
	router := NewRouter(newTestApp(t))
	token, err := auth.GenerateToken("server-test", auth.Claims{UserID: "u", RoleName: auth.RoleEmployee}, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tax/calculations/payroll", strings.NewReader(`{"employee_id":"`+strings.Repeat("x", 4096)+`"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
