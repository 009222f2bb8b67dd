package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-backoffice-api/internal/handler"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	"github.com/noah-isme/agency-backoffice-api/internal/service"
)

const testSecret = "route-test-secret"

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := service.NewAuthService(nil, nil, nil, service.AuthConfig{AccessTokenSecret: testSecret, Issuer: "agency"})
	r := gin.New()
	registerRoutes(r, routeDeps{
		guard:        service.NewAccessGuard(nil),
		tokens:       auth,
		auth:         handler.NewAuthHandler(auth),
		applications: handler.NewApplicationHandler(nil),
		documents:    handler.NewDocumentHandler(nil, nil),
		finance:      handler.NewFinanceHandler(nil),
		feeTemplates: handler.NewFeeTemplateHandler(nil),
		settings:     handler.NewSettingsHandler(nil),
		settlements:  handler.NewSettlementHandler(nil),
		dashboard:    handler.NewDashboardHandler(nil),
		metrics:      handler.NewMetricsHandler(nil, nil),
	})
	return r
}

func signToken(t *testing.T, role models.UserRole) string {
	t.Helper()
	now := time.Now()
	claims := &models.JWTClaims{
		UserID:    "user-1",
		CompanyID: "tenant-a",
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "agency",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func request(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRoutesHealthIsPublic(t *testing.T) {
	r := newTestEngine(t)
	rec := request(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutesRequireToken(t *testing.T) {
	r := newTestEngine(t)

	rec := request(r, http.MethodGet, "/api/v1/applications", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = request(r, http.MethodGet, "/api/v1/applications", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutesEnforceCapabilities(t *testing.T) {
	r := newTestEngine(t)
	staff := signToken(t, models.RoleStaff)

	rec := request(r, http.MethodGet, "/api/v1/settings", staff)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = request(r, http.MethodPost, "/api/v1/applications/app-1/settlement/finalize", staff)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// staff may read the pipeline; the nil service surfaces as an internal error past the guard
	rec = request(r, http.MethodGet, "/api/v1/dashboard/pipeline", staff)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRoutesReportsOnlyWhenEnabled(t *testing.T) {
	r := newTestEngine(t)
	admin := signToken(t, models.RoleSuperAdmin)

	rec := request(r, http.MethodGet, "/api/v1/reports/job-1", admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
