package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/middleware"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

type fakeDashboardSrv struct {
	pipelineResp *models.PipelineBoard
	pipelineHit  bool
	financeResp  *models.FinanceDashboard
	financeHit   bool
	err          error
	lastQuery    dto.DashboardQuery
}

func (f *fakeDashboardSrv) Pipeline(context.Context, *models.JWTClaims) (*models.PipelineBoard, bool, error) {
	return f.pipelineResp, f.pipelineHit, f.err
}

func (f *fakeDashboardSrv) Finance(_ context.Context, _ *models.JWTClaims, query dto.DashboardQuery) (*models.FinanceDashboard, bool, error) {
	f.lastQuery = query
	return f.financeResp, f.financeHit, f.err
}

func TestDashboardHandlerPipelineSetsCacheMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{
		pipelineResp: &models.PipelineBoard{Total: 3, Columns: []models.PipelineColumn{{Status: models.StatusPendingMOL, Count: 3}}},
		pipelineHit:  true,
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/pipeline", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", CompanyID: "tenant-a", Role: models.RoleStaff})

	handler.Pipeline(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
}

func TestDashboardHandlerFinancePassesRange(t *testing.T) {
	srv := &fakeDashboardSrv{financeResp: &models.FinanceDashboard{}}
	handler := NewDashboardHandler(srv)

	c, rec := newGinContext(http.MethodGet, "/dashboard/finance?from=2024-01-01&to=2024-03-31", nil)
	withActor(c, models.RoleSuperAdmin)
	handler.Finance(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.DashboardQuery{From: "2024-01-01", To: "2024-03-31"}, srv.lastQuery)
	assert.Equal(t, false, decodeEnvelope(t, rec).Meta["cache_hit"])
}

func TestDashboardHandlerErrors(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{err: appErrors.ErrForbidden})
	c, rec := newGinContext(http.MethodGet, "/dashboard/finance", nil)
	withActor(c, models.RoleStaff)
	handler.Finance(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	unconfigured := NewDashboardHandler(nil)
	c, rec = newGinContext(http.MethodGet, "/dashboard/pipeline", nil)
	unconfigured.Pipeline(c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
