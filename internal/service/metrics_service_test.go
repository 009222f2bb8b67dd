package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/applications", 200, 20*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordTransition(models.StatusMOLAuthReceived, "applied")
	m.RecordTransition(models.StatusVisaProcessing, "DOCUMENTS_INCOMPLETE")
	m.RecordSettlement(models.ClassPreArrivalClient, "computed")
	m.RecordSettlement(models.ClassPreArrivalClient, "overridden")

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.0001)
	assert.Equal(t, uint64(1), snap.TransitionsTotal)
	assert.Equal(t, uint64(1), snap.TransitionsRejected)
	assert.Equal(t, uint64(1), snap.SettlementsTotal)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `application_transitions_total{result="applied",to="MOL_AUTH_RECEIVED"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordTransition(models.StatusWorkerArrived, "applied")
	m.RecordReportJob(models.ReportTypePayments, models.ReportStatusFinished)
	assert.Equal(t, models.SystemMetrics{}, m.Snapshot())
}
