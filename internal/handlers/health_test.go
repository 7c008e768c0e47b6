package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

func probe(t *testing.T, handler http.HandlerFunc, path string) (int, readinessBody) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body readinessBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestHealthzReportsBuildAndUptime(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "2.4.1", CommitSHA: "9f8e7d", Environment: "staging", StartedAt: start}),
		WithHealthClock(func() time.Time { return start.Add(95 * time.Second) }),
	)

	code, body := probe(t, h.Healthz, "/healthz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.HealthStatusOK, body.Status)
	assert.Equal(t, probeBuild{Version: "2.4.1", CommitSHA: "9f8e7d", Environment: "staging", Uptime: "1m35s"}, body.probeBuild)
	assert.Equal(t, "2026-03-02T08:01:35Z", body.Timestamp)
}

func TestReadyzWithoutServiceIsReady(t *testing.T) {
	code, body := probe(t, NewHealthHandlers().Readyz, "/readyz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.HealthStatusOK, body.Status)
	assert.Empty(t, body.Checks)
	assert.NotNil(t, body.Details)
}

func TestReadyzRendersChecks(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc := &stubSystemService{report: services.SystemHealthReport{
		HealthReport: domain.HealthReport{
			Status:      domain.HealthStatusOK,
			GeneratedAt: at,
			Checks: map[string]domain.HealthCheck{
				"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond, CheckedAt: at},
				"storage":   {Status: domain.HealthStatusOK, Latency: 3 * time.Millisecond, CheckedAt: at},
			},
		},
		Version: "2.4.1",
		Uptime:  90 * time.Minute,
	}}

	code, body := probe(t, NewHealthHandlers(WithHealthSystemService(svc)).Readyz, "/readyz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1h30m0s", body.Uptime)
	assert.Empty(t, body.Details)
	require.Len(t, body.Checks, 2)
	assert.Equal(t, checkView{Status: domain.HealthStatusOK, LatencyMs: 12, CheckedAt: "2026-03-02T08:00:00Z"}, body.Checks["firestore"])
}

func TestReadyzUnavailableWhenNotOK(t *testing.T) {
	for _, status := range []domain.HealthStatus{domain.HealthStatusDegraded, domain.HealthStatusError} {
		t.Run(string(status), func(t *testing.T) {
			svc := &stubSystemService{report: services.SystemHealthReport{
				HealthReport: domain.HealthReport{
					Status: status,
					Checks: map[string]domain.HealthCheck{
						"warehouse": {Status: status, Detail: "dial tcp: connection refused"},
						"barcode":   {Status: domain.HealthStatusDegraded},
						"firestore": {Status: domain.HealthStatusOK},
					},
				},
			}}

			code, body := probe(t, NewHealthHandlers(WithHealthSystemService(svc)).Readyz, "/readyz")

			assert.Equal(t, http.StatusServiceUnavailable, code)
			assert.Equal(t, status, body.Status)
			assert.Equal(t, []string{"warehouse: dial tcp: connection refused"}, body.Details)
		})
	}
}

func TestReadyzServiceError(t *testing.T) {
	svc := &stubSystemService{err: errors.New("collector offline")}

	code, body := probe(t, NewHealthHandlers(WithHealthSystemService(svc)).Readyz, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, domain.HealthStatusError, body.Status)
	assert.Equal(t, []string{"collector offline"}, body.Details)
}
