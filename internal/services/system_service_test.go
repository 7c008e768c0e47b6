package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/stockline/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.HealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.HealthReport, error) {
	return s.report, s.err
}

func TestSystemServiceAddsBuildInfoAndUptime(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{report: domain.HealthReport{
			Checks: map[string]domain.HealthCheck{"firestore": {Status: domain.HealthStatusOK}},
		}},
		Clock: func() time.Time { return now },
		Build: BuildInfo{Version: "2.0.1", CommitSHA: "f00d", Environment: "staging", StartedAt: start},
	})
	require.NoError(t, err)

	report, err := svc.HealthReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusOK, report.Status)
	assert.Equal(t, "2.0.1", report.Version)
	assert.Equal(t, "f00d", report.CommitSHA)
	assert.Equal(t, "staging", report.Environment)
	assert.Equal(t, 90*time.Second, report.Uptime)
	assert.True(t, report.GeneratedAt.Equal(now))
}

func TestSystemServicePropagatesCollectError(t *testing.T) {
	boom := errors.New("collect failed")
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: boom}})
	require.NoError(t, err)

	_, err = svc.HealthReport(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = NewSystemService(SystemServiceDeps{})
	assert.Error(t, err)
}

func TestSystemServiceFillsMissingStatus(t *testing.T) {
	for name, tc := range map[string]struct {
		checks map[string]domain.HealthCheck
		want   domain.HealthStatus
	}{
		"degraded":   {map[string]domain.HealthCheck{"pubsub": {Status: domain.HealthStatusDegraded}, "warehouse": {Status: domain.HealthStatusOK}}, domain.HealthStatusDegraded},
		"error wins": {map[string]domain.HealthCheck{"pubsub": {Status: domain.HealthStatusDegraded}, "firestore": {Status: domain.HealthStatusError}}, domain.HealthStatusError},
		"no checks":  {nil, domain.HealthStatusOK},
	} {
		t.Run(name, func(t *testing.T) {
			svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{report: domain.HealthReport{Checks: tc.checks}}})
			require.NoError(t, err)
			report, err := svc.HealthReport(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, report.Status)
			assert.NotNil(t, report.Checks)
		})
	}
}

func TestSystemServiceKeepsReportedStatusInUTC(t *testing.T) {
	generated := time.Date(2025, 2, 1, 8, 0, 0, 0, time.FixedZone("JST", 9*3600))
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{report: domain.HealthReport{
		Status:      domain.HealthStatusDegraded,
		GeneratedAt: generated,
	}}})
	require.NoError(t, err)

	report, err := svc.HealthReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusDegraded, report.Status)
	assert.Equal(t, time.UTC, report.GeneratedAt.Location())
	assert.True(t, report.GeneratedAt.Equal(generated))
}
