package handlers

import (
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"time"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/services"
)

// HealthHandlers serves /healthz and /readyz. Probe bodies skip the API envelope.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

type HealthOption func(*HealthHandlers)

func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) { h.system = svc }
}

func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type probeBuild struct {
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime,omitempty"`
}

type livenessBody struct {
	Status domain.HealthStatus `json:"status"`
	probeBuild
	Timestamp string `json:"timestamp"`
}

type checkView struct {
	Status    domain.HealthStatus `json:"status"`
	Detail    string              `json:"detail,omitempty"`
	LatencyMs int64               `json:"latencyMs"`
	CheckedAt string              `json:"checkedAt,omitempty"`
}

type readinessBody struct {
	Status domain.HealthStatus `json:"status"`
	probeBuild
	Checks    map[string]checkView `json:"checks"`
	Details   []string             `json:"details"`
	Timestamp string               `json:"timestamp,omitempty"`
}

// Healthz never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, livenessBody{
		Status: domain.HealthStatusOK,
		probeBuild: probeBuild{
			Version:     h.build.Version,
			CommitSHA:   h.build.CommitSHA,
			Environment: h.build.Environment,
			Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		},
		Timestamp: now.Format(time.RFC3339),
	})
}

// Readyz answers 503 whenever the aggregated report is not ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	body := readinessBody{
		Status:  domain.HealthStatusOK,
		Checks:  map[string]checkView{},
		Details: []string{},
	}
	if h.system == nil {
		body.Timestamp = h.clock().UTC().Format(time.RFC3339)
		writeJSONResponse(w, http.StatusOK, body)
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		body.Status = domain.HealthStatusError
		body.Details = append(body.Details, err.Error())
		writeJSONResponse(w, http.StatusServiceUnavailable, body)
		return
	}

	body.Status = report.Status
	body.probeBuild = probeBuild{
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		Uptime:      report.Uptime.Round(time.Second).String(),
	}
	body.Timestamp = formatTime(report.GeneratedAt)
	for _, name := range slices.Sorted(maps.Keys(report.Checks)) {
		check := report.Checks[name]
		body.Checks[name] = checkView{
			Status:    check.Status,
			Detail:    check.Detail,
			LatencyMs: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
		if check.Status != domain.HealthStatusOK && check.Detail != "" {
			body.Details = append(body.Details, name+": "+check.Detail)
		}
	}

	code := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, code, body)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
