// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustgate.
//
// go-trustgate is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"net/http"

	"github.com/jeremyhahn/go-trustgate/pkg/health"
)

// HealthCheckResponse is the body of the /health/* probes.
type HealthCheckResponse struct {
	Status  health.Status        `json:"status"`
	Message string               `json:"message,omitempty"`
	Checks  []health.CheckResult `json:"checks,omitempty"`
}

// writeProbe answers 503 only for unhealthy. A degraded secret store keeps
// serving, so orchestrators must not pull it from rotation.
func writeProbe(w http.ResponseWriter, resp HealthCheckResponse) {
	code := http.StatusOK
	if resp.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, resp, code)
}

// LivenessHandler handles GET /health/live.
func (h *HandlerContext) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if h.HealthChecker == nil {
		writeProbe(w, HealthCheckResponse{Status: health.StatusHealthy, Message: "Service is alive"})
		return
	}
	result := h.HealthChecker.Live(r.Context())
	writeProbe(w, HealthCheckResponse{Status: result.Status, Message: result.Message})
}

// ReadinessHandler handles GET /health/ready.
func (h *HandlerContext) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.HealthChecker == nil {
		writeProbe(w, HealthCheckResponse{Status: health.StatusHealthy, Message: "Service is ready"})
		return
	}

	results := h.HealthChecker.Ready(r.Context())
	resp := HealthCheckResponse{Status: health.AggregateStatus(results), Checks: results}
	switch resp.Status {
	case health.StatusDegraded:
		resp.Message = "Serving with reduced protection"
	case health.StatusUnhealthy:
		resp.Message = "One or more checks failed"
	default:
		resp.Message = "All checks passed"
	}
	writeProbe(w, resp)
}

// StartupHandler handles GET /health/startup.
func (h *HandlerContext) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if h.HealthChecker == nil {
		writeProbe(w, HealthCheckResponse{Status: health.StatusHealthy, Message: "Service has started"})
		return
	}
	result := h.HealthChecker.Startup(r.Context())
	writeProbe(w, HealthCheckResponse{Status: result.Status, Message: result.Message})
}
