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
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-trustgate/pkg/health"
	"github.com/jeremyhahn/go-trustgate/pkg/lockout"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
	"github.com/jeremyhahn/go-trustgate/pkg/validation"
)

// maxLines caps ?lines= so one request cannot read an unbounded tail.
const maxLines = 10000

// HealthChecker is the subset of health.Checker the probes use.
type HealthChecker interface {
	Live(ctx context.Context) health.CheckResult
	Ready(ctx context.Context) []health.CheckResult
	Startup(ctx context.Context) health.CheckResult
}

// HandlerContext holds the components the handlers read from.
type HandlerContext struct {
	events  *securitylog.Log
	engine  *lockout.Engine
	pins    pinning.PinSet
	store   health.StoreStatus
	version string
	logger  *logging.Logger

	HealthChecker HealthChecker
}

// SetHealthChecker sets the probe backend.
func (h *HandlerContext) SetHealthChecker(checker HealthChecker) {
	h.HealthChecker = checker
}

// HealthHandler handles GET /health.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := health.StatusHealthy
	if h.HealthChecker != nil {
		status = health.AggregateStatus(h.HealthChecker.Ready(r.Context()))
	}
	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, HealthResponse{Status: string(status), Version: h.version}, code)
}

// GetSecurityLogsHandler handles GET /api/v1/security/logs?lines=N.
func (h *HandlerContext) GetSecurityLogsHandler(w http.ResponseWriter, r *http.Request) {
	lines := 0
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLines {
			writeErrorWithMessage(w, ErrInvalidRequest,
				fmt.Sprintf("lines must be an integer between 1 and %d", maxLines), http.StatusBadRequest)
			return
		}
		lines = n
	}

	raw, err := h.events.GetSecurityLogs(lines)
	if err != nil {
		h.logger.Error(err)
		handleError(w, err)
		return
	}

	resp := SecurityLogsResponse{Lines: raw, Entries: make([]securitylog.Entry, 0, len(raw))}
	for _, line := range raw {
		if e, err := securitylog.ParseEntry(line); err == nil {
			resp.Entries = append(resp.Entries, e)
		}
	}
	resp.Count = len(raw)
	writeJSON(w, resp, http.StatusOK)
}

// ClearSecurityLogsHandler handles DELETE /api/v1/security/logs.
func (h *HandlerContext) ClearSecurityLogsHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.events.ClearLogs(); err != nil {
		h.logger.Error(err)
		handleError(w, err)
		return
	}
	h.logger.Info("security log cleared through admin API")
	writeJSON(w, MessageResponse{Message: "security log cleared"}, http.StatusOK)
}

// GetLockoutHandler handles GET /api/v1/lockout/{username}. The read is
// side-effect free: an expired lock is reported as expired-locked and left
// for the next login to clear.
func (h *HandlerContext) GetLockoutHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	state, err := h.engine.State(username)
	if err != nil {
		handleError(w, err)
		return
	}
	attempts, err := h.engine.Attempts(username)
	if err != nil {
		handleError(w, err)
		return
	}
	remaining, err := h.engine.RemainingMinutes(username)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, LockoutResponse{
		Username:         username,
		State:            state.String(),
		Locked:           state == lockout.Locked,
		Attempts:         attempts,
		Threshold:        h.engine.Threshold(),
		RemainingMinutes: remaining,
	}, http.StatusOK)
}

// UnlockHandler handles DELETE /api/v1/lockout/{username}.
func (h *HandlerContext) UnlockHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}
	if err := h.engine.Unlock(username); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, MessageResponse{Message: "account unlocked"}, http.StatusOK)
}

// PinsHandler handles GET /api/v1/pins.
func (h *HandlerContext) PinsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, PinsResponse{Host: h.pins.Host, Pins: h.pins.Pins}, http.StatusOK)
}

// StoreHandler handles GET /api/v1/store.
func (h *HandlerContext) StoreHandler(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, ErrUnavailable, http.StatusServiceUnavailable)
		return
	}
	st := h.store.Status()
	writeJSON(w, StoreResponse{
		Mode:      st.Mode.String(),
		Provider:  st.Provider,
		Algorithm: st.Algorithm,
		Reason:    st.Reason,
	}, http.StatusOK)
}

func (h *HandlerContext) username(w http.ResponseWriter, r *http.Request) (string, bool) {
	username := chi.URLParam(r, "username")
	if err := validation.ValidatePrincipal(username); err != nil {
		writeErrorWithMessage(w, ErrInvalidUsername, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return username, true
}
