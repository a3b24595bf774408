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
	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// SecurityLogsResponse is returned by GET /api/v1/security/logs.
type SecurityLogsResponse struct {
	Count   int                 `json:"count"`
	Lines   []string            `json:"lines"`
	Entries []securitylog.Entry `json:"entries"`
}

// LockoutResponse describes one account's lockout state.
type LockoutResponse struct {
	Username         string `json:"username"`
	State            string `json:"state"`
	Locked           bool   `json:"locked"`
	Attempts         int    `json:"attempts"`
	Threshold        int    `json:"threshold"`
	RemainingMinutes int    `json:"remaining_minutes"`
}

// PinsResponse is returned by GET /api/v1/pins.
type PinsResponse struct {
	Host string        `json:"host"`
	Pins []pinning.Pin `json:"pins"`
}

// StoreResponse reports how the secret store protects entries.
type StoreResponse struct {
	Mode      string `json:"mode"`
	Provider  string `json:"provider"`
	Algorithm string `json:"algorithm,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// MessageResponse acknowledges a mutating request.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
