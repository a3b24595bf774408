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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jeremyhahn/go-trustgate/pkg/lockout"
	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/secretstore"
	"github.com/jeremyhahn/go-trustgate/pkg/storage"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidUsername = errors.New("invalid username")
	ErrInternalError   = errors.New("internal server error")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUnavailable     = errors.New("service unavailable")
)

// statusCodes is walked in order; the first sentinel matched wins.
var statusCodes = []struct {
	err  error
	code int
}{
	{storage.ErrNotFound, http.StatusNotFound},
	{ErrInvalidRequest, http.StatusBadRequest},
	{ErrInvalidUsername, http.StatusBadRequest},
	{lockout.ErrInvalidPrincipal, http.StatusBadRequest},
	{secretstore.ErrInvalidKey, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{secretstore.ErrNotOpen, http.StatusServiceUnavailable},
	{secretstore.ErrClosed, http.StatusServiceUnavailable},
	{ErrUnavailable, http.StatusServiceUnavailable},
}

func mapErrorToStatusCode(err error) int {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error, statusCode int) {
	writeErrorWithMessage(w, err, "", statusCode)
}

func writeErrorWithMessage(w http.ResponseWriter, err error, message string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: err.Error(), Message: message, Code: statusCode}, statusCode)
}

// handleError hides the cause of 500s; storage paths and provider errors
// stay in the server log.
func handleError(w http.ResponseWriter, err error) {
	code := mapErrorToStatusCode(err)
	if code == http.StatusInternalServerError {
		writeErrorWithMessage(w, ErrInternalError, "An unexpected error occurred", code)
		return
	}
	writeError(w, err, code)
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.DefaultLogger().Errorf("rest: encode response: %v", err)
	}
}
