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
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jeremyhahn/go-trustgate/pkg/correlation"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
	"github.com/jeremyhahn/go-trustgate/pkg/validation"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// newResponseWriter creates a new responseWriter.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// LoggingMiddleware logs each request with its correlation ID.
func (s *Server) LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			logger := correlation.Logger(r.Context(), s.logger)

			logger.Debug("Request started",
				"method", r.Method,
				"path", validation.SanitizeForLog(r.URL.Path))

			next.ServeHTTP(wrapped, r)

			logger.Info("Request completed",
				"method", r.Method,
				"path", validation.SanitizeForLog(r.URL.Path),
				"status", wrapped.statusCode,
				"duration", time.Since(start).String())
		})
	}
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func (s *Server) RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					correlation.Logger(r.Context(), s.logger).Errorf("panic recovered: %s %s: %v",
						r.Method, validation.SanitizeForLog(r.URL.Path), rec)
					writeErrorWithMessage(w, ErrInternalError, "An unexpected error occurred", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// AuthenticationMiddleware requires "Authorization: Bearer <token>". Every
// rejection is written to the security event log.
func (s *Server) AuthenticationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
				correlation.Logger(r.Context(), s.logger).Warn("Authentication failed",
					"method", r.Method,
					"path", validation.SanitizeForLog(r.URL.Path),
					"remote_addr", s.limiter.ClientIP(r))
				s.handlers.events.LogEvent(securitylog.UnauthorizedAccess, "",
					fmt.Sprintf("Admin API %s %s from %s", r.Method, r.URL.Path, s.limiter.ClientIP(r)))
				w.Header().Set("WWW-Authenticate", `Bearer realm="trustd"`)
				writeErrorWithMessage(w, ErrUnauthorized, "Authentication failed", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// onRateLimited records throttled admin requests.
func (s *Server) onRateLimited(r *http.Request, clientID string) {
	s.handlers.events.LogEvent(securitylog.SuspiciousActivity, "",
		fmt.Sprintf("Admin API rate limit exceeded by %s", clientID))
}
