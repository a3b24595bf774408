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

// Package correlation carries a per-request ID through the admin API so
// request logs and security events can be tied together.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-trustgate/pkg/logging"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// CorrelationIDKey is the context key for storing correlation IDs
	CorrelationIDKey contextKey = "correlation-id"

	// RequestIDHeader is the HTTP header for request IDs
	RequestIDHeader = "X-Request-ID"

	// CorrelationIDHeader is the HTTP header for correlation IDs
	CorrelationIDHeader = "X-Correlation-ID"

	// LogAttr is the structured log attribute name.
	LogAttr = "correlation_id"

	// maxIDLength bounds client supplied IDs.
	maxIDLength = 128
)

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// GetCorrelationID retrieves the correlation ID from context.
// Returns an empty string if no correlation ID is found.
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// NewID generates a new UUID v4 correlation ID.
func NewID() string {
	return uuid.New().String()
}

// GetOrGenerate retrieves an existing correlation ID from context
// or generates a new one if none exists.
func GetOrGenerate(ctx context.Context) string {
	if id := GetCorrelationID(ctx); id != "" {
		return id
	}
	return NewID()
}

// FromRequest returns the ID supplied in the X-Correlation-ID or
// X-Request-ID header, or a new one. Supplied IDs that are too long or
// contain anything but printable ASCII are replaced, since they end up in
// logs and response headers.
func FromRequest(r *http.Request) string {
	for _, h := range []string{CorrelationIDHeader, RequestIDHeader} {
		if id := strings.TrimSpace(r.Header.Get(h)); valid(id) {
			return id
		}
	}
	return NewID()
}

func valid(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// Middleware stores the request's correlation ID in its context and echoes
// it in the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromRequest(r)
		w.Header().Set(CorrelationIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), id)))
	})
}

// Logger returns l annotated with the context's correlation ID, if any.
func Logger(ctx context.Context, l *logging.Logger) *logging.Logger {
	l = logging.OrDefault(l)
	if id := GetCorrelationID(ctx); id != "" {
		return l.With(LogAttr, id)
	}
	return l
}
