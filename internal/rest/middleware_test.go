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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseWriter(t *testing.T) {
	t.Run("Captures status code on WriteHeader", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())
		rw.WriteHeader(http.StatusCreated)
		assert.Equal(t, http.StatusCreated, rw.statusCode)
		assert.True(t, rw.written)
	})

	t.Run("Default status code is 200", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())
		assert.Equal(t, http.StatusOK, rw.statusCode)
	})

	t.Run("Write calls WriteHeader if not written", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())
		n, err := rw.Write([]byte("test"))
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.True(t, rw.written)
		assert.Equal(t, http.StatusOK, rw.statusCode)
	})

	t.Run("WriteHeader only once", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())
		rw.WriteHeader(http.StatusCreated)
		rw.WriteHeader(http.StatusBadRequest)
		assert.Equal(t, http.StatusCreated, rw.statusCode)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	f := newFixture(t, "token")
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	f.server.RecoveryMiddleware()(panicking).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, ErrInternalError.Error(), resp.Error)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := bearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestMapErrorToStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, mapErrorToStatusCode(ErrInvalidUsername))
	assert.Equal(t, http.StatusUnauthorized, mapErrorToStatusCode(ErrUnauthorized))
	assert.Equal(t, http.StatusServiceUnavailable, mapErrorToStatusCode(ErrUnavailable))
	assert.Equal(t, http.StatusInternalServerError, mapErrorToStatusCode(assert.AnError))
}
