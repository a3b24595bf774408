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

package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Burst(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 3})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("login:alice"), "request %d", i+1)
	}
	assert.False(t, l.Allow("login:alice"))

	// Buckets are per client.
	assert.True(t, l.Allow("login:bob"))
}

func TestLimiter_BurstDefaultsToRate(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 2})
	defer l.Stop()

	assert.True(t, l.Allow("c"))
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))
	assert.Equal(t, 2, l.Stats()["burst"])
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(&Config{RequestsPerMinute: 1})
	assert.False(t, l.IsEnabled())
	for i := 0; i < 50; i++ {
		require.True(t, l.Allow("c"))
	}
	assert.Zero(t, l.RetryAfter("c"))
	assert.NoError(t, l.Wait(context.Background(), "c"))
}

func TestLimiter_Nil(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Allow("x"))
	assert.False(t, l.IsEnabled())
	assert.NoError(t, l.Wait(context.Background(), "x"))
	l.Stop()

	l = New(nil)
	assert.False(t, l.IsEnabled())
	l.Stop()
	l.Stop()
}

func TestLimiter_Wait(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	defer l.Stop()

	require.NoError(t, l.Wait(context.Background(), "c"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "c"))
}

func TestLimiter_RetryAfter(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	defer l.Stop()

	assert.Zero(t, l.RetryAfter("fresh"))

	require.True(t, l.Allow("c"))
	wait := l.RetryAfter("c")
	assert.Greater(t, wait, 50*time.Second)
	assert.LessOrEqual(t, wait, time.Minute)

	// RetryAfter must not consume the token it measures.
	assert.Equal(t, wait, l.RetryAfter("c"))
}

func TestLimiter_Sweep(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60, MaxIdle: time.Minute})
	defer l.Stop()

	l.Allow("old")
	l.Allow("new")
	l.mu.Lock()
	l.clients["old"].lastSeen = time.Now().Add(-2 * time.Minute)
	l.mu.Unlock()

	l.sweep(time.Now())

	assert.Equal(t, 1, l.Stats()["active_clients"])
	l.mu.RLock()
	_, kept := l.clients["new"]
	l.mu.RUnlock()
	assert.True(t, kept)
}

func TestLimiter_Stats(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 120, Burst: 10})
	defer l.Stop()

	l.Allow("a")
	l.Allow("b")

	stats := l.Stats()
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 2, stats["active_clients"])
	assert.Equal(t, 120.0, stats["rate_per_min"])
	assert.Equal(t, 10, stats["burst"])
}

func TestMiddlewareWithHook(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 2})
	defer l.Stop()

	var limited []string
	handler := MiddlewareWithHook(l, func(r *http.Request, clientID string) {
		limited = append(limited, clientID)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 4)
	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/security/logs", nil)
		req.RemoteAddr = "10.0.0.7:5000"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{204, 204, 429, 429}, codes)
	assert.Equal(t, []string{"10.0.0.7", "10.0.0.7"}, limited)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))
}

func TestMiddleware_NilLimiter(t *testing.T) {
	handler := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClientIP(t *testing.T) {
	proxied := New(&Config{TrustedProxies: []string{"10.0.0.0/8", "192.168.1.1"}})
	defer proxied.Stop()

	tests := []struct {
		name       string
		limiter    *Limiter
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"untrusted peer ignores forwarded", nil, map[string]string{"X-Forwarded-For": "203.0.113.1"}, "192.168.1.1:1234", "192.168.1.1"},
		{"untrusted peer ignores real ip", proxied, map[string]string{"X-Real-IP": "203.0.113.1"}, "198.51.100.7:1234", "198.51.100.7"},
		{"trusted peer forwarded chain", proxied, map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"}, "192.168.1.1:1234", "198.51.100.1"},
		{"trusted hops skipped", proxied, map[string]string{"X-Forwarded-For": "203.0.113.1, 10.1.2.3"}, "10.0.0.5:1234", "203.0.113.1"},
		{"all hops trusted", proxied, map[string]string{"X-Forwarded-For": "10.9.9.9, 10.1.2.3"}, "10.0.0.5:1234", "10.9.9.9"},
		{"garbage hop stops walk", proxied, map[string]string{"X-Forwarded-For": "203.0.113.1, not-an-ip"}, "10.0.0.5:1234", "10.0.0.5"},
		{"trusted peer real ip", proxied, map[string]string{"X-Real-IP": "203.0.113.1"}, "192.168.1.1:1234", "203.0.113.1"},
		{"remote addr", proxied, nil, "192.168.1.1:1234", "192.168.1.1"},
		{"remote addr without port", nil, nil, "pipe", "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.limiter.ClientIP(req))
		})
	}
}

func TestMiddleware_SpoofedForwardedForSharesBucket(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 1})
	defer limiter.Stop()

	handler := Middleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for _, spoof := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.7:4444"
		req.Header.Set("X-Forwarded-For", spoof)
		req.Header.Set("X-Real-IP", spoof)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, limiter.Stats()["active_clients"])
}

func TestMiddleware_TrustedProxyKeysByForwardedClient(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 1, TrustedProxies: []string{"10.0.0.1"}})
	defer limiter.Stop()

	handler := Middleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, client := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:4444"
		req.Header.Set("X-Forwarded-For", client)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, client)
	}
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.1 ", "::1", "10.1.2.3/8"})
	require.NoError(t, err)
	require.Len(t, prefixes, 4)
	assert.Equal(t, "10.0.0.0/8", prefixes[3].String())
	assert.Equal(t, 32, prefixes[1].Bits())

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.local"})
	assert.Error(t, err)
}
