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

// Package ratelimit provides per-client token bucket throttling. The login
// guard keys it by principal; the admin API keys it by client address.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultMaxIdle       = 30 * time.Minute
)

// Config holds rate limiter configuration.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// RequestsPerMinute is the sustained refill rate per client.
	RequestsPerMinute int `yaml:"requests_per_min"`

	// Burst is the bucket size. Zero means RequestsPerMinute.
	Burst int `yaml:"burst"`

	// CleanupInterval is how often idle clients are swept (default 10m).
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// MaxIdle is how long a client may go unseen before it is forgotten
	// (default 30m).
	MaxIdle time.Duration `yaml:"max_idle"`

	// TrustedProxies lists the addresses or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Requests from anywhere else are keyed
	// by their socket address.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client ID. A nil or disabled Limiter
// admits everything.
type Limiter struct {
	enabled bool
	limit   rate.Limit
	burst   int
	maxIdle time.Duration
	proxies []netip.Prefix

	mu      sync.RWMutex
	clients map[string]*client

	done     chan struct{}
	stopOnce sync.Once
}

// New builds a Limiter from cfg. Enabled limiters run a background sweep
// until Stop. Unparseable TrustedProxies entries are ignored; validate them
// first with ParseTrustedProxies.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = &Config{}
	}

	l := &Limiter{
		enabled: cfg.Enabled,
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		burst:   cfg.Burst,
		maxIdle: cfg.MaxIdle,
		clients: make(map[string]*client),
		done:    make(chan struct{}),
	}
	if l.burst == 0 {
		l.burst = cfg.RequestsPerMinute
	}
	for _, entry := range cfg.TrustedProxies {
		if prefix, err := parseProxy(entry); err == nil {
			l.proxies = append(l.proxies, prefix)
		}
	}
	if l.maxIdle == 0 {
		l.maxIdle = defaultMaxIdle
	}

	if l.enabled {
		every := cfg.CleanupInterval
		if every == 0 {
			every = defaultSweepInterval
		}
		go l.sweepLoop(every)
	}
	return l
}

// IsEnabled reports whether requests are actually throttled.
func (l *Limiter) IsEnabled() bool {
	return l != nil && l.enabled
}

// Allow takes a token for clientID if one is available.
func (l *Limiter) Allow(clientID string) bool {
	if !l.IsEnabled() {
		return true
	}
	return l.bucket(clientID).Allow()
}

// Wait blocks until clientID has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, clientID string) error {
	if !l.IsEnabled() {
		return nil
	}
	return l.bucket(clientID).Wait(ctx)
}

// RetryAfter estimates how long clientID must wait for its next token,
// rounded up to whole seconds.
func (l *Limiter) RetryAfter(clientID string) time.Duration {
	if !l.IsEnabled() || l.limit <= 0 {
		return 0
	}
	r := l.bucket(clientID).Reserve()
	defer r.Cancel()
	d := r.Delay()
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}

func (l *Limiter) bucket(clientID string) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[clientID]
	if !ok {
		c = &client{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientID] = c
	}
	c.lastSeen = now
	return c.bucket
}

func (l *Limiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			l.sweep(now)
		case <-l.done:
			return
		}
	}
}

// sweep forgets clients idle for longer than maxIdle as of now.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, c := range l.clients {
		if now.Sub(c.lastSeen) > l.maxIdle {
			delete(l.clients, id)
		}
	}
}

// Stop ends the background sweep. It is safe to call more than once and
// on a nil Limiter.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.done) })
}

// Stats is a point-in-time summary for diagnostics.
func (l *Limiter) Stats() map[string]any {
	l.mu.RLock()
	active := len(l.clients)
	l.mu.RUnlock()

	return map[string]any{
		"enabled":        l.enabled,
		"active_clients": active,
		"rate_per_min":   float64(l.limit) * 60,
		"burst":          l.burst,
	}
}

// LimitedFunc is told about every request Middleware rejects.
type LimitedFunc func(r *http.Request, clientID string)

// Middleware throttles by Limiter.ClientIP.
func Middleware(limiter *Limiter) func(http.Handler) http.Handler {
	return MiddlewareWithHook(limiter, nil)
}

// MiddlewareWithHook is Middleware plus a callback for rejections. Rejected
// requests get 429 with a Retry-After hint.
func MiddlewareWithHook(limiter *Limiter, onLimited LimitedFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := limiter.ClientIP(r)
			if limiter.Allow(id) {
				next.ServeHTTP(w, r)
				return
			}

			if onLimited != nil {
				onLimited(r, id)
			}
			if wait := limiter.RetryAfter(id); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
			}
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}

// ParseTrustedProxies parses addresses and CIDRs such as "10.0.0.1" or
// "10.0.0.0/8".
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		prefix, err := parseProxy(entry)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

func parseProxy(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are
// ignored; use Limiter.ClientIP behind a proxy.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ClientIP identifies the client behind r. Forwarding headers count only
// when the socket peer is a trusted proxy: X-Forwarded-For is walked from
// the right and the first untrusted hop wins, then X-Real-IP is tried.
// Everything else is keyed by the socket address.
func (l *Limiter) ClientIP(r *http.Request) string {
	peer := ClientIP(r)
	if l == nil || !l.trusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			peer = hop
			if !l.trusted(hop) {
				return hop
			}
		}
		return peer
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}

func (l *Limiter) trusted(host string) bool {
	if len(l.proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range l.proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
