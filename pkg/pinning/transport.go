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

package pinning

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jeremyhahn/go-trustgate/pkg/logging"
	"github.com/jeremyhahn/go-trustgate/pkg/metrics"
)

// DefaultTimeout bounds connect, handshake and response header reads.
const DefaultTimeout = 30 * time.Second

type options struct {
	reporter Reporter
	roots    *x509.CertPool
	timeout  time.Duration
	logger   *logging.Logger
}

// Option configures pinned configurations and clients.
type Option func(*options)

// WithReporter sets the mismatch reporter.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithRootCAs replaces the system roots used for chain verification.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(o *options) { o.roots = pool }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) *options {
	o := &options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrDefault(o.logger)
	return o
}

// BuildPinnedTransportConfig returns a TLS configuration for host that
// performs normal chain and hostname verification and then fails the
// handshake unless a certificate in the chain matches one of pins.
func BuildPinnedTransportConfig(host string, pins []Pin, opts ...Option) (*tls.Config, error) {
	set := PinSet{Host: host, Pins: pins}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return buildConfig(set, buildOptions(opts)), nil
}

func buildConfig(set PinSet, o *options) *tls.Config {
	// Copy so later changes to the caller's slice cannot widen the set.
	set.Pins = append([]Pin(nil), set.Pins...)

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: set.Host,
		RootCAs:    o.roots,
		VerifyConnection: func(cs tls.ConnectionState) error {
			chain := cs.PeerCertificates
			if len(cs.VerifiedChains) > 0 {
				chain = cs.VerifiedChains[0]
			}
			matched, presented := set.Match(chain)
			if matched {
				return nil
			}

			mismatch := &MismatchError{Host: set.Host, Presented: presented}
			metrics.RecordPinFailure(set.Host)
			o.logger.Warn("certificate pin mismatch",
				"host", set.Host,
				"presented", len(presented))
			if o.reporter != nil {
				o.reporter.ReportPinFailure(mismatch)
			}
			return mismatch
		},
	}
}

// NewPinnedClient returns an HTTP client that only talks HTTPS to set.Host
// and only when the server presents a pinned key.
func NewPinnedClient(set PinSet, opts ...Option) (*http.Client, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	dialer := &net.Dialer{Timeout: o.timeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       buildConfig(set, o),
		TLSHandshakeTimeout:   o.timeout,
		ResponseHeaderTimeout: o.timeout,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &http.Client{
		Transport: &hostGuard{host: set.Host, next: transport},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("pinning: stopped after 10 redirects")
			}
			return checkTarget(set.Host, req)
		},
	}, nil
}

// hostGuard refuses requests the pinned TLS config was not built for.
type hostGuard struct {
	host string
	next http.RoundTripper
}

func (g *hostGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := checkTarget(g.host, req); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	return g.next.RoundTrip(req)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the transport.
func (g *hostGuard) CloseIdleConnections() {
	if c, ok := g.next.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

func checkTarget(host string, req *http.Request) error {
	if req.URL == nil {
		return fmt.Errorf("%w: request has no URL", ErrHostNotPinned)
	}
	if !strings.EqualFold(req.URL.Scheme, "https") {
		return fmt.Errorf("%w: %s is not https", ErrHostNotPinned, req.URL.Redacted())
	}
	if !strings.EqualFold(req.URL.Hostname(), host) {
		return fmt.Errorf("%w: %s (pinned %s)", ErrHostNotPinned, req.URL.Hostname(), host)
	}
	return nil
}
