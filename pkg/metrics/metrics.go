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

// Package metrics provides Prometheus instrumentation for go-trustgate.
// It exposes secret store operation counters and latencies, authentication
// outcomes, security event counts, and the storage degradation flag an
// operator watches to learn that secrets are no longer encrypted at rest.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all trustgate metrics
	Namespace = "trustgate"

	// Label names
	LabelOperation  = "operation"
	LabelComponent  = "component"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelProtocol   = "protocol"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"
	LabelKind       = "kind"
	LabelResult     = "result"
	LabelProvider   = "provider"
	LabelHost       = "host"
	LabelOutcome    = "outcome"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpOpen     = "open"
	OpPut      = "put"
	OpGet      = "get"
	OpRemove   = "remove"
	OpClear    = "clear"
	OpContains = "contains"
	OpHash     = "hash"
	OpVerify   = "verify"

	// Login results
	LoginSuccess   = "success"
	LoginFailed    = "failed"
	LoginLocked    = "locked"
	LoginThrottled = "throttled"
	LoginInvalid   = "invalid"
)

var (
	// OperationsTotal tracks secret store and hasher operations by component and status.
	// Use RecordOperation to increment this counter with the appropriate labels.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of trustgate operations by type, component, and status",
		},
		[]string{LabelOperation, LabelComponent, LabelStatus},
	)

	// OperationDuration tracks operation latency. Buckets reach into seconds
	// because bcrypt at production cost takes hundreds of milliseconds.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of trustgate operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelOperation, LabelComponent},
	)

	// ErrorsTotal tracks errors by operation, component and type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation, component, and error type",
		},
		[]string{LabelOperation, LabelComponent, LabelErrorType},
	)

	// ActiveConnections tracks in-flight admin API connections.
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of active connections by protocol",
		},
		[]string{LabelProtocol},
	)

	// HTTPRequestsTotal counts admin API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks admin API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// StorageDegraded is 1 while the secret store runs on its plaintext fallback.
	StorageDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "storage_degraded",
			Help:      "1 if the secret store fell back to unencrypted storage, 0 otherwise",
		},
	)

	// KeyProviderHealthy reports whether the last master key fetch succeeded.
	KeyProviderHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "key_provider_healthy",
			Help:      "Key provider health status (1 = healthy, 0 = unhealthy)",
		},
		[]string{LabelProvider},
	)

	// SecurityEventsTotal counts audit events by kind.
	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "security_events_total",
			Help:      "Total number of security events written to the audit log by kind",
		},
		[]string{LabelKind},
	)

	// LoginAttemptsTotal counts login decisions by result.
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "login_attempts_total",
			Help:      "Total number of login attempts by result",
		},
		[]string{LabelResult},
	)

	// LockoutsTotal counts transitions into the locked state.
	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lockouts_total",
			Help:      "Total number of account lockouts",
		},
	)

	// PinFailuresTotal counts rejected TLS handshakes by host.
	PinFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pin_failures_total",
			Help:      "Total number of certificate pin mismatches by host",
		},
		[]string{LabelHost},
	)

	// BiometricResultsTotal counts biometric prompt outcomes.
	BiometricResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "biometric_results_total",
			Help:      "Total number of biometric authentication outcomes",
		},
		[]string{LabelOutcome},
	)

	// Goroutines tracks the number of goroutines
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Number of goroutines",
		},
	)

	// MemoryAllocBytes tracks allocated heap bytes
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Number of bytes allocated and still in use",
		},
	)

	// MemorySysBytes tracks bytes obtained from the system
	MemorySysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_sys_bytes",
			Help:      "Number of bytes obtained from system",
		},
	)

	// GCPauseTotalSeconds tracks cumulative GC pause time
	GCPauseTotalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "gc_pause_total_seconds",
			Help:      "Total GC pause time in seconds",
		},
	)

	// ServerUptime tracks seconds since the collector started
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records an operation with its duration and status.
//
// Parameters:
//   - operation: The operation name (use Op* constants)
//   - component: The emitting component (e.g., "secretstore", "password")
//   - status: The operation status (use Status* constants)
//   - duration: The operation duration in seconds
func RecordOperation(operation, component, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, component, status).Inc()
	OperationDuration.WithLabelValues(operation, component).Observe(duration)
}

// RecordError records an error event with context about where it occurred.
func RecordError(operation, component, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, component, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// IncrementActiveConnections increments the active connection count for a protocol.
func IncrementActiveConnections(protocol string) {
	if !enabled.Load() {
		return
	}
	ActiveConnections.WithLabelValues(protocol).Inc()
}

// DecrementActiveConnections decrements the active connection count for a protocol.
func DecrementActiveConnections(protocol string) {
	if !enabled.Load() {
		return
	}
	ActiveConnections.WithLabelValues(protocol).Dec()
}

// SetStorageDegraded records whether the secret store is running unencrypted.
// It is always recorded, even when metrics are disabled, so a later Enable
// does not expose a stale flag.
func SetStorageDegraded(degraded bool) {
	StorageDegraded.Set(boolGauge(degraded))
}

// SetKeyProviderHealth sets the health status of a key provider.
func SetKeyProviderHealth(provider string, healthy bool) {
	if !enabled.Load() {
		return
	}
	KeyProviderHealthy.WithLabelValues(provider).Set(boolGauge(healthy))
}

// RecordSecurityEvent counts an audit event.
func RecordSecurityEvent(kind string) {
	if !enabled.Load() {
		return
	}
	SecurityEventsTotal.WithLabelValues(kind).Inc()
}

// RecordLoginAttempt counts a login decision (use Login* constants).
func RecordLoginAttempt(result string) {
	if !enabled.Load() {
		return
	}
	LoginAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordLockout counts an account entering the locked state.
func RecordLockout() {
	if !enabled.Load() {
		return
	}
	LockoutsTotal.Inc()
}

// RecordPinFailure counts a rejected handshake for host.
func RecordPinFailure(host string) {
	if !enabled.Load() {
		return
	}
	PinFailuresTotal.WithLabelValues(host).Inc()
}

// RecordBiometricResult counts a biometric outcome.
func RecordBiometricResult(outcome string) {
	if !enabled.Load() {
		return
	}
	BiometricResultsTotal.WithLabelValues(outcome).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
