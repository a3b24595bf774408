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

package metrics

import (
	"context"
	"runtime"
	"time"
)

// ResourceCollector refreshes the process gauges and trustd uptime on a
// fixed interval.
type ResourceCollector struct {
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	started  time.Time
}

// NewResourceCollector returns a collector bound to ctx. Nothing is sampled
// until Start runs.
func NewResourceCollector(ctx context.Context, interval time.Duration) *ResourceCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	return &ResourceCollector{ctx: ctx, cancel: cancel, interval: interval, started: time.Now()}
}

// StartResourceCollector starts a collector in its own goroutine.
func StartResourceCollector(ctx context.Context, interval time.Duration) *ResourceCollector {
	rc := NewResourceCollector(ctx, interval)
	go rc.Start()
	return rc
}

// Start samples immediately and then on every tick. It returns once the
// collector's context is done.
func (rc *ResourceCollector) Start() {
	rc.collect()

	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rc.collect()
		case <-rc.ctx.Done():
			return
		}
	}
}

// Stop ends the sampling loop. It is safe to call more than once.
func (rc *ResourceCollector) Stop() {
	rc.cancel()
}

func (rc *ResourceCollector) collect() {
	if !IsEnabled() {
		return
	}
	sampleRuntime()
	ServerUptime.Set(time.Since(rc.started).Seconds())
}

func sampleRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	Goroutines.Set(float64(runtime.NumGoroutine()))
	MemoryAllocBytes.Set(float64(ms.Alloc))
	MemorySysBytes.Set(float64(ms.Sys))
	GCPauseTotalSeconds.Set(time.Duration(ms.PauseTotalNs).Seconds())
}
