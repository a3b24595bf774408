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

package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(status Status) CheckFunc {
	return func(ctx context.Context) CheckResult {
		return CheckResult{Status: status, Message: string(status)}
	}
}

func TestChecker_Startup(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewChecker(WithClock(func() time.Time { return now }))

	assert.Equal(t, StatusUnhealthy, c.Startup(context.Background()).Status)
	assert.False(t, c.IsStarted())

	c.MarkStarted()
	now = now.Add(90 * time.Second)
	result := c.Startup(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Contains(t, result.Message, "1m30s")
	assert.Equal(t, 90*time.Second, c.Uptime())

	c.MarkNotStarted()
	assert.Equal(t, StatusUnhealthy, c.Startup(context.Background()).Status)
}

func TestChecker_Live(t *testing.T) {
	c := NewChecker()
	c.RegisterCheck("broken", fixed(StatusUnhealthy))
	assert.Equal(t, StatusHealthy, c.Live(context.Background()).Status)
}

func TestChecker_Ready(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		results := NewChecker().Ready(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, StatusHealthy, results[0].Status)
	})

	t.Run("sorted by name and named by registration", func(t *testing.T) {
		c := NewChecker()
		c.RegisterCheck("securitylog", fixed(StatusHealthy))
		c.RegisterCheck("secretstore", fixed(StatusDegraded))
		c.RegisterCheck("ignored", nil)

		results := c.Ready(context.Background())
		require.Len(t, results, 2)
		assert.Equal(t, "secretstore", results[0].Name)
		assert.Equal(t, "securitylog", results[1].Name)
		assert.Equal(t, []string{"secretstore", "securitylog"}, c.Names())
		assert.Equal(t, StatusDegraded, AggregateStatus(results))
	})

	t.Run("replacing a check", func(t *testing.T) {
		c := NewChecker()
		c.RegisterCheck("store", fixed(StatusUnhealthy))
		c.RegisterCheck("store", fixed(StatusHealthy))
		results := c.Ready(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, StatusHealthy, results[0].Status)
	})

	t.Run("timeout", func(t *testing.T) {
		c := NewChecker(WithCheckTimeout(20 * time.Millisecond))
		c.RegisterCheck("slow", func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		})
		results := c.Ready(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, StatusUnhealthy, results[0].Status)
		assert.Equal(t, context.DeadlineExceeded.Error(), results[0].Error)
	})

	t.Run("panic", func(t *testing.T) {
		c := NewChecker()
		c.RegisterCheck("panics", func(ctx context.Context) CheckResult { panic("boom") })
		results := c.Ready(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, StatusUnhealthy, results[0].Status)
		assert.Contains(t, results[0].Error, "boom")
	})
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []CheckResult{{Status: StatusHealthy}, {Status: StatusHealthy}}, StatusHealthy},
		{"degraded", []CheckResult{{Status: StatusHealthy}, {Status: StatusDegraded}}, StatusDegraded},
		{"unhealthy wins", []CheckResult{{Status: StatusDegraded}, {Status: StatusUnhealthy}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateStatus(tt.results))
		})
	}
}
