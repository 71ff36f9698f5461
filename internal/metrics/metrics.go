// Package metrics exposes the daemon's Prometheus gauges and counters,
// grounded on step-chen-agent-sets/internal/metrics: package-level
// promauto collectors plus a /metrics handler mounted by the daemon's
// router, the same shape the daemon's own gorilla/mux server already
// uses for its single RPC endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolSize reports the current number of pooled sessions, set by the
	// daemon after every request that can change it.
	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcpx_daemon_pool_size",
		Help: "Number of MCP sessions currently held by the daemon's pool",
	})

	// IdleEvictions counts sessions the idle-eviction timer has released.
	IdleEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcpx_daemon_idle_evictions_total",
		Help: "Total number of pooled sessions released by idle eviction",
	})

	// Reconnects counts config-hash-driven reconnections (spec.md §4.5
	// step 3: an acquire whose config hash differs from the pooled one).
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcpx_daemon_reconnects_total",
		Help: "Total number of pool entries replaced due to a config hash mismatch",
	})

	// RequestsTotal counts daemon wire requests, labeled by method and
	// outcome, mirroring the {server, tool, status} label shape
	// step-chen-agent-sets uses for its own MCP tool-call counter.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpx_daemon_requests_total",
		Help: "Total number of daemon wire requests",
	}, []string{"method", "status"})
)
