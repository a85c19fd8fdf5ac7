// Package metrics holds Prometheus instruments that are used across the
// platform.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveResolverEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "resolver_cache_entries",
			Help: "Number of routing-key mappings currently cached.",
		})

	ResolverLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_load_total",
			Help: "Cumulative number of tenant contexts loaded from the directory.",
		})

	ResolverLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_load_errors_total",
			Help: "Cumulative number of directory lookups that failed.",
		})

	ResolverEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_evict_total",
			Help: "Cumulative number of mappings evicted from the resolver cache.",
		})

	ResolveNotFoundTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "resolve_not_found_total",
			Help: "Cumulative number of requests whose host matched no tenant.",
		})

	IsolationViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "isolation_violations_total",
			Help: "Cumulative number of rejected cross-tenant data accesses.",
		})

	ProvisionOutcomeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_outcome_total",
			Help: "Provisioning workflow outcomes by terminal state.",
		},
		[]string{"outcome"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signup_sessions_active",
			Help: "Registration sessions currently held in memory.",
		})

	SessionSweepTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signup_session_sweep_total",
			Help: "Cumulative number of expired sessions reclaimed by the sweeper.",
		})
)

func init() {
	prometheus.MustRegister(
		ActiveResolverEntries,
		ResolverLoadTotal,
		ResolverLoadErrorsTotal,
		ResolverEvictTotal,
		ResolveNotFoundTotal,
		IsolationViolationsTotal,
		ProvisionOutcomeTotal,
		SessionsActive,
		SessionSweepTotal,
	)
}
