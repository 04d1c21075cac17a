package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rejection reason labels for inner-guard metrics.
const (
	ReasonNotInternal  = "not_internal"
	ReasonBadSignature = "bad_signature"
	ReasonMissingUser  = "missing_user"
)

// Metrics holds the Prometheus metrics of the trust core.
type Metrics struct {
	registry *prometheus.Registry

	// Authentication metrics
	LoginsTotal       *prometheus.CounterVec
	LogoutsTotal      prometheus.Counter
	TokenRefreshTotal *prometheus.CounterVec

	// Inner-guard metrics
	InnerRequestsTotal   prometheus.Counter
	InnerRejectionsTotal *prometheus.CounterVec

	// Permission resolver metrics
	ResolverLookupsTotal prometheus.Counter
	ResolverCacheHits    prometheus.Counter
	ResolverCacheMisses  prometheus.Counter
}

// NewMetrics creates and registers the trust-core metrics. A nil registry
// allocates a private one, which keeps tests isolated.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"provider", "status"},
		),
		LogoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_logouts_total",
				Help: "Total number of logouts",
			},
		),
		TokenRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_token_refresh_total",
				Help: "Total number of token refresh attempts",
			},
			[]string{"status"},
		),
		InnerRequestsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_inner_requests_total",
				Help: "Total number of requests hitting inner-only endpoints",
			},
		),
		InnerRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_inner_rejections_total",
				Help: "Inner-guard rejections by reason",
			},
			[]string{"reason"},
		),
		ResolverLookupsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_resolver_lookups_total",
				Help: "Total number of permission resolutions requested",
			},
		),
		ResolverCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_resolver_cache_hits_total",
				Help: "Permission resolutions served from cache",
			},
		),
		ResolverCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_resolver_cache_misses_total",
				Help: "Permission resolutions that fell through to the store",
			},
		),
	}

	registry.MustRegister(
		m.LoginsTotal,
		m.LogoutsTotal,
		m.TokenRefreshTotal,
		m.InnerRequestsTotal,
		m.InnerRejectionsTotal,
		m.ResolverLookupsTotal,
		m.ResolverCacheHits,
		m.ResolverCacheMisses,
	)
	return m
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
