package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// Auth metrics. Nil until Register is called; the helpers below skip
// recording in that case so services work without a registry in tests.
var (
	authLoginsTotal            *prometheus.CounterVec
	authTokensIssuedTotal      *prometheus.CounterVec
	authRefreshTotal           *prometheus.CounterVec
	authFederationFailureTotal *prometheus.CounterVec
)

// InitRegistry creates the process registry with Go runtime and process
// collectors, then registers the auth metrics on it.
func InitRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		Register(registry)
	})
	return registry
}

// Register creates the auth metrics on reg. A nil reg is a no-op.
func Register(reg *prometheus.Registry) {
	if reg == nil {
		return
	}

	authLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinplace_auth_logins_total",
			Help: "Sign-in attempts by method and outcome.",
		},
		[]string{"method", "status"},
	)
	authTokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinplace_auth_tokens_issued_total",
			Help: "Signed tokens issued by type.",
		},
		[]string{"type"},
	)
	authRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinplace_auth_refresh_total",
			Help: "Refresh calls by outcome (rotated, kept, rejected).",
		},
		[]string{"outcome"},
	)
	authFederationFailureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pinplace_auth_federation_failures_total",
			Help: "External provider verification failures.",
		},
		[]string{"provider"},
	)

	reg.MustRegister(
		authLoginsTotal,
		authTokensIssuedTotal,
		authRefreshTotal,
		authFederationFailureTotal,
	)
}

func IncLogin(method, status string) {
	if authLoginsTotal != nil {
		authLoginsTotal.WithLabelValues(method, status).Inc()
	}
}

func IncTokenIssued(tokenType string) {
	if authTokensIssuedTotal != nil {
		authTokensIssuedTotal.WithLabelValues(tokenType).Inc()
	}
}

func IncRefresh(outcome string) {
	if authRefreshTotal != nil {
		authRefreshTotal.WithLabelValues(outcome).Inc()
	}
}

func IncFederationFailure(provider string) {
	if authFederationFailureTotal != nil {
		authFederationFailureTotal.WithLabelValues(provider).Inc()
	}
}
