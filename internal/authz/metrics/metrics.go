// Package metrics exposes Prometheus counters for the authorization core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Token types used as the "type" label.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
	TokenID      = "id"
)

// Verification results used as the "result" label.
const (
	ResultValid   = "valid"
	ResultInvalid = "invalid"
)

// Metrics holds the service counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	CodesIssued        prometheus.Counter
	TokensIssued       *prometheus.CounterVec
	TokenVerifications *prometheus.CounterVec
	TokenEvictions     prometheus.Counter
	Revocations        prometheus.Counter
}

// New registers the counters together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CodesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authz_codes_issued_total",
			Help: "Authorization codes issued.",
		}),
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_tokens_issued_total",
			Help: "Tokens signed, by token type.",
		}, []string{"type"}),
		TokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_token_verifications_total",
			Help: "Token verifications, by result.",
		}, []string{"result"}),
		TokenEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authz_token_evictions_total",
			Help: "Refresh tokens evicted from full session token tables.",
		}),
		Revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authz_revocations_total",
			Help: "Token and app authorization revocations.",
		}),
	}
	m.registry.MustRegister(
		m.CodesIssued,
		m.TokensIssued,
		m.TokenVerifications,
		m.TokenEvictions,
		m.Revocations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The helpers below are safe on a nil *Metrics.

// CodeIssued counts one authorization code.
func (m *Metrics) CodeIssued() {
	if m != nil {
		m.CodesIssued.Inc()
	}
}

// Token counts one issued token of type typ.
func (m *Metrics) Token(typ string) {
	if m != nil {
		m.TokensIssued.WithLabelValues(typ).Inc()
	}
}

// Verification counts one verification outcome.
func (m *Metrics) Verification(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.TokenVerifications.WithLabelValues(ResultValid).Inc()
		return
	}
	m.TokenVerifications.WithLabelValues(ResultInvalid).Inc()
}

// Evicted counts n evicted refresh tokens.
func (m *Metrics) Evicted(n int) {
	if m != nil {
		m.TokenEvictions.Add(float64(n))
	}
}

// Revoked counts one revocation.
func (m *Metrics) Revoked() {
	if m != nil {
		m.Revocations.Inc()
	}
}
