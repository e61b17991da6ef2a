// Package metrics provides Prometheus metrics collection for the samlgate
// login pipeline. HTTP-level metrics live in the middleware package; this
// package covers the protocol itself.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SAML protocol metrics
var (
	authnRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samlgate",
			Name:      "authn_requests_total",
			Help:      "Total number of AuthnRequests built and redirected to an IdP",
		},
		[]string{"tenant"},
	)

	responsesValidatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samlgate",
			Name:      "responses_validated_total",
			Help:      "Total number of SAML responses processed at the ACS endpoint",
		},
		[]string{"tenant", "outcome"}, // outcome: success, failure
	)

	validationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samlgate",
			Name:      "validation_failures_total",
			Help:      "SAML response validation failures by reason",
		},
		[]string{"tenant", "reason"}, // reason: malformed, blank, no_trust_material, not_yet_valid, expired, bad_signature, no_identity
	)

	responseValidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "samlgate",
			Name:      "response_validation_duration_seconds",
			Help:      "Time spent parsing and validating a SAML response",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"tenant"},
	)

	sessionsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samlgate",
			Name:      "sessions_issued_total",
			Help:      "Total number of session tokens issued after successful logins",
		},
		[]string{"tenant"},
	)
)

// Tenant cache metrics
var (
	tenantCacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samlgate",
			Name:      "tenant_cache_operations_total",
			Help:      "Tenant cache lookups by outcome",
		},
		[]string{"outcome"}, // outcome: hit, miss
	)
)

// RecordAuthnRequest records an AuthnRequest redirect for a tenant
func RecordAuthnRequest(tenant string) {
	authnRequestsTotal.WithLabelValues(tenant).Inc()
}

// RecordResponseValidation records the outcome of an ACS validation
func RecordResponseValidation(tenant, outcome string) {
	responsesValidatedTotal.WithLabelValues(tenant, outcome).Inc()
}

// RecordValidationFailure records why a response was rejected
func RecordValidationFailure(tenant, reason string) {
	validationFailuresTotal.WithLabelValues(tenant, reason).Inc()
}

// RecordValidationDuration records the time spent on a response
func RecordValidationDuration(tenant string, duration time.Duration) {
	responseValidationDuration.WithLabelValues(tenant).Observe(duration.Seconds())
}

// RecordSessionIssued records a session token issued after login
func RecordSessionIssued(tenant string) {
	sessionsIssuedTotal.WithLabelValues(tenant).Inc()
}

// RecordTenantCacheLookup records a tenant cache hit or miss
func RecordTenantCacheLookup(outcome string) {
	tenantCacheOperationsTotal.WithLabelValues(outcome).Inc()
}
