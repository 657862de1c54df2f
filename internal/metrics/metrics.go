/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/secopshub/sentriage/internal/libinfo"
)

const PrometheusNamespace = "sentriage"

const DefaultPrometheusInstanceLabel = "default"

const (
	PrometheusInstanceLabel = "instance"
	PrometheusSourceLabel   = "source"
)

// Metric sources. Each subsystem that talks to an identity provider or makes
// an authentication decision reports under its own source label.
const (
	SourceHTTPMiddleware = "http_middleware"
	SourceJWKSClient     = "jwks_client"
	SourceOBOBroker      = "obo_broker"
	SourceSecretStore    = "secret_store"
	SourceGateway        = "gateway"
)

func PrometheusLabels() prometheus.Labels {
	return prometheus.Labels{"lib_version": libinfo.GetLibVersion()}
}

const (
	HTTPClientRequestLabelMethod     = "method"
	HTTPClientRequestLabelURL        = "url"
	HTTPClientRequestLabelStatusCode = "status_code"
	HTTPClientRequestLabelError      = "error"

	TokenValidationLabelResult = "result"
	DelegatedMintLabelResult   = "result"
)

const (
	HTTPRequestErrorDo                   = "do_request_error"
	HTTPRequestErrorDecodeBody           = "decode_body_error"
	HTTPRequestErrorUnexpectedStatusCode = "unexpected_status_code"
)

var requestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	prometheusMetrics     *PrometheusMetrics
	prometheusMetricsOnce sync.Once
)

// PrometheusMetrics represents the collector of metrics.
type PrometheusMetrics struct {
	HTTPClientRequestDuration *prometheus.HistogramVec
	TokenValidationsTotal     *prometheus.CounterVec
	DelegatedTokenMintsTotal  *prometheus.CounterVec
}

func GetPrometheusMetrics(instance string, source string) *PrometheusMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetrics = newPrometheusMetrics()
		prometheusMetrics.MustRegister()
	})
	if instance == "" {
		instance = DefaultPrometheusInstanceLabel
	}
	return prometheusMetrics.MustCurryWith(map[string]string{
		PrometheusInstanceLabel: instance,
		PrometheusSourceLabel:   source,
	})
}

func newPrometheusMetrics() *PrometheusMetrics {
	curriedLabelNames := []string{PrometheusInstanceLabel, PrometheusSourceLabel}
	makeLabelNames := func(names ...string) []string {
		l := append(make([]string, 0, len(curriedLabelNames)+len(names)), curriedLabelNames...)
		return append(l, names...)
	}

	httpClientReqDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   PrometheusNamespace,
			Name:        "http_client_request_duration_seconds",
			Help:        "A histogram of the http client request durations to identity provider endpoints.",
			Buckets:     requestDurationBuckets,
			ConstLabels: PrometheusLabels(),
		},
		makeLabelNames(HTTPClientRequestLabelMethod, HTTPClientRequestLabelURL,
			HTTPClientRequestLabelStatusCode, HTTPClientRequestLabelError),
	)
	tokenValidations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   PrometheusNamespace,
			Name:        "token_validations_total",
			Help:        "A counter of inbound token validations by result.",
			ConstLabels: PrometheusLabels(),
		},
		makeLabelNames(TokenValidationLabelResult),
	)
	delegatedMints := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   PrometheusNamespace,
			Name:        "delegated_token_mints_total",
			Help:        "A counter of delegated (on-behalf-of) token mints by result.",
			ConstLabels: PrometheusLabels(),
		},
		makeLabelNames(DelegatedMintLabelResult),
	)

	return &PrometheusMetrics{
		HTTPClientRequestDuration: httpClientReqDuration,
		TokenValidationsTotal:     tokenValidations,
		DelegatedTokenMintsTotal:  delegatedMints,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		HTTPClientRequestDuration: pm.HTTPClientRequestDuration.MustCurryWith(labels).(*prometheus.HistogramVec),
		TokenValidationsTotal:     pm.TokenValidationsTotal.MustCurryWith(labels),
		DelegatedTokenMintsTotal:  pm.DelegatedTokenMintsTotal.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.HTTPClientRequestDuration,
		pm.TokenValidationsTotal,
		pm.DelegatedTokenMintsTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.HTTPClientRequestDuration)
	prometheus.Unregister(pm.TokenValidationsTotal)
	prometheus.Unregister(pm.DelegatedTokenMintsTotal)
}

func (pm *PrometheusMetrics) ObserveHTTPClientRequest(
	method string, targetURL string, statusCode int, elapsed time.Duration, errorType string,
) {
	pm.HTTPClientRequestDuration.With(prometheus.Labels{
		HTTPClientRequestLabelMethod:     method,
		HTTPClientRequestLabelURL:        targetURL,
		HTTPClientRequestLabelStatusCode: strconv.Itoa(statusCode),
		HTTPClientRequestLabelError:      errorType,
	}).Observe(elapsed.Seconds())
}

func (pm *PrometheusMetrics) IncTokenValidationsTotal(result string) {
	pm.TokenValidationsTotal.With(prometheus.Labels{TokenValidationLabelResult: result}).Inc()
}

func (pm *PrometheusMetrics) IncDelegatedTokenMintsTotal(result string) {
	pm.DelegatedTokenMintsTotal.With(prometheus.Labels{DelegatedMintLabelResult: result}).Inc()
}
