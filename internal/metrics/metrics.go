package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes recorded by the request client.
const (
	RefreshSuccess   = "success"
	RefreshRejected  = "rejected"
	RefreshMalformed = "malformed"
	RefreshError     = "error"
	RefreshNoToken   = "no_refresh_token"
	RefreshReused    = "reused"
	RefreshShared    = "shared"
)

// ClientMetrics tracks API traffic issued by the request client. A nil
// *ClientMetrics is valid and records nothing.
type ClientMetrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Refreshes       *prometheus.CounterVec
	Retries         prometheus.Counter
}

// NewClientMetrics builds the collectors without registering them.
func NewClientMetrics() *ClientMetrics {
	return &ClientMetrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naqsh_api_requests_total",
				Help: "Total number of API round trips by method and status code",
			},
			[]string{"method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "naqsh_api_request_duration_seconds",
				Help:    "Duration of API round trips",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naqsh_token_refresh_total",
				Help: "Token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		Retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "naqsh_api_retries_total",
				Help: "Requests re-issued with a replacement access token",
			},
		),
	}
}

// Register registers all collectors with reg.
func (m *ClientMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Requests, m.RequestDuration, m.Refreshes, m.Retries} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRequest records one round trip. code is 0 when the transport failed.
func (m *ClientMetrics) ObserveRequest(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.Requests.WithLabelValues(method, label).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RefreshOutcome records the result of a refresh attempt.
func (m *ClientMetrics) RefreshOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}

// Retry records a re-issued request.
func (m *ClientMetrics) Retry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// Handler exposes reg in the prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
