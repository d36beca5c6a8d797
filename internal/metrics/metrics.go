package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/33TU/socksd/socks5"
)

// Handshake outcome label values.
const (
	OutcomeEstablished        = "established"
	OutcomeUnsupportedVersion = "unsupported_version"
	OutcomeTruncated          = "truncated"
	OutcomeMalformedAddress   = "malformed_address"
	OutcomeMalformedLength    = "malformed_length"
	OutcomeNoAcceptableMethod = "no_acceptable_method"
	OutcomeAuthFailed         = "auth_failed"
	OutcomeUnsupportedCommand = "unsupported_command"
	OutcomeExecutionFailed    = "execution_failed"
	OutcomeOther              = "other"
)

// Metrics holds the daemon's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	Handshakes        *prometheus.CounterVec
	HandshakeDuration prometheus.Histogram
	InFlight          prometheus.Gauge
	Relays            prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "socksd_handshakes_total",
			Help: "Finished SOCKS5 handshakes by outcome.",
		}, []string{"outcome"}),
		HandshakeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "socksd_handshake_duration_seconds",
			Help:    "Time from accept to the end of the handshake.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "socksd_handshakes_in_flight",
			Help: "Handshakes currently in progress.",
		}),
		Relays: f.NewGauge(prometheus.GaugeOpts{
			Name: "socksd_relays_active",
			Help: "Established connections currently relaying.",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// HandshakeStarted marks a handshake as in flight.
func (m *Metrics) HandshakeStarted() {
	m.InFlight.Inc()
}

// HandshakeDone records a finished handshake.
func (m *Metrics) HandshakeDone(elapsed time.Duration, err error) {
	m.InFlight.Dec()
	m.HandshakeDuration.Observe(elapsed.Seconds())
	m.Handshakes.WithLabelValues(Outcome(err)).Inc()
}

// Outcome classifies a handshake result into a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeEstablished
	case errors.Is(err, socks5.ErrExecutionFailed):
		return OutcomeExecutionFailed
	case errors.Is(err, socks5.ErrNoAcceptableMethod):
		return OutcomeNoAcceptableMethod
	case errors.Is(err, socks5.ErrAuthenticationFailed):
		return OutcomeAuthFailed
	case errors.Is(err, socks5.ErrUnsupportedCommand):
		return OutcomeUnsupportedCommand
	case errors.Is(err, socks5.ErrUnsupportedVersion):
		return OutcomeUnsupportedVersion
	case errors.Is(err, socks5.ErrTruncatedFrame):
		return OutcomeTruncated
	case errors.Is(err, socks5.ErrMalformedAddress):
		return OutcomeMalformedAddress
	case errors.Is(err, socks5.ErrMalformedLength):
		return OutcomeMalformedLength
	default:
		return OutcomeOther
	}
}
