// Package metrics records request and handshake statistics with Prometheus.
package metrics

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wagiedev/hostwire-go/internal/errors"
)

const namespace = "hostwire"

// Recorder implements protocol.Observer on top of Prometheus collectors.
type Recorder struct {
	requests   *prometheus.CounterVec
	responses  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	pending    prometheus.Gauge
	handshakes *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer. Collectors that are already
// registered are reused, so several clients may share one registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "sent_total",
				Help:      "Requests sent to the host.",
			},
			[]string{"action"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "completed_total",
				Help:      "Requests completed, by outcome.",
			},
			[]string{"action", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "Time from send to completion in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action", "outcome"},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "pending",
				Help:      "Correlated requests awaiting a response.",
			},
		),
		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "handshake",
				Name:      "total",
				Help:      "Authentication handshakes, by outcome.",
			},
			[]string{"outcome"},
		),
	}

	r.requests = register(reg, r.requests)
	r.responses = register(reg, r.responses)
	r.duration = register(reg, r.duration)
	r.pending = register(reg, r.pending)
	r.handshakes = register(reg, r.handshakes)

	return r
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := stderrors.AsType[prometheus.AlreadyRegisteredError](err); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}

		panic(err)
	}

	return c
}

// RequestStarted counts an outbound request.
func (r *Recorder) RequestStarted(action string) {
	r.requests.WithLabelValues(action).Inc()
}

// RequestFinished records the outcome and latency of a request.
func (r *Recorder) RequestFinished(action string, err error, elapsed time.Duration) {
	outcome := Outcome(err)
	r.responses.WithLabelValues(action, outcome).Inc()
	r.duration.WithLabelValues(action, outcome).Observe(elapsed.Seconds())
}

// PendingChanged tracks the size of the pending-request table.
func (r *Recorder) PendingChanged(n int) {
	r.pending.Set(float64(n))
}

// HandshakeFinished counts a completed handshake attempt.
func (r *Recorder) HandshakeFinished(err error) {
	r.handshakes.WithLabelValues(Outcome(err)).Inc()
}

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}

	if kind, ok := errors.KindOf(err); ok {
		return kind.String()
	}

	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case stderrors.Is(err, errors.ErrWireClosed), stderrors.Is(err, errors.ErrWireNotConnected):
		return "wire_closed"
	case stderrors.Is(err, errors.ErrControllerStopped):
		return "stopped"
	case stderrors.Is(err, errors.ErrListenerBusy):
		return "listener_busy"
	case stderrors.Is(err, errors.ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "error"
	}
}
