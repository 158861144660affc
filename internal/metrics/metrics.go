package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Options configures the collectors.
type Options struct {
	// Namespace is the metric namespace (default: "socketmode").
	Namespace string

	// Registry receives the collectors (default: prometheus.DefaultRegisterer).
	Registry prometheus.Registerer

	// Buckets are the handler duration buckets (default: prometheus.DefBuckets).
	Buckets []float64
}

// Metrics records connection and dispatch activity. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	framesTotal        *prometheus.CounterVec
	acksTotal          prometheus.Counter
	reconnectsTotal    prometheus.Counter
	handshakeFailures  *prometheus.CounterVec
	handlerDuration    *prometheus.HistogramVec
	terminationsTotal  *prometheus.CounterVec
	sinkFailuresTotal  *prometheus.CounterVec
	supervisorRestarts prometheus.Counter
}

func New(opts Options) *Metrics {
	if opts.Namespace == "" {
		opts.Namespace = "socketmode"
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.DefaultRegisterer
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prometheus.DefBuckets
	}
	factory := promauto.With(opts.Registry)

	return &Metrics{
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "frames_total",
			Help:      "Inbound frames by classified kind",
		}, []string{"kind"}),
		acksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "acks_sent_total",
			Help:      "Acknowledgment frames written",
		}),
		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "reconnects_total",
			Help:      "Connections replaced after a recoverable disconnect",
		}),
		handshakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "handshake_failures_total",
			Help:      "Failed open-connection handshakes by reason",
		}, []string{"reason"}),
		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "handler_duration_seconds",
			Help:      "Event handler invocation time",
			Buckets:   opts.Buckets,
		}, []string{"type", "phase"}),
		terminationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "terminations_total",
			Help:      "Manager runs ended, by cause",
		}, []string{"cause"}),
		sinkFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "sink_failures_total",
			Help:      "Event records a sink failed to publish",
		}, []string{"sink"}),
		supervisorRestarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "supervisor_restarts_total",
			Help:      "Manager restarts performed by the supervisor",
		}),
	}
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) AckSent() {
	if m == nil {
		return
	}
	m.acksTotal.Inc()
}

func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

func (m *Metrics) HandshakeFailed(reason string) {
	if m == nil {
		return
	}
	m.handshakeFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) HandlerObserved(typ, phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(typ, phase).Observe(d.Seconds())
}

func (m *Metrics) Terminated(cause string) {
	if m == nil {
		return
	}
	m.terminationsTotal.WithLabelValues(cause).Inc()
}

func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailuresTotal.WithLabelValues(sink).Inc()
}

func (m *Metrics) Restarted() {
	if m == nil {
		return
	}
	m.supervisorRestarts.Inc()
}
