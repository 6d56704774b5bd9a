package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "hamrelay"
	metricsSubsystem = "relay"
)

// Metrics holds the relay's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	dispatched    *prometheus.CounterVec // by class: action, query, unrecognised, ignored
	replies       *prometheus.CounterVec // by outcome: found, missing
	messages      *prometheus.CounterVec // by result: attended, unattended, malformed
	expired       prometheus.Counter
	publishErrors prometheus.Counter
	pending       prometheus.Gauge
	subscriptions prometheus.Gauge
	latency       prometheus.Histogram
}

// NewMetrics creates the relay collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "dispatched_total",
			Help:      "Codes dispatched, by class",
		}, []string{"class"}),

		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "query_replies_total",
			Help:      "Query replies published, by whether the key path resolved",
		}, []string{"outcome"}),

		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "response_messages_total",
			Help:      "Messages received on response and monitor topics, by result",
		}, []string{"result"}),

		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queries_expired_total",
			Help:      "Pending queries dropped after their deadline",
		}),

		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "publish_errors_total",
			Help:      "Bus publishes that failed",
		}),

		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "pending_queries",
			Help:      "Queries waiting for a response",
		}),

		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "response_subscriptions",
			Help:      "Response topics currently subscribed",
		}),

		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "query_latency_seconds",
			Help:      "Time from query dispatch to reply",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}

	collectors := []prometheus.Collector{
		m.dispatched, m.replies, m.messages, m.expired,
		m.publishErrors, m.pending, m.subscriptions, m.latency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeDispatch(class string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(class).Inc()
}

func (m *Metrics) observeReply(found bool, latency time.Duration) {
	if m == nil {
		return
	}
	outcome := "found"
	if !found {
		outcome = "missing"
	}
	m.replies.WithLabelValues(outcome).Inc()
	m.latency.Observe(latency.Seconds())
}

func (m *Metrics) observeMessage(result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(result).Inc()
}

func (m *Metrics) observeExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *Metrics) observePublishError() {
	if m == nil {
		return
	}
	m.publishErrors.Inc()
}

func (m *Metrics) setGauges(pending, subscriptions int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.subscriptions.Set(float64(subscriptions))
}
