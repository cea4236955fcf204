// Package metrics provides Prometheus metrics for muti-ping.
package metrics

import (
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const (
	namespace = "muti_ping"
)

// Discard reasons recorded by RecordDiscard.
const (
	DiscardDecode   = "decode"
	DiscardMismatch = "mismatch"
	DiscardChecksum = "checksum"
	DiscardLate     = "late"
)

// Metrics contains all Prometheus metrics for echo sessions.
type Metrics struct {
	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Probe metrics
	ProbesSent    prometheus.Counter
	ProbeOutcomes *prometheus.CounterVec
	RTT           prometheus.Histogram

	// Datagram metrics
	BytesSent          prometheus.Counter
	BytesReceived      prometheus.Counter
	DatagramsDiscarded *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently running echo sessions",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of echo sessions started",
		}),

		ProbesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_sent_total",
			Help:      "Total number of echo requests sent",
		}),
		ProbeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_outcomes_total",
			Help:      "Total probe outcomes by status",
		}, []string{"status"}),
		RTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rtt_seconds",
			Help:      "Histogram of echo round-trip times in seconds",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total ICMP bytes sent",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total ICMP bytes received, including discarded datagrams",
		}),
		DatagramsDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_discarded_total",
			Help:      "Total received datagrams that did not answer the outstanding probe",
		}, []string{"reason"}),
	}
}

// RecordSessionStart records an echo session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// RecordSessionEnd records an echo session ending.
func (m *Metrics) RecordSessionEnd() {
	m.SessionsActive.Dec()
}

// RecordProbeSent records an echo request of the given size.
func (m *Metrics) RecordProbeSent(bytes int) {
	m.ProbesSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

// RecordOutcome records a finished probe. rttSeconds is ignored when negative.
func (m *Metrics) RecordOutcome(status string, rttSeconds float64) {
	m.ProbeOutcomes.WithLabelValues(status).Inc()
	if rttSeconds >= 0 {
		m.RTT.Observe(rttSeconds)
	}
}

// RecordReceived records a received datagram.
func (m *Metrics) RecordReceived(bytes int) {
	m.BytesReceived.Add(float64(bytes))
}

// RecordDiscard records a received datagram that was skipped.
func (m *Metrics) RecordDiscard(reason string) {
	m.DatagramsDiscarded.WithLabelValues(reason).Inc()
}

// WriteText writes every metric family gathered from g in the Prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
