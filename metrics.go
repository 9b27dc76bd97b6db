package netdevice

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the framework's prometheus-backed instrumentation:
// tx/rx throughput, primary-election churn, teardown duration, and
// live session counts, registered as standard prometheus collectors.
type Metrics struct {
	TxFrames         prometheus.Counter
	RxFrames         prometheus.Counter
	TxBytes          prometheus.Counter
	RxBytes          prometheus.Counter
	TxErrors         *prometheus.CounterVec
	RxErrors         *prometheus.CounterVec
	PrimaryElections prometheus.Counter
	SessionsOpen     prometheus.Gauge
	SessionsKilled   prometheus.Counter
	SnoopFrames      prometheus.Counter
	TeardownSeconds  prometheus.Histogram
}

// NewMetrics creates a Metrics bound to reg. Pass prometheus.NewRegistry()
// in tests to avoid collisions with the default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TxFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netdevice_tx_frames_total",
			Help: "Total frames submitted to the device for transmission.",
		}),
		RxFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netdevice_rx_frames_total",
			Help: "Total frames delivered to sessions on receive.",
		}),
		TxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netdevice_tx_bytes_total",
			Help: "Total payload bytes transmitted.",
		}),
		RxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netdevice_rx_bytes_total",
			Help: "Total payload bytes received.",
		}),
		TxErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netdevice_tx_errors_total",
			Help: "Tx completions by return-flag error category.",
		}, []string{"code"}),
		RxErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netdevice_rx_errors_total",
			Help: "Rx completions by error category.",
		}, []string{"code"}),
		PrimaryElections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netdevice_primary_elections_total",
			Help: "Number of times the primary session changed.",
		}),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netdevice_sessions_open",
			Help: "Currently live sessions (ALIVE or KILLED, not yet DESTROYED).",
		}),
		SessionsKilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netdevice_sessions_killed_total",
			Help: "Total sessions killed (peer close or contract breach).",
		}),
		SnoopFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netdevice_snoop_frames_total",
			Help: "Frames reported through the Snoop hook (not inspected).",
		}),
		TeardownSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netdevice_teardown_seconds",
			Help:    "Wall-clock duration of the device-interface teardown FSM.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.TxFrames, m.RxFrames, m.TxBytes, m.RxBytes,
			m.TxErrors, m.RxErrors, m.PrimaryElections,
			m.SessionsOpen, m.SessionsKilled, m.SnoopFrames, m.TeardownSeconds,
		)
	}
	return m
}

// RecordTx records one device-accepted tx buffer.
func (m *Metrics) RecordTx(bytes uint64) {
	m.TxFrames.Inc()
	m.TxBytes.Add(float64(bytes))
}

// RecordTxError records one failed tx completion, labeled by status code.
func (m *Metrics) RecordTxError(code Code) {
	m.TxErrors.WithLabelValues(string(code)).Inc()
}

// RecordRx records one delivered rx frame.
func (m *Metrics) RecordRx(bytes uint64) {
	m.RxFrames.Inc()
	m.RxBytes.Add(float64(bytes))
}

// RecordRxError records one failed rx completion, labeled by status code.
func (m *Metrics) RecordRxError(code Code) {
	m.RxErrors.WithLabelValues(string(code)).Inc()
}

// RecordPrimaryElection records a primary-session change.
func (m *Metrics) RecordPrimaryElection() {
	m.PrimaryElections.Inc()
}

// RecordSessionOpened/RecordSessionClosed track the live session gauge.
func (m *Metrics) RecordSessionOpened() { m.SessionsOpen.Inc() }
func (m *Metrics) RecordSessionClosed() { m.SessionsOpen.Dec() }

// RecordSessionKilled records a session entering KILLED.
func (m *Metrics) RecordSessionKilled() { m.SessionsKilled.Inc() }

// RecordTeardown records the wall-clock duration of one teardown run.
func (m *Metrics) RecordTeardown(seconds float64) {
	m.TeardownSeconds.Observe(seconds)
}
