package netdevice

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterVecValue(t *testing.T, v *prometheus.CounterVec, label string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, v.WithLabelValues(label).Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetricsRecordTxRx(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTx(1024)
	m.RecordTx(512)
	m.RecordRx(2048)

	require.Equal(t, float64(2), counterValue(t, m.TxFrames))
	require.Equal(t, float64(1536), counterValue(t, m.TxBytes))
	require.Equal(t, float64(1), counterValue(t, m.RxFrames))
	require.Equal(t, float64(2048), counterValue(t, m.RxBytes))
}

func TestMetricsRecordErrorsByCode(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTxError(CodeNoResources)
	m.RecordTxError(CodeNoResources)
	m.RecordRxError(CodeOutOfRange)

	require.Equal(t, float64(2), counterVecValue(t, m.TxErrors, string(CodeNoResources)))
	require.Equal(t, float64(1), counterVecValue(t, m.RxErrors, string(CodeOutOfRange)))
}

func TestMetricsPrimaryElection(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPrimaryElection()
	m.RecordPrimaryElection()

	require.Equal(t, float64(2), counterValue(t, m.PrimaryElections))
}

func TestMetricsSessionGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSessionOpened()
	m.RecordSessionOpened()
	m.RecordSessionClosed()
	m.RecordSessionKilled()

	require.Equal(t, float64(1), gaugeValue(t, m.SessionsOpen))
	require.Equal(t, float64(1), counterValue(t, m.SessionsKilled))
}

func TestMetricsTeardownHistogram(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTeardown(0.25)

	var out dto.Metric
	require.NoError(t, m.TeardownSeconds.Write(&out))
	require.Equal(t, uint64(1), out.GetHistogram().GetSampleCount())
}

func TestNewMetricsRegistersWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() {
		NewMetrics(reg)
	})

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewMetricsNilRegistererSkipsRegistration(t *testing.T) {
	require.NotPanics(t, func() {
		NewMetrics(nil)
	})
}
