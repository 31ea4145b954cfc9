package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics_SetCoverageEdges(t *testing.T) {
	m := NewWithRegistry("bombadil_test", prometheus.NewRegistry(), zap.NewNop())
	m.SetCoverageEdges(42)
	require.Equal(t, float64(42), gaugeValue(t, m.coverageEdges))
}

func TestMetrics_RecordActionFailure(t *testing.T) {
	m := NewWithRegistry("bombadil_test", prometheus.NewRegistry(), zap.NewNop())
	m.RecordActionFailure()
	m.RecordActionFailure()
	require.Equal(t, float64(2), counterValue(t, m.actionFailuresTotal))
}

func TestMetrics_RecordPropertyDecidedByOutcome(t *testing.T) {
	m := NewWithRegistry("bombadil_test", prometheus.NewRegistry(), zap.NewNop())
	m.RecordPropertyDecided("true")
	m.RecordPropertyDecided("true")
	m.RecordPropertyDecided("false")

	var mTrue dto.Metric
	require.NoError(t, m.propertiesDecided.WithLabelValues("true").Write(&mTrue))
	require.Equal(t, float64(2), mTrue.GetCounter().GetValue())

	var mFalse dto.Metric
	require.NoError(t, m.propertiesDecided.WithLabelValues("false").Write(&mFalse))
	require.Equal(t, float64(1), mFalse.GetCounter().GetValue())
}
