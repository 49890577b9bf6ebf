package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_CoreMetricsRegistered(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r.Metrics)

	r.Metrics.RecordConnectionStatus(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Metrics.ConnectionStatus))
}

func TestRecordTagIO(t *testing.T) {
	r := NewRegistry()
	m := r.Metrics

	m.RecordTagRead("RobotAck", true, 5*time.Millisecond)
	m.RecordTagRead("RobotAck", true, 5*time.Millisecond)
	m.RecordTagRead("RobotAck", false, time.Millisecond)
	m.RecordTagWrite("VisionReady", true, 2*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TagReads.WithLabelValues("RobotAck", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagReads.WithLabelValues("RobotAck", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagWrites.WithLabelValues("VisionReady", "ok")))
}

func TestRecordCycleAndTransitions(t *testing.T) {
	r := NewRegistry()
	m := r.Metrics

	m.RecordCycle(12 * time.Second)
	m.RecordTransition("WaitingAck", "AckConfirmed", 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StateTransitions.WithLabelValues("WaitingAck", "AckConfirmed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ControllerState))
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "custom_gauge"})
	require.NoError(t, r.Register("custom", g))

	g2 := prometheus.NewGauge(prometheus.GaugeOpts{Name: "custom_gauge_2"})
	assert.Error(t, r.Register("custom", g2))
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "custom_gauge"})
	require.NoError(t, r.Register("custom", g))

	assert.True(t, r.Unregister("custom"))
	assert.False(t, r.Unregister("custom"))
	// Re-registering after unregister succeeds
	assert.NoError(t, r.Register("custom", g))
}
