package health

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorUpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("plc", "connected")
	status, exists := m.Get("plc")
	require.True(t, exists)
	assert.Equal(t, "plc", status.Component)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "connected", status.Message)
	assert.False(t, status.Timestamp.IsZero())

	m.UpdateDegraded("plc", "error threshold exceeded")
	status, exists = m.Get("plc")
	require.True(t, exists)
	assert.True(t, status.IsDegraded())

	_, exists = m.Get("unknown")
	assert.False(t, exists)
}

func TestMonitorGetAllReturnsCopy(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("plc", "connected")
	m.UpdateUnhealthy("controller", "stopped")

	all := m.GetAll()
	require.Len(t, all, 2)

	delete(all, "plc")
	_, exists := m.Get("plc")
	assert.True(t, exists, "mutating the returned map must not affect the monitor")
}

func TestMonitorAggregateHealth(t *testing.T) {
	m := NewMonitor()

	agg := m.AggregateHealth("cell")
	assert.True(t, agg.IsHealthy(), "empty monitor aggregates healthy")

	m.UpdateHealthy("plc", "connected")
	m.UpdateHealthy("controller", "cycling")
	agg = m.AggregateHealth("cell")
	assert.True(t, agg.IsHealthy())
	assert.Len(t, agg.SubStatuses, 2)

	m.UpdateDegraded("plc", "retrying")
	agg = m.AggregateHealth("cell")
	assert.True(t, agg.IsDegraded())

	m.UpdateUnhealthy("controller", "fault")
	agg = m.AggregateHealth("cell")
	assert.True(t, agg.IsUnhealthy(), "unhealthy dominates degraded")
}

func TestAggregateStatusRules(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, "healthy"},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, "degraded"},
		{"one unhealthy", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, "unhealthy"},
		{"empty", nil, "healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("cell", tt.subs)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestMonitorConcurrentUpdates(t *testing.T) {
	m := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.UpdateHealthy("plc", "connected")
				m.Get("plc")
				m.AggregateHealth("cell")
			}
		}()
	}
	wg.Wait()

	status, exists := m.Get("plc")
	require.True(t, exists)
	assert.True(t, status.IsHealthy())
}
