package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/errors"
)

// Registry manages the registration and lifecycle of metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registered         map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewRegistry creates a metrics registry with the core metrics plus Go
// runtime collectors.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		registered:         make(map[string]prometheus.Collector),
	}

	r.Metrics = NewMetrics()
	r.registerCore()

	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// registerCore registers the built-in metrics set.
func (r *Registry) registerCore() {
	m := r.Metrics
	for _, c := range []prometheus.Collector{
		m.ConnectionStatus,
		m.ConnectionErrors,
		m.Reconnects,
		m.HeartbeatsWritten,
		m.TagReads,
		m.TagWrites,
		m.TagLatency,
		m.CyclesCompleted,
		m.CycleDuration,
		m.ControllerState,
		m.StateTransitions,
		m.ControllerErrors,
	} {
		r.prometheusRegistry.MustRegister(c)
	}
}

// Register adds a named custom collector. Duplicate names are rejected.
func (r *Registry) Register(name string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registered[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered", name),
			"Registry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "Registry", "Register", "collector already registered")
		}
		return errors.Wrap(err, "Registry", "Register", "register collector")
	}

	r.registered[name] = collector
	return nil
}

// Unregister removes a named custom collector.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	collector, exists := r.registered[name]
	if !exists {
		return false
	}

	delete(r.registered, name)
	return r.prometheusRegistry.Unregister(collector)
}
