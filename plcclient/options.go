package plcclient

import (
	"log/slog"
	"time"

	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/metric"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/notify"
)

// Option configures optional Client behavior.
type Option func(*Client)

// WithLogger sets the structured logger for connection and tag I/O events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With("component", "Client")
		}
	}
}

// WithMetrics attaches a metrics collector for connection status, tag I/O
// counters and latency histograms.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBus attaches the notification bus so tag and connection events reach
// the UI and telemetry consumers.
func WithBus(bus *notify.Bus) Option {
	return func(c *Client) {
		c.bus = bus
	}
}

// WithSimDelays overrides the simulated robot's motion delays. Tests use
// this to compress the handshake timing.
func WithSimDelays(delays SimDelays) Option {
	return func(c *Client) {
		c.simDelays = delays
	}
}

// WithErrorThreshold overrides the consecutive-error count that moves a
// connected client to degraded.
func WithErrorThreshold(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.errorThreshold = n
		}
	}
}

// WithHeartbeatInterval overrides the configured heartbeat cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeatOverride = d
		}
	}
}

// WithOnConnect registers a callback invoked after each successful connect.
// The argument reports whether the session is simulated.
func WithOnConnect(fn func(simulated bool)) Option {
	return func(c *Client) {
		c.onConnect = fn
	}
}

// WithOnDisconnect registers a callback invoked after each disconnect.
func WithOnDisconnect(fn func()) Option {
	return func(c *Client) {
		c.onDisconnect = fn
	}
}

// WithOnStateChange registers a callback invoked with a state snapshot
// after every status change. Snapshots are delivered in order from a
// single dispatcher goroutine.
func WithOnStateChange(fn func(ConnectionState)) Option {
	return func(c *Client) {
		c.onStateChange = fn
	}
}
