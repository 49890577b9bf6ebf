package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSBridge republishes bus events to NATS for external consumers (the
// operator UI and the plant telemetry collector). Publishing is best effort:
// a broken broker connection never disturbs the control loop.
type NATSBridge struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
	enabled bool
}

// NewNATSBridge creates a bridge publishing on "<subject>.<event type>".
// A nil connection disables publishing.
func NewNATSBridge(nc *nats.Conn, subject string, logger *slog.Logger) *NATSBridge {
	if logger == nil {
		logger = slog.Default()
	}
	if subject == "" {
		subject = "vision.events"
	}
	return &NATSBridge{
		nc:      nc,
		subject: subject,
		logger:  logger,
		enabled: nc != nil,
	}
}

// Attach subscribes the bridge to a bus.
func (nb *NATSBridge) Attach(bus *Bus) {
	bus.Subscribe(nb.publish)
}

func (nb *NATSBridge) publish(ev Event) {
	if !nb.enabled {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		nb.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		return
	}

	nc := nb.nc
	if nc == nil {
		return
	}

	subject := fmt.Sprintf("%s.%s", nb.subject, ev.Type)
	if err := nc.Publish(subject, data); err != nil {
		nb.logger.Error("failed to publish event", "subject", subject, "error", err)
	}
}
