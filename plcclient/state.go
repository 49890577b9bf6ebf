package plcclient

import (
	"time"
)

// Status represents the PLC link status.
type Status int

const (
	// StatusDisconnected means no session with the device exists.
	StatusDisconnected Status = iota
	// StatusConnecting means a session is being established.
	StatusConnecting
	// StatusConnected means the real device session is up.
	StatusConnected
	// StatusDegraded means the session is nominally up but erroring
	// frequently and a reconnect may be scheduled.
	StatusDegraded
	// StatusSimulated means the client is talking to the in-memory
	// device stand-in instead of real hardware.
	StatusSimulated
	// StatusError means the last connection attempt failed.
	StatusError
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDegraded:
		return "degraded"
	case StatusSimulated:
		return "simulated"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionState describes the current link status and health.
// One instance is created at startup and mutated only by the Client.
type ConnectionState struct {
	Status            Status    `json:"status"`
	IP                string    `json:"ip"`
	Port              int       `json:"port"`
	LastConnected     time.Time `json:"last_connected,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
	ErrorCount        int       `json:"error_count"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	Simulated         bool      `json:"simulated"`
}

// IsConnected reports whether tag I/O is currently possible, against
// either the real device or the simulator.
func (cs ConnectionState) IsConnected() bool {
	return cs.Status == StatusConnected || cs.Status == StatusSimulated
}

// IsHealthy reports whether the real device session is up and error-free.
func (cs ConnectionState) IsHealthy() bool {
	return cs.Status == StatusConnected && cs.ErrorCount == 0
}
