// Package notify carries the outbound notifications of the coordination
// core: state transitions, cycle progress, tag traffic and errors. It
// replaces the desktop signal/slot wiring with a typed bus whose only
// ordering guarantee is emission order. Subscribers are registered before
// the producers start and must not block.
package notify

import (
	"sync"
	"time"
)

// Type identifies the kind of event on the bus.
type Type string

// Event types emitted by the PLC client and the robot controller.
const (
	TypeStateChanged    Type = "state_changed"
	TypeCycleCompleted  Type = "cycle_completed"
	TypeCycleStep       Type = "cycle_step"
	TypeCycleSummary    Type = "cycle_summary"
	TypeErrorOccurred   Type = "error_occurred"
	TypeDetectionSent   Type = "detection_sent"
	TypeTagRead         Type = "tag_read"
	TypeTagWritten      Type = "tag_written"
	TypeConnected       Type = "connected"
	TypeDisconnected    Type = "disconnected"
	TypeConnectionError Type = "connection_error"
)

// Event is a single notification. Only the fields relevant to the event's
// Type are populated.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	State       string   `json:"state,omitempty"`
	CycleNumber int      `json:"cycle_number,omitempty"`
	Step        string   `json:"step,omitempty"`
	Steps       []string `json:"steps,omitempty"`
	Message     string   `json:"message,omitempty"`
	Tag         string   `json:"tag,omitempty"`
	Value       any      `json:"value,omitempty"`
	Detection   any      `json:"detection,omitempty"`
}

// Handler consumes events. Handlers run on the publisher's goroutine and
// must return promptly. Publishers deliver events outside their own locks,
// so a handler may query the emitting component.
type Handler func(Event)

// Bus fans events out to subscribers in emission order.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all events.
func (b *Bus) Subscribe(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers an event to every subscriber. Dispatch is serialized
// under one lock so subscribers observe events in emission order.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.handlers {
		h(ev)
	}
}

// Convenience emitters used by the client and controller.

// StateChanged publishes a state transition notification.
func (b *Bus) StateChanged(state string) {
	b.Publish(Event{Type: TypeStateChanged, State: state})
}

// CycleCompleted publishes a cycle counter notification.
func (b *Bus) CycleCompleted(number int) {
	b.Publish(Event{Type: TypeCycleCompleted, CycleNumber: number})
}

// CycleStep publishes one step of the running cycle.
func (b *Bus) CycleStep(step string) {
	b.Publish(Event{Type: TypeCycleStep, Step: step})
}

// CycleSummary publishes the ordered step list of a completed cycle.
func (b *Bus) CycleSummary(steps []string) {
	b.Publish(Event{Type: TypeCycleSummary, Steps: steps})
}

// ErrorOccurred publishes an error notification.
func (b *Bus) ErrorOccurred(message string) {
	b.Publish(Event{Type: TypeErrorOccurred, Message: message})
}

// DetectionSent publishes the detection payload handed to the PLC.
func (b *Bus) DetectionSent(detection any) {
	b.Publish(Event{Type: TypeDetectionSent, Detection: detection})
}

// TagRead publishes a successful tag read.
func (b *Bus) TagRead(tag string, value any) {
	b.Publish(Event{Type: TypeTagRead, Tag: tag, Value: value})
}

// TagWritten publishes a successful tag write.
func (b *Bus) TagWritten(tag string, value any) {
	b.Publish(Event{Type: TypeTagWritten, Tag: tag, Value: value})
}

// Connected publishes a connection-established notification.
func (b *Bus) Connected(simulated bool) {
	state := "connected"
	if simulated {
		state = "simulated"
	}
	b.Publish(Event{Type: TypeConnected, State: state})
}

// Disconnected publishes a disconnection notification.
func (b *Bus) Disconnected() {
	b.Publish(Event{Type: TypeDisconnected})
}

// ConnectionError publishes a connection failure notification.
func (b *Bus) ConnectionError(message string) {
	b.Publish(Event{Type: TypeConnectionError, Message: message})
}
