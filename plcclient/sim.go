package plcclient

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default motion delays of the simulated robot. They approximate the real
// cell's timing and can be compressed for tests.
const (
	DefaultAckDelay      = 1500 * time.Millisecond
	DefaultPickDelay     = 4 * time.Second
	DefaultPlaceDelay    = 5 * time.Second
	DefaultCycleEndDelay = 1 * time.Second
)

// SimDelays configures the reaction times of the simulated robot.
type SimDelays struct {
	Ack      time.Duration
	Pick     time.Duration
	Place    time.Duration
	CycleEnd time.Duration
}

// DefaultSimDelays returns the production-like delay set.
func DefaultSimDelays() SimDelays {
	return SimDelays{
		Ack:      DefaultAckDelay,
		Pick:     DefaultPickDelay,
		Place:    DefaultPlaceDelay,
		CycleEnd: DefaultCycleEndDelay,
	}
}

// SimulatedDevice is an in-memory stand-in for the robot/PLC pairing. It
// stores device-level tags and reacts to handshake writes with deferred
// self-mutations that emulate robot motion. It implements Driver so the
// client can use it interchangeably with real hardware.
type SimulatedDevice struct {
	mu     sync.Mutex
	tags   map[string]any
	timers []*time.Timer
	closed bool
	delays SimDelays
	logger *slog.Logger
}

// NewSimulatedDevice creates a simulator with safety tags defaulting to OK
// and robot-authorization tags defaulting to permissive.
func NewSimulatedDevice(delays SimDelays, logger *slog.Logger) *SimulatedDevice {
	if logger == nil {
		logger = slog.Default()
	}
	if delays.Ack <= 0 {
		delays.Ack = DefaultAckDelay
	}
	if delays.Pick <= 0 {
		delays.Pick = DefaultPickDelay
	}
	if delays.Place <= 0 {
		delays.Place = DefaultPlaceDelay
	}
	if delays.CycleEnd <= 0 {
		delays.CycleEnd = DefaultCycleEndDelay
	}

	return &SimulatedDevice{
		tags: map[string]any{
			"ROBOT_ACK":                    false,
			"ROBOT_READY":                  true,
			"ROBOT_ERROR":                  false,
			"RobotStatus_Busy":             false,
			"RobotStatus_PickComplete":     false,
			"RobotStatus_PlaceComplete":    false,
			"RobotCtrl_AuthorizeDetection": true,
			"RobotCtrl_CycleStart":         false,
			"RobotCtrl_CycleComplete":      false,
			"RobotCtrl_EmergencyStop":      false,
			"RobotCtrl_SystemMode":         1,
			"SystemStatus_Heartbeat":       true,
			"SystemStatus_Mode":            1,
			"Safety_GateClosed":            true,
			"Safety_AreaClear":             true,
			"Safety_LightCurtainOK":        true,
			"Safety_EmergencyStop":         true,
			"PRODUCT_DETECTED":             false,
			"VisionCtrl_EchoAck":           false,
			"VisionCtrl_DataSent":          false,
			"VisionCtrl_ReadyForNext":      false,
		},
		delays: delays,
		logger: logger.With("component", "SimulatedDevice"),
	}
}

// Connect always succeeds. The simulator needs no session.
func (s *SimulatedDevice) Connect(_ context.Context, _ string) error {
	return nil
}

// ReadVariable returns the current value of a device tag. Unknown tags
// read as false, matching an unprogrammed PLC address.
func (s *SimulatedDevice) ReadVariable(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.tags[name]
	if !ok {
		return false, nil
	}
	return value, nil
}

// WriteVariable stores the value and fires the robot's reactive rules.
func (s *SimulatedDevice) WriteVariable(name string, value any) error {
	s.mu.Lock()
	s.tags[name] = value
	s.mu.Unlock()

	if isTrue(value) {
		s.react(name)
	}
	return nil
}

// Close cancels all pending motion timers.
func (s *SimulatedDevice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	return nil
}

// react emulates the robot's response to a handshake trigger.
func (s *SimulatedDevice) react(name string) {
	switch name {
	case "PRODUCT_DETECTED":
		s.logger.Debug("product detected, robot will acknowledge",
			"delay", s.delays.Ack)
		s.after(s.delays.Ack, func() {
			s.set("ROBOT_ACK", true)
			s.set("RobotStatus_Busy", true)
		})

	case "VisionCtrl_EchoAck":
		s.logger.Debug("echo acknowledged, robot starts pick sequence",
			"pick_delay", s.delays.Pick)
		s.after(s.delays.Pick, func() {
			s.set("RobotStatus_PickComplete", true)
			s.after(s.delays.Place, func() {
				s.set("RobotStatus_PlaceComplete", true)
				s.set("RobotStatus_Busy", false)
				s.after(s.delays.CycleEnd, func() {
					s.set("RobotCtrl_CycleStart", true)
				})
			})
		})

	case "VisionCtrl_ReadyForNext":
		s.logger.Debug("ready for next cycle, resetting handshake flags")
		s.mu.Lock()
		for _, flag := range []string{
			"ROBOT_ACK",
			"RobotStatus_Busy",
			"RobotStatus_PickComplete",
			"RobotStatus_PlaceComplete",
			"RobotCtrl_CycleStart",
			"PRODUCT_DETECTED",
			"VisionCtrl_EchoAck",
			"VisionCtrl_DataSent",
			"VisionCtrl_ReadyForNext",
		} {
			s.tags[flag] = false
		}
		s.mu.Unlock()
	}
}

// after schedules a deferred self-mutation, tracked so Close can cancel it.
func (s *SimulatedDevice) after(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.timers = append(s.timers, time.AfterFunc(d, fn))
}

// set writes a tag from a deferred timer.
func (s *SimulatedDevice) set(name string, value any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.tags[name] = value
	s.mu.Unlock()
}

func isTrue(value any) bool {
	b, ok := value.(bool)
	return ok && b
}
