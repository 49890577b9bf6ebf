// Package control implements the pick-and-place handshake state machine
// that coordinates the vision system, the PLC and the robot. A periodic
// tick drives per-state handlers; detection events are pushed in by the
// inference pipeline and notifications flow out to the UI and telemetry.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/config"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/errors"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/metric"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/notify"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/plcclient"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/tagmap"
)

// Cycle modes.
const (
	ModeManual     = "manual"
	ModeContinuous = "continuous"
)

// Dwell times before leaving the recovery states.
const (
	defaultErrorDwell   = 5 * time.Second
	defaultTimeoutDwell = 1 * time.Second
)

// Cycle step descriptions, in the order a successful cycle records them.
const (
	stepDetection     = "detection received"
	stepDataSent      = "detection data sent"
	stepAck           = "robot acknowledged"
	stepPickComplete  = "pick complete"
	stepPlaceComplete = "place complete"
	stepCycleComplete = "cycle complete"
)

// Controller drives the handshake state machine on top of the PLC client.
// All state is private and mutated under one mutex; tag I/O runs outside
// the lock so a slow device never blocks state queries.
type Controller struct {
	mu sync.Mutex

	client  *plcclient.Client
	cfg     *config.SafeConfig
	logger  *slog.Logger
	metrics *metric.Metrics
	bus     *notify.Bus

	state        State
	prevState    State
	stateEntered time.Time
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}

	tickBusy atomic.Bool

	cycleMode      string
	sendAuthorized bool
	nextAuthorized bool

	detection  *DetectionEvent
	cycleCount int
	cycleStart time.Time
	steps      []CycleStepRecord
	lastError  string

	history *CycleHistory

	// Bus publications queued under mu, delivered by unlockAndPublish.
	pendingEvents []func()

	ackTimeout   time.Duration
	pickTimeout  time.Duration
	placeTimeout time.Duration
	pollInterval time.Duration
	errorDwell   time.Duration
	timeoutDwell time.Duration
}

// ControllerOption configures optional Controller behavior.
type ControllerOption func(*Controller)

// WithControllerLogger sets the structured logger.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger.With("component", "Controller")
		}
	}
}

// WithControllerMetrics attaches the metrics collector.
func WithControllerMetrics(m *metric.Metrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithControllerBus attaches the notification bus.
func WithControllerBus(bus *notify.Bus) ControllerOption {
	return func(c *Controller) {
		c.bus = bus
	}
}

// WithDwellTimes overrides the recovery dwell times. Tests compress them.
func WithDwellTimes(errorDwell, timeoutDwell time.Duration) ControllerOption {
	return func(c *Controller) {
		if errorDwell > 0 {
			c.errorDwell = errorDwell
		}
		if timeoutDwell > 0 {
			c.timeoutDwell = timeoutDwell
		}
	}
}

// WithHistoryCapacity sets how many completed cycles are retained.
func WithHistoryCapacity(n int) ControllerOption {
	return func(c *Controller) {
		c.history = NewCycleHistory(n)
	}
}

// NewController creates the state machine. It does not start ticking until
// Start is called.
func NewController(client *plcclient.Client, cfg *config.SafeConfig, opts ...ControllerOption) *Controller {
	control := cfg.Get().Control

	c := &Controller{
		client:       client,
		cfg:          cfg,
		logger:       slog.Default().With("component", "Controller"),
		state:        StateStopped,
		stateEntered: time.Now(),
		cycleMode:    control.CycleMode,
		history:      NewCycleHistory(0),
		ackTimeout:   control.AckTimeout,
		pickTimeout:  control.PickTimeout,
		placeTimeout: control.PlaceTimeout,
		pollInterval: control.PollInterval,
		errorDwell:   defaultErrorDwell,
		timeoutDwell: defaultTimeoutDwell,
	}
	if c.cycleMode == "" {
		c.cycleMode = ModeContinuous
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 100 * time.Millisecond
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the tick loop. Calling Start while running is a no-op
// that preserves state and counters.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Debug("start ignored, already running")
		return nil
	}

	// Pick up handshake deadlines updated since construction.
	control := c.cfg.Get().Control
	if control.AckTimeout > 0 {
		c.ackTimeout = control.AckTimeout
	}
	if control.PickTimeout > 0 {
		c.pickTimeout = control.PickTimeout
	}
	if control.PlaceTimeout > 0 {
		c.placeTimeout = control.PlaceTimeout
	}

	c.running = true
	c.done = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.applyTransitionLocked(StateInitializing)
	c.unlockAndPublish()

	c.logger.Info("controller started", "mode", c.CycleMode(),
		"poll_interval", c.pollInterval)
	go c.run(ctx)
	return nil
}

// Stop cancels the tick loop, waits for any in-flight tick and forces the
// machine to stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done

	// Wait out a tick handler that was already dispatched.
	for !c.tickBusy.CompareAndSwap(false, true) {
		time.Sleep(time.Millisecond)
	}
	c.tickBusy.Store(false)

	c.mu.Lock()
	c.applyTransitionLocked(StateStopped)
	c.unlockAndPublish()
	c.logger.Info("controller stopped")
}

// Reset clears the transient cycle state. A running machine re-enters
// initializing; a stopped one stays stopped. The cycle counter and history
// survive a reset.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.detection = nil
	c.steps = nil
	c.lastError = ""
	c.sendAuthorized = false
	c.nextAuthorized = false
	running := c.running
	if running {
		c.forceTransitionLocked(StateInitializing)
	}
	c.unlockAndPublish()

	c.logger.Info("controller reset", "running", running)
}

// ProcessDetection delivers an inference result. It only has effect while
// the machine is detecting; otherwise the event is dropped. A newer event
// replaces an unconsumed one.
func (c *Controller) ProcessDetection(ev DetectionEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	c.mu.Lock()
	if c.state != StateDetecting {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("detection dropped, not detecting",
			"state", state.String(), "detected", ev.Detected)
		return
	}

	c.detection = &ev
	if !ev.Detected {
		c.mu.Unlock()
		return
	}

	c.sendAuthorized = false
	c.cycleStart = time.Now()
	c.recordStepLocked(stepDetection)

	target := StateSendingData
	if c.cycleMode == ModeManual {
		target = StateWaitingSendAuthorization
	}
	c.applyTransitionLocked(target)
	c.unlockAndPublish()

	c.logger.Info("detection accepted", "class", ev.ClassName,
		"confidence", ev.Confidence, "count", ev.DetectionCount)
}

// AuthorizeSendToPLC releases a detection held in manual mode.
func (c *Controller) AuthorizeSendToPLC() {
	c.mu.Lock()
	c.sendAuthorized = true
	c.mu.Unlock()
	c.logger.Info("send to PLC authorized")
}

// AuthorizeNextCycle releases the next cycle in manual mode.
func (c *Controller) AuthorizeNextCycle() {
	c.mu.Lock()
	c.nextAuthorized = true
	c.mu.Unlock()
	c.logger.Info("next cycle authorized")
}

// SetCycleMode switches between manual and continuous operation at runtime.
func (c *Controller) SetCycleMode(mode string) error {
	if mode != ModeManual && mode != ModeContinuous {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Controller", "SetCycleMode", "mode must be manual or continuous")
	}

	c.mu.Lock()
	c.cycleMode = mode
	c.mu.Unlock()
	c.logger.Info("cycle mode changed", "mode", mode)
	return nil
}

// CycleMode returns the current cycle mode.
func (c *Controller) CycleMode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycleMode
}

// ControllerStatus is a point-in-time snapshot for the UI and health
// reporting.
type ControllerStatus struct {
	State        string        `json:"state"`
	PrevState    string        `json:"prev_state"`
	Running      bool          `json:"running"`
	CycleMode    string        `json:"cycle_mode"`
	CycleCount   int           `json:"cycle_count"`
	LastError    string        `json:"last_error,omitempty"`
	StateEntered time.Time     `json:"state_entered"`
	Dwell        time.Duration `json:"dwell"`
	HasDetection bool          `json:"has_detection"`
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() ControllerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ControllerStatus{
		State:        c.state.String(),
		PrevState:    c.prevState.String(),
		Running:      c.running,
		CycleMode:    c.cycleMode,
		CycleCount:   c.cycleCount,
		LastError:    c.lastError,
		StateEntered: c.stateEntered,
		Dwell:        time.Since(c.stateEntered),
		HasDetection: c.detection != nil,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CycleCount returns the number of completed cycles.
func (c *Controller) CycleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycleCount
}

// History exposes the completed-cycle records.
func (c *Controller) History() *CycleHistory {
	return c.history
}

// run is the tick loop. Ticks are skipped, never queued, while the previous
// handler is still in flight.
func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.tickBusy.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer c.tickBusy.Store(false)
				c.tick()
			}()
		}
	}
}

// tick dispatches the handler for the current state. Any handler failure
// forces the machine into the error state instead of crashing the line.
func (c *Controller) tick() {
	defer func() {
		if r := recover(); r != nil {
			c.fail(fmt.Sprintf("handler panic: %v", r))
		}
	}()

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	state := c.state
	entered := c.stateEntered
	c.mu.Unlock()

	var err error
	switch state {
	case StateInitializing:
		err = c.handleInitializing()
	case StateWaitingAuthorization:
		err = c.handleWaitingAuthorization()
	case StateDetecting:
		// Externally driven by ProcessDetection.
	case StateWaitingSendAuthorization:
		c.handleWaitingSendAuthorization()
	case StateSendingData:
		err = c.handleSendingData()
	case StateWaitingAck:
		err = c.handleWaitingAck(entered)
	case StateAckConfirmed:
		err = c.handleAckConfirmed()
	case StateWaitingPick:
		err = c.handleWaitingPick(entered)
	case StateWaitingPlace:
		err = c.handleWaitingPlace(entered)
	case StateWaitingCycleStart:
		err = c.handleWaitingCycleStart()
	case StateReadyForNext:
		c.handleReadyForNext()
	case StateError:
		c.handleErrorDwell(entered)
	case StateTimeout:
		c.handleTimeoutDwell(entered)
	case StateSafetyBlocked:
		c.handleSafetyBlocked()
	}

	if err != nil {
		c.fail(err.Error())
	}
}

func (c *Controller) handleInitializing() error {
	if !c.client.IsConnected() {
		c.logger.Debug("waiting for PLC connection")
		return nil
	}
	if err := c.client.SetVisionReady(true); err != nil {
		return errors.Wrap(err, "Controller", "handleInitializing",
			"announce vision ready")
	}
	c.transition(StateWaitingAuthorization)
	return nil
}

func (c *Controller) handleWaitingAuthorization() error {
	if !c.client.IsConnected() {
		c.transition(StateInitializing)
		return nil
	}
	if !c.checkSafety() {
		c.transition(StateSafetyBlocked)
		return nil
	}

	authorized, err := c.client.ReadBool(tagmap.TagPlcAuthorizeDetection)
	if err != nil {
		c.logger.Warn("authorization read failed", "error", err)
		return nil
	}
	if authorized {
		c.transition(StateDetecting)
	}
	return nil
}

func (c *Controller) handleWaitingSendAuthorization() {
	c.mu.Lock()
	authorized := c.sendAuthorized
	if authorized {
		c.sendAuthorized = false
		c.applyTransitionLocked(StateSendingData)
	}
	c.unlockAndPublish()
}

func (c *Controller) handleSendingData() error {
	if !c.client.IsConnected() {
		return errors.WrapTransient(errors.ErrConnectionLost,
			"Controller", "handleSendingData", "check connection")
	}

	c.mu.Lock()
	ev := c.detection
	c.mu.Unlock()
	if ev == nil {
		return fmt.Errorf("sending data with no detection")
	}

	err := c.client.WriteDetectionResult(ev.Detected,
		ev.CentroidX, ev.CentroidY, ev.Confidence,
		ev.DetectionCount, ev.InferenceTimeMS)
	if err != nil {
		return errors.Wrap(err, "Controller", "handleSendingData",
			"write detection payload")
	}

	c.recordStep(stepDataSent)
	if c.bus != nil {
		c.bus.DetectionSent(*ev)
	}
	c.transition(StateWaitingAck)
	return nil
}

func (c *Controller) handleWaitingAck(entered time.Time) error {
	ack, err := c.client.ReadRobotAck()
	if err == nil && ack {
		c.recordStep(stepAck)
		c.transition(StateAckConfirmed)
		return nil
	}
	if err != nil {
		c.logger.Warn("robot ack read failed", "error", err)
	}

	if time.Since(entered) > c.ackTimeout {
		c.timeoutCycle(errors.ErrAckTimeout.Error())
	}
	return nil
}

func (c *Controller) handleAckConfirmed() error {
	if err := c.client.SetVisionEchoAck(true); err != nil {
		return errors.Wrap(err, "Controller", "handleAckConfirmed",
			"echo acknowledge")
	}
	c.transition(StateWaitingPick)
	return nil
}

func (c *Controller) handleWaitingPick(entered time.Time) error {
	done, err := c.client.ReadBool(tagmap.TagRobotPickComplete)
	if err == nil && done {
		c.recordStep(stepPickComplete)
		c.transition(StateWaitingPlace)
		return nil
	}
	if err != nil {
		c.logger.Warn("pick status read failed", "error", err)
	}

	if time.Since(entered) > c.pickTimeout {
		c.timeoutCycle(errors.ErrPickTimeout.Error())
	}
	return nil
}

func (c *Controller) handleWaitingPlace(entered time.Time) error {
	done, err := c.client.ReadBool(tagmap.TagRobotPlaceComplete)
	if err == nil && done {
		c.recordStep(stepPlaceComplete)
		c.transition(StateWaitingCycleStart)
		return nil
	}
	if err != nil {
		c.logger.Warn("place status read failed", "error", err)
	}

	if time.Since(entered) > c.placeTimeout {
		c.timeoutCycle(errors.ErrPlaceTimeout.Error())
	}
	return nil
}

func (c *Controller) handleWaitingCycleStart() error {
	start, err := c.client.ReadBool(tagmap.TagPlcCycleStart)
	if err != nil {
		c.logger.Warn("cycle start read failed", "error", err)
		return nil
	}
	if !start {
		return nil
	}
	c.completeCycle()
	return nil
}

// completeCycle closes the books on a successful cycle and hands the flags
// back to the PLC.
func (c *Controller) completeCycle() {
	c.mu.Lock()
	c.cycleCount++
	number := c.cycleCount
	c.recordStepLocked(stepCycleComplete)
	steps := c.steps
	start := c.cycleStart
	detection := c.detection
	c.steps = nil
	c.detection = nil
	c.sendAuthorized = false
	c.unlockAndPublish()

	end := time.Now()
	duration := end.Sub(start)
	c.logger.Info("cycle completed", "cycle", number, "duration", duration)

	if c.metrics != nil {
		c.metrics.RecordCycle(duration)
	}
	if c.bus != nil {
		c.bus.CycleCompleted(number)
		descriptions := make([]string, len(steps))
		for i, s := range steps {
			descriptions[i] = s.Description
		}
		c.bus.CycleSummary(descriptions)
	}
	c.history.Record(CycleRecord{
		Number:    number,
		Start:     start,
		End:       end,
		Duration:  duration,
		Success:   true,
		Detection: detection,
		Steps:     steps,
	})

	// Hand the handshake flags back. On the real cell the PLC resets them;
	// failures here must not fail an already completed cycle.
	if err := c.client.SetVisionEchoAck(false); err != nil {
		c.logger.Warn("echo ack reset failed", "error", err)
	}
	if err := c.client.SetReadyForNext(true); err != nil {
		c.logger.Warn("ready-for-next failed", "error", err)
	}

	c.transition(StateReadyForNext)
}

func (c *Controller) handleReadyForNext() {
	c.mu.Lock()
	advance := c.cycleMode == ModeContinuous || c.nextAuthorized
	if advance {
		c.nextAuthorized = false
		c.applyTransitionLocked(StateWaitingAuthorization)
	}
	c.unlockAndPublish()
}

func (c *Controller) handleErrorDwell(entered time.Time) {
	if time.Since(entered) > c.errorDwell {
		c.transition(StateInitializing)
	}
}

func (c *Controller) handleTimeoutDwell(entered time.Time) {
	if time.Since(entered) > c.timeoutDwell {
		c.transition(StateWaitingAuthorization)
	}
}

func (c *Controller) handleSafetyBlocked() {
	if c.checkSafety() {
		c.logger.Info("safety restored")
		c.transition(StateWaitingAuthorization)
	}
}

// checkSafety reads the emergency stop. A failed read is treated as safe
// so a flaky tag cannot halt the line; the real safety circuit is hardwired
// and does not depend on this check.
func (c *Controller) checkSafety() bool {
	stop, err := c.client.ReadBool(tagmap.TagPlcEmergencyStop)
	if err != nil {
		c.logger.Warn("safety read failed, assuming safe", "error", err)
		return true
	}
	if stop {
		c.logger.Warn("emergency stop active")
		return false
	}
	return true
}

// timeoutCycle abandons the current handshake and enters the timeout state.
func (c *Controller) timeoutCycle(reason string) {
	c.mu.Lock()
	c.lastError = reason
	c.abortCycleLocked(reason)
	c.applyTransitionLocked(StateTimeout)
	c.unlockAndPublish()

	c.logger.Error("handshake timed out", "reason", reason)
	if c.bus != nil {
		c.bus.ErrorOccurred(reason)
	}
}

// fail records a handler failure and forces the error state.
func (c *Controller) fail(message string) {
	c.mu.Lock()
	c.lastError = message
	c.abortCycleLocked(message)
	c.forceTransitionLocked(StateError)
	c.unlockAndPublish()

	c.logger.Error("handler failed", "error", message)
	if c.metrics != nil {
		c.metrics.ControllerErrors.Inc()
	}
	if c.bus != nil {
		c.bus.ErrorOccurred(message)
	}
}

// abortCycleLocked records an in-flight cycle as failed and clears it.
func (c *Controller) abortCycleLocked(reason string) {
	if len(c.steps) == 0 && c.detection == nil {
		return
	}
	end := time.Now()
	rec := CycleRecord{
		Number:    c.cycleCount + 1,
		Start:     c.cycleStart,
		End:       end,
		Success:   false,
		Detection: c.detection,
		Steps:     c.steps,
		Failure:   reason,
	}
	if !c.cycleStart.IsZero() {
		rec.Duration = end.Sub(c.cycleStart)
	}
	c.history.Record(rec)
	c.steps = nil
	c.detection = nil
}

// queueEventLocked defers a bus publication until the mutex is released.
// Publishing under the lock would deadlock a subscriber that calls back
// into the controller.
func (c *Controller) queueEventLocked(publish func()) {
	if c.bus == nil {
		return
	}
	c.pendingEvents = append(c.pendingEvents, publish)
}

// unlockAndPublish releases the mutex and delivers queued events in
// emission order.
func (c *Controller) unlockAndPublish() {
	events := c.pendingEvents
	c.pendingEvents = nil
	c.mu.Unlock()
	for _, publish := range events {
		publish()
	}
}

// transition requests a state change, honoring the adjacency table.
func (c *Controller) transition(to State) {
	c.mu.Lock()
	c.applyTransitionLocked(to)
	c.unlockAndPublish()
}

// applyTransitionLocked performs a table-checked transition. Invalid
// requests are rejected and logged; self-transitions are silent no-ops.
func (c *Controller) applyTransitionLocked(to State) {
	if to == c.state {
		return
	}
	if !CanTransition(c.state, to) {
		c.logger.Warn("transition rejected",
			"from", c.state.String(), "to", to.String())
		return
	}
	c.forceTransitionLocked(to)
}

// forceTransitionLocked changes state unconditionally. Used for the
// always-legal error transition.
func (c *Controller) forceTransitionLocked(to State) {
	if to == c.state {
		return
	}
	from := c.state
	c.prevState = from
	c.state = to
	c.stateEntered = time.Now()

	c.logger.Info("state changed", "from", from.String(), "to", to.String())
	if c.metrics != nil {
		c.metrics.RecordTransition(from.String(), to.String(), int(to))
	}
	state := to.String()
	c.queueEventLocked(func() { c.bus.StateChanged(state) })
}

// recordStep appends a step to the current cycle and announces it.
func (c *Controller) recordStep(description string) {
	c.mu.Lock()
	c.recordStepLocked(description)
	c.unlockAndPublish()
}

func (c *Controller) recordStepLocked(description string) {
	c.steps = append(c.steps, CycleStepRecord{
		Description: description,
		Timestamp:   time.Now(),
		State:       c.state.String(),
	})
	c.queueEventLocked(func() { c.bus.CycleStep(description) })
}
