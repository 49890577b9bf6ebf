// Package plcclient implements the whitelisted, retrying tag client that
// connects the vision system to the PLC/robot cell. It owns the connection
// lifecycle (connect with simulated fallback, heartbeat, degraded-mode
// reconnection) and all tag I/O. Logical tag names are validated and
// translated through the tagmap whitelist before any operation reaches the
// device.
package plcclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/config"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/errors"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/metric"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/notify"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/pkg/retry"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/tagmap"
)

// defaultErrorThreshold is the consecutive-error count above which a
// connected client is considered degraded.
const defaultErrorThreshold = 5

// Client manages the session with the PLC and performs whitelisted tag I/O
// with retry. Connection failure is never fatal: when the real driver cannot
// be reached the client falls back to an in-memory SimulatedDevice so the
// rest of the system keeps operating.
type Client struct {
	mu sync.Mutex

	cfg    *config.SafeConfig
	tags   *tagmap.Map
	driver Driver // real protocol driver, may be nil

	active Driver           // current I/O target (driver or simulator)
	state  ConnectionState  // mutated only under mu
	plc    config.PLCConfig // snapshot taken on connect

	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer

	simDelays         SimDelays
	errorThreshold    int
	heartbeatOverride time.Duration

	onConnect     func(simulated bool)
	onDisconnect  func()
	onStateChange func(ConnectionState)
	stateChanges  chan ConnectionState

	logger  *slog.Logger
	metrics *metric.Metrics
	bus     *notify.Bus
}

// NewClient creates a tag client. driver may be nil, in which case every
// connect goes straight to the simulator.
func NewClient(cfg *config.SafeConfig, tags *tagmap.Map, driver Driver, opts ...Option) *Client {
	current := cfg.Get()
	c := &Client{
		cfg:    cfg,
		tags:   tags,
		driver: driver,
		state: ConnectionState{
			Status: StatusDisconnected,
			IP:     current.PLC.IP,
			Port:   current.PLC.Port,
		},
		plc:            current.PLC,
		simDelays:      DefaultSimDelays(),
		errorThreshold: defaultErrorThreshold,
		logger:         slog.Default().With("component", "Client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.onStateChange != nil {
		// One dispatcher goroutine preserves the order status changes
		// are observed in.
		c.stateChanges = make(chan ConnectionState, 32)
		go func() {
			for snapshot := range c.stateChanges {
				c.onStateChange(snapshot)
			}
		}()
	}
	return c
}

// Connect establishes the device session. It is idempotent and never fails:
// configuration is re-read so a changed endpoint takes effect, the real
// driver is dialed with backoff within the connection timeout, and any
// failure falls back to the simulator. The dial runs outside the mutex so
// state queries and tag I/O stay responsive while it is in flight.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state.IsConnected() {
		c.mu.Unlock()
		return nil
	}

	current := c.cfg.Get()
	c.plc = current.PLC
	c.state.IP = c.plc.IP
	c.state.Port = c.plc.Port
	c.setStatusLocked(StatusConnecting)
	plc := c.plc
	driver := c.driver
	c.mu.Unlock()

	if !plc.Simulated && driver != nil {
		addr := net.JoinHostPort(plc.IP, strconv.Itoa(plc.Port))
		c.logger.Info("connecting to PLC", "addr", addr,
			"timeout", plc.ConnectionTimeout)

		dctx, cancel := context.WithTimeout(ctx, plc.ConnectionTimeout)
		err := retry.Do(dctx, retry.Connect(), func() error {
			return driver.Connect(dctx, addr)
		})
		cancel()

		if err == nil {
			c.mu.Lock()
			if c.state.Status != StatusConnecting {
				// Disconnect raced the dial; leave the session alone.
				c.mu.Unlock()
				return nil
			}
			c.active = driver
			c.state.Simulated = false
			c.state.LastConnected = time.Now()
			c.state.LastError = ""
			c.state.ErrorCount = 0
			c.state.ReconnectAttempts = 0
			c.setStatusLocked(StatusConnected)
			c.startHeartbeatLocked()
			c.mu.Unlock()

			c.logger.Info("connected to PLC", "addr", addr)
			if c.bus != nil {
				c.bus.Connected(false)
			}
			if c.onConnect != nil {
				c.onConnect(false)
			}
			return nil
		}

		c.mu.Lock()
		c.state.LastError = err.Error()
		c.mu.Unlock()
		c.logger.Warn("PLC connection failed, falling back to simulation",
			"addr", addr, "error", err)
	}

	c.mu.Lock()
	if c.state.Status != StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	c.connectSimulatedLocked()
	c.mu.Unlock()

	c.logger.Info("running in simulated mode")
	if c.bus != nil {
		c.bus.Connected(true)
	}
	if c.onConnect != nil {
		c.onConnect(true)
	}
	return nil
}

// connectSimulatedLocked swaps in a fresh SimulatedDevice as the I/O target.
func (c *Client) connectSimulatedLocked() {
	c.active = NewSimulatedDevice(c.simDelays, c.logger)
	c.state.Simulated = true
	c.state.LastConnected = time.Now()
	c.state.ErrorCount = 0
	c.setStatusLocked(StatusSimulated)
	c.startHeartbeatLocked()
}

// Disconnect stops the heartbeat and any pending reconnect, closes the
// device session best-effort and marks the client disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()

	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	dev := c.active
	c.active = nil
	c.state.Simulated = false
	c.setStatusLocked(StatusDisconnected)
	c.mu.Unlock()

	if dev != nil {
		if err := closeDriver(dev); err != nil {
			c.logger.Warn("device close failed", "error", err)
		}
	}

	c.logger.Info("disconnected")
	if c.bus != nil {
		c.bus.Disconnected()
	}
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

// State returns a snapshot of the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current link status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status
}

// IsConnected reports whether tag I/O is currently possible.
func (c *Client) IsConnected() bool {
	return c.State().IsConnected()
}

// IsHealthy reports whether the real session is up and error-free.
func (c *Client) IsHealthy() bool {
	return c.State().IsHealthy()
}

// ReadTag reads a whitelisted logical tag with retry. Validation failures
// never reach the device.
func (c *Client) ReadTag(logical string) (any, error) {
	if !c.tags.IsValid(logical) {
		return nil, errors.WrapInvalid(errors.ErrTagNotAllowed,
			"Client", "ReadTag", "validate "+logical)
	}
	if !c.tags.IsReadable(logical) {
		return nil, errors.WrapInvalid(errors.ErrTagNotReadable,
			"Client", "ReadTag", "validate "+logical)
	}

	dev, attempts, err := c.ioTarget("ReadTag")
	if err != nil {
		return nil, err
	}
	deviceName := c.tags.DeviceName(logical)

	start := time.Now()
	value, rerr := retry.DoWithResult(context.Background(), retry.FieldIO(attempts),
		func() (any, error) {
			return dev.ReadVariable(deviceName)
		})
	if c.metrics != nil {
		c.metrics.RecordTagRead(logical, rerr == nil, time.Since(start))
	}

	if rerr != nil {
		c.handleIOError(logical, rerr)
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %s", errors.ErrTagIOFailed, rerr),
			"Client", "ReadTag", "read "+logical)
	}

	if c.bus != nil {
		c.bus.TagRead(logical, value)
	}
	return value, nil
}

// WriteTag writes a whitelisted logical tag with retry. The value is
// type-checked against the tag definition before any device I/O.
func (c *Client) WriteTag(logical string, value any) error {
	if !c.tags.IsValid(logical) {
		return errors.WrapInvalid(errors.ErrTagNotAllowed,
			"Client", "WriteTag", "validate "+logical)
	}
	if !c.tags.IsWritable(logical) {
		return errors.WrapInvalid(errors.ErrTagNotWritable,
			"Client", "WriteTag", "validate "+logical)
	}
	if !c.tags.ValidateValue(logical, value) {
		return errors.WrapInvalid(errors.ErrTagValueType,
			"Client", "WriteTag", "validate "+logical)
	}

	dev, attempts, err := c.ioTarget("WriteTag")
	if err != nil {
		return err
	}
	deviceName := c.tags.DeviceName(logical)

	start := time.Now()
	werr := retry.Do(context.Background(), retry.FieldIO(attempts), func() error {
		return dev.WriteVariable(deviceName, value)
	})
	if c.metrics != nil {
		c.metrics.RecordTagWrite(logical, werr == nil, time.Since(start))
	}

	if werr != nil {
		c.handleIOError(logical, werr)
		return errors.WrapTransient(
			fmt.Errorf("%w: %s", errors.ErrTagIOFailed, werr),
			"Client", "WriteTag", "write "+logical)
	}

	if c.bus != nil {
		c.bus.TagWritten(logical, value)
	}
	return nil
}

// ioTarget returns the current device and retry attempt count, or an error
// when not connected.
func (c *Client) ioTarget(method string) (Driver, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsConnected() || c.active == nil {
		return nil, 0, errors.WrapTransient(errors.ErrNotConnected,
			"Client", method, "check connection")
	}
	return c.active, 1 + c.plc.IORetries, nil
}

// handleIOError records a failed tag operation and, past the error
// threshold, degrades the connection and schedules a reconnect.
func (c *Client) handleIOError(logical string, err error) {
	if c.metrics != nil {
		c.metrics.ConnectionErrors.Inc()
	}

	c.mu.Lock()
	c.state.ErrorCount++
	c.state.LastError = err.Error()
	count := c.state.ErrorCount

	degraded := false
	if count > c.errorThreshold && c.state.Status == StatusConnected {
		c.setStatusLocked(StatusDegraded)
		degraded = true
		if c.plc.AutoReconnect {
			c.scheduleReconnectLocked()
		}
	}
	c.mu.Unlock()

	c.logger.Error("tag operation failed", "tag", logical,
		"error", err, "error_count", count)
	if degraded && c.bus != nil {
		c.bus.ConnectionError(fmt.Sprintf(
			"connection degraded after %d errors: %v", count, err))
	}
}

// scheduleReconnectLocked arms the reconnect timer unless one is already
// pending or the attempt budget is spent.
func (c *Client) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		return
	}
	if c.plc.MaxRetries > 0 && c.state.ReconnectAttempts >= c.plc.MaxRetries {
		c.logger.Error("reconnect abandoned, max retries exhausted",
			"attempts", c.state.ReconnectAttempts)
		return
	}

	delay := c.plc.RetryInterval
	if delay <= 0 {
		delay = 2 * time.Second
	}
	c.logger.Warn("scheduling reconnect", "delay", delay,
		"attempt", c.state.ReconnectAttempts+1)
	c.reconnectTimer = time.AfterFunc(delay, c.reconnect)
}

// reconnect tears the session down and re-establishes it. Runs on the
// reconnect timer goroutine.
func (c *Client) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	c.state.ReconnectAttempts++
	attempt := c.state.ReconnectAttempts
	c.mu.Unlock()

	c.logger.Info("reconnecting", "attempt", attempt)
	c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		c.logger.Error("reconnect failed", "attempt", attempt, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.Reconnects.Inc()
	}
}

// setStatusLocked updates the status field and the connection gauge.
func (c *Client) setStatusLocked(s Status) {
	if c.state.Status == s {
		return
	}
	c.logger.Debug("connection status changed",
		"from", c.state.Status.String(), "to", s.String())
	c.state.Status = s
	if c.metrics != nil {
		c.metrics.RecordConnectionStatus(int(s))
	}
	if c.stateChanges != nil {
		select {
		case c.stateChanges <- c.state:
		default:
			c.logger.Warn("state change notification dropped",
				"status", s.String())
		}
	}
}

// startHeartbeatLocked launches the liveness heartbeat goroutine.
func (c *Client) startHeartbeatLocked() {
	if c.heartbeatStop != nil {
		return
	}
	interval := c.plc.HeartbeatInterval
	if c.heartbeatOverride > 0 {
		interval = c.heartbeatOverride
	}
	if interval <= 0 {
		interval = time.Second
	}
	stop := make(chan struct{})
	c.heartbeatStop = stop
	go c.heartbeatLoop(interval, stop)
}

// heartbeatLoop toggles the heartbeat tag so the PLC can detect a stalled
// vision system. Write failures feed the normal error handling.
func (c *Client) heartbeatLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	value := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			value = !value
			if err := c.WriteTag(tagmap.TagVisionHeartbeat, value); err != nil {
				c.logger.Debug("heartbeat write failed", "error", err)
				continue
			}
			if c.metrics != nil {
				c.metrics.HeartbeatsWritten.Inc()
			}
		}
	}
}
