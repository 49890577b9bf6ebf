package control

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/config"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/notify"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/plcclient"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/tagmap"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubDriver is a controllable fake for the real-driver path. Unlike the
// simulator it never reacts on its own, which lets tests hold the machine
// in a state indefinitely.
type stubDriver struct {
	mu         sync.Mutex
	vars       map[string]any
	failWrites bool
}

func newStubDriver() *stubDriver {
	return &stubDriver{
		vars: map[string]any{
			"RobotCtrl_AuthorizeDetection": true,
			"RobotCtrl_EmergencyStop":      false,
		},
	}
}

func (d *stubDriver) Connect(_ context.Context, _ string) error { return nil }

func (d *stubDriver) ReadVariable(name string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.vars[name]; ok {
		return v, nil
	}
	return false, nil
}

func (d *stubDriver) WriteVariable(name string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWrites {
		return assert.AnError
	}
	d.vars[name] = value
	return nil
}

func (d *stubDriver) set(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vars[name] = value
}

func (d *stubDriver) setFailWrites(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrites = fail
}

func fastSimDelays() plcclient.SimDelays {
	return plcclient.SimDelays{
		Ack:      30 * time.Millisecond,
		Pick:     40 * time.Millisecond,
		Place:    40 * time.Millisecond,
		CycleEnd: 20 * time.Millisecond,
	}
}

func testControlConfig(mutate func(*config.Config)) *config.SafeConfig {
	cfg := config.Default()
	cfg.PLC.Simulated = true
	cfg.PLC.HeartbeatInterval = time.Hour
	cfg.PLC.AutoReconnect = false
	cfg.Control.PollInterval = 5 * time.Millisecond
	cfg.Control.AckTimeout = time.Second
	cfg.Control.PickTimeout = 2 * time.Second
	cfg.Control.PlaceTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	return config.NewSafeConfig(cfg)
}

// eventCollector records bus events by type for later assertions.
type eventCollector struct {
	mu     sync.Mutex
	events []notify.Event
}

func (ec *eventCollector) handle(ev notify.Event) {
	ec.mu.Lock()
	ec.events = append(ec.events, ev)
	ec.mu.Unlock()
}

func (ec *eventCollector) ofType(t notify.Type) []notify.Event {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	var out []notify.Event
	for _, ev := range ec.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newRunningController(t *testing.T, safe *config.SafeConfig, driver plcclient.Driver, opts ...ControllerOption) (*Controller, *eventCollector) {
	t.Helper()

	collector := &eventCollector{}
	bus := notify.NewBus()
	bus.Subscribe(collector.handle)

	client := plcclient.NewClient(safe, tagmap.New(nil), driver,
		plcclient.WithSimDelays(fastSimDelays()),
		plcclient.WithErrorThreshold(1000),
		plcclient.WithLogger(testLogger()))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Disconnect)

	opts = append(opts,
		WithControllerLogger(testLogger()),
		WithControllerBus(bus),
		WithDwellTimes(50*time.Millisecond, 50*time.Millisecond))
	ctrl := NewController(client, safe, opts...)
	require.NoError(t, ctrl.Start())
	t.Cleanup(ctrl.Stop)

	return ctrl, collector
}

func waitForState(t *testing.T, ctrl *Controller, want State) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return ctrl.State() == want
	}, 3*time.Second, 5*time.Millisecond, "waiting for state %s, at %s",
		want, ctrl.State())
}

func TestControllerFullCycleContinuous(t *testing.T) {
	ctrl, collector := newRunningController(t, testControlConfig(nil), nil)

	waitForState(t, ctrl, StateDetecting)
	ctrl.ProcessDetection(DetectionEvent{
		Detected:        true,
		ClassName:       "towel",
		Confidence:      0.9,
		CentroidX:       10,
		CentroidY:       20,
		DetectionCount:  1,
		InferenceTimeMS: 12.5,
	})

	assert.Eventually(t, func() bool {
		return ctrl.CycleCount() == 1
	}, 3*time.Second, 5*time.Millisecond)

	// No second detection was fed, so the counter must stay at one.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, ctrl.CycleCount())

	steps := collector.ofType(notify.TypeCycleStep)
	require.Len(t, steps, 6)
	want := []string{
		stepDetection, stepDataSent, stepAck,
		stepPickComplete, stepPlaceComplete, stepCycleComplete,
	}
	for i, step := range steps {
		assert.Equal(t, want[i], step.Step)
	}

	completed := collector.ofType(notify.TypeCycleCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, completed[0].CycleNumber)

	summaries := collector.ofType(notify.TypeCycleSummary)
	require.Len(t, summaries, 1)
	assert.Equal(t, want, summaries[0].Steps)

	require.Equal(t, 1, ctrl.History().Len())
	rec := ctrl.History().Recent(1)[0]
	assert.True(t, rec.Success)
	assert.Equal(t, 1, rec.Number)
	assert.Len(t, rec.Steps, 6)
	require.NotNil(t, rec.Detection)
	assert.Equal(t, "towel", rec.Detection.ClassName)
}

func TestBusSubscriberMayQueryController(t *testing.T) {
	safe := testControlConfig(nil)
	bus := notify.NewBus()

	client := plcclient.NewClient(safe, tagmap.New(nil), nil,
		plcclient.WithSimDelays(fastSimDelays()),
		plcclient.WithLogger(testLogger()))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Disconnect)

	ctrl := NewController(client, safe,
		WithControllerLogger(testLogger()),
		WithControllerBus(bus),
		WithDwellTimes(50*time.Millisecond, 50*time.Millisecond))

	// The UI queries the controller from inside its state_changed handler.
	// Those calls must not block against the controller's own lock.
	var queries atomic.Int64
	bus.Subscribe(func(ev notify.Event) {
		if ev.Type != notify.TypeStateChanged {
			return
		}
		_ = ctrl.Status()
		_ = ctrl.State()
		_ = ctrl.CycleCount()
		queries.Add(1)
	})

	started := make(chan error, 1)
	go func() { started <- ctrl.Start() }()
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start blocked on a bus subscriber")
	}
	t.Cleanup(ctrl.Stop)

	waitForState(t, ctrl, StateDetecting)
	ctrl.ProcessDetection(DetectionEvent{Detected: true, Confidence: 0.9})

	assert.Eventually(t, func() bool {
		return ctrl.CycleCount() == 1
	}, 3*time.Second, 5*time.Millisecond)
	assert.Positive(t, queries.Load())
}

func TestControllerManualModeWaitsForOperator(t *testing.T) {
	safe := testControlConfig(func(cfg *config.Config) {
		cfg.Control.CycleMode = ModeManual
	})
	ctrl, _ := newRunningController(t, safe, nil)

	waitForState(t, ctrl, StateDetecting)
	ctrl.ProcessDetection(DetectionEvent{Detected: true, Confidence: 0.8})

	waitForState(t, ctrl, StateWaitingSendAuthorization)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateWaitingSendAuthorization, ctrl.State(),
		"manual mode must hold until the operator authorizes the send")

	ctrl.AuthorizeSendToPLC()
	waitForState(t, ctrl, StateReadyForNext)
	assert.Equal(t, 1, ctrl.CycleCount())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateReadyForNext, ctrl.State(),
		"manual mode must not auto-advance to the next cycle")

	ctrl.AuthorizeNextCycle()
	assert.Eventually(t, func() bool {
		s := ctrl.State()
		return s == StateWaitingAuthorization || s == StateDetecting
	}, 3*time.Second, 5*time.Millisecond)
}

func TestControllerStartWhileRunningIsNoOp(t *testing.T) {
	ctrl, _ := newRunningController(t, testControlConfig(nil), nil)

	waitForState(t, ctrl, StateDetecting)
	ctrl.ProcessDetection(DetectionEvent{Detected: true, Confidence: 0.9})
	assert.Eventually(t, func() bool {
		return ctrl.CycleCount() == 1
	}, 3*time.Second, 5*time.Millisecond)

	stateBefore := ctrl.State()
	require.NoError(t, ctrl.Start())
	assert.Equal(t, stateBefore, ctrl.State(), "start must not reset state")
	assert.Equal(t, 1, ctrl.CycleCount(), "start must not reset counters")
	assert.True(t, ctrl.Status().Running)
}

func TestControllerAckTimeoutFiresOnce(t *testing.T) {
	driver := newStubDriver() // never acknowledges
	safe := testControlConfig(func(cfg *config.Config) {
		cfg.PLC.Simulated = false
		cfg.Control.AckTimeout = 60 * time.Millisecond
	})
	ctrl, collector := newRunningController(t, safe, driver)

	waitForState(t, ctrl, StateDetecting)
	ctrl.ProcessDetection(DetectionEvent{Detected: true, Confidence: 0.9})

	assert.Eventually(t, func() bool {
		for _, ev := range collector.ofType(notify.TypeStateChanged) {
			if ev.State == StateTimeout.String() {
				return true
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)

	// After the dwell the machine returns to waiting for authorization and
	// must not re-enter timeout without a new cycle.
	time.Sleep(300 * time.Millisecond)
	timeouts := 0
	for _, ev := range collector.ofType(notify.TypeStateChanged) {
		if ev.State == StateTimeout.String() {
			timeouts++
		}
	}
	assert.Equal(t, 1, timeouts, "timeout must fire exactly once")

	rec := ctrl.History().Recent(1)
	require.Len(t, rec, 1)
	assert.False(t, rec[0].Success)
	assert.NotEmpty(t, rec[0].Failure)
}

func TestControllerSafetyBlocked(t *testing.T) {
	driver := newStubDriver()
	driver.set("RobotCtrl_EmergencyStop", true)
	safe := testControlConfig(func(cfg *config.Config) {
		cfg.PLC.Simulated = false
	})
	ctrl, _ := newRunningController(t, safe, driver)

	waitForState(t, ctrl, StateSafetyBlocked)

	driver.set("RobotCtrl_EmergencyStop", false)
	assert.Eventually(t, func() bool {
		s := ctrl.State()
		return s == StateWaitingAuthorization || s == StateDetecting
	}, 3*time.Second, 5*time.Millisecond,
		"machine must resume once safety clears")
}

func TestControllerRecoversFromHandlerFailure(t *testing.T) {
	driver := newStubDriver()
	driver.setFailWrites(true)
	safe := testControlConfig(func(cfg *config.Config) {
		cfg.PLC.Simulated = false
		cfg.PLC.IORetries = 0
	})
	ctrl, collector := newRunningController(t, safe, driver)

	// The vision-ready write in initializing fails and forces the error
	// state instead of crashing the loop.
	waitForState(t, ctrl, StateError)
	assert.NotEmpty(t, ctrl.Status().LastError)
	assert.NotEmpty(t, collector.ofType(notify.TypeErrorOccurred))

	driver.setFailWrites(false)
	waitForState(t, ctrl, StateDetecting)
}

func TestControllerDropsDetectionOutsideDetecting(t *testing.T) {
	ctrl, _ := newRunningController(t, testControlConfig(func(cfg *config.Config) {
		cfg.Control.CycleMode = ModeManual
	}), nil)

	waitForState(t, ctrl, StateDetecting)
	ctrl.ProcessDetection(DetectionEvent{Detected: true, Confidence: 0.9})
	waitForState(t, ctrl, StateWaitingSendAuthorization)

	// Delivered outside detecting: dropped, no state change.
	ctrl.ProcessDetection(DetectionEvent{Detected: true, Confidence: 0.5})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateWaitingSendAuthorization, ctrl.State())
}

func TestControllerIgnoresEmptyDetection(t *testing.T) {
	ctrl, _ := newRunningController(t, testControlConfig(nil), nil)

	waitForState(t, ctrl, StateDetecting)
	ctrl.ProcessDetection(DetectionEvent{Detected: false})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDetecting, ctrl.State(),
		"a no-detection result must not start a cycle")
	assert.Zero(t, ctrl.CycleCount())
}

func TestControllerSetCycleMode(t *testing.T) {
	ctrl := NewController(nil, testControlConfig(nil),
		WithControllerLogger(testLogger()))

	assert.Error(t, ctrl.SetCycleMode("turbo"))
	assert.Equal(t, ModeContinuous, ctrl.CycleMode())

	require.NoError(t, ctrl.SetCycleMode(ModeManual))
	assert.Equal(t, ModeManual, ctrl.CycleMode())
}

func TestControllerStopForcesStopped(t *testing.T) {
	ctrl, _ := newRunningController(t, testControlConfig(nil), nil)

	waitForState(t, ctrl, StateDetecting)
	ctrl.Stop()

	assert.Equal(t, StateStopped, ctrl.State())
	assert.False(t, ctrl.Status().Running)

	// Stopping again is harmless.
	ctrl.Stop()
	assert.Equal(t, StateStopped, ctrl.State())
}

func TestControllerReset(t *testing.T) {
	ctrl, _ := newRunningController(t, testControlConfig(nil), nil)

	waitForState(t, ctrl, StateDetecting)
	ctrl.ProcessDetection(DetectionEvent{Detected: true, Confidence: 0.9})
	assert.Eventually(t, func() bool {
		return ctrl.CycleCount() == 1
	}, 3*time.Second, 5*time.Millisecond)

	ctrl.Reset()
	status := ctrl.Status()
	assert.Equal(t, 1, status.CycleCount, "reset preserves the cycle counter")
	assert.Empty(t, status.LastError)
	assert.False(t, status.HasDetection)
	waitForState(t, ctrl, StateDetecting)
}
