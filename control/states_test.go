package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateStrings(t *testing.T) {
	for _, s := range AllStates() {
		assert.NotEqual(t, "unknown", s.String(), "state %d has no name", int(s))
	}
	assert.Equal(t, "unknown", State(99).String())
}

func TestSelfTransitionAlwaysAllowed(t *testing.T) {
	for _, s := range AllStates() {
		assert.True(t, CanTransition(s, s), "self-transition from %s", s)
	}
}

func TestEveryRunningStateCanStop(t *testing.T) {
	for _, s := range AllStates() {
		if s == StateStopped {
			continue
		}
		assert.True(t, CanTransition(s, StateStopped),
			"%s must be able to stop", s)
	}
}

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateStopped, StateInitializing},
		{StateInitializing, StateWaitingAuthorization},
		{StateWaitingAuthorization, StateDetecting},
		{StateWaitingAuthorization, StateSafetyBlocked},
		{StateDetecting, StateSendingData},
		{StateDetecting, StateWaitingSendAuthorization},
		{StateDetecting, StateWaitingAuthorization},
		{StateWaitingSendAuthorization, StateSendingData},
		{StateSendingData, StateWaitingAck},
		{StateWaitingAck, StateAckConfirmed},
		{StateWaitingAck, StateTimeout},
		{StateAckConfirmed, StateWaitingPick},
		{StateWaitingPick, StateWaitingPlace},
		{StateWaitingPick, StateTimeout},
		{StateWaitingPlace, StateWaitingCycleStart},
		{StateWaitingPlace, StateTimeout},
		{StateWaitingCycleStart, StateReadyForNext},
		{StateReadyForNext, StateWaitingAuthorization},
		{StateError, StateInitializing},
		{StateTimeout, StateWaitingAuthorization},
		{StateSafetyBlocked, StateWaitingAuthorization},
	}
	for _, tt := range allowed {
		assert.True(t, CanTransition(tt.from, tt.to),
			"%s -> %s must be allowed", tt.from, tt.to)
	}

	denied := []struct{ from, to State }{
		{StateStopped, StateDetecting},
		{StateStopped, StateError},
		{StateInitializing, StateDetecting},
		{StateWaitingAuthorization, StateSendingData},
		{StateDetecting, StateWaitingAck},
		{StateSendingData, StateAckConfirmed},
		{StateWaitingAck, StateWaitingPick},
		{StateAckConfirmed, StateWaitingPlace},
		{StateWaitingPick, StateWaitingCycleStart},
		{StateWaitingPlace, StateReadyForNext},
		{StateWaitingCycleStart, StateWaitingAuthorization},
		{StateReadyForNext, StateDetecting},
		{StateReadyForNext, StateError},
		{StateError, StateWaitingAuthorization},
		{StateTimeout, StateDetecting},
		{StateSafetyBlocked, StateDetecting},
		{StateSafetyBlocked, StateError},
	}
	for _, tt := range denied {
		assert.False(t, CanTransition(tt.from, tt.to),
			"%s -> %s must be rejected", tt.from, tt.to)
	}
}

// Requesting a transition outside the table must leave the state unchanged,
// for every (from, to) pair.
func TestRejectedTransitionLeavesStateUnchanged(t *testing.T) {
	c := &Controller{logger: testLogger(), state: StateStopped}

	for _, from := range AllStates() {
		for _, to := range AllStates() {
			if CanTransition(from, to) {
				continue
			}
			c.state = from
			c.applyTransitionLocked(to)
			assert.Equal(t, from, c.state,
				"rejected %s -> %s must not change state", from, to)
		}
	}
}
