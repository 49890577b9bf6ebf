package control

// State is a phase of the pick-and-place handshake.
type State int

const (
	// StateStopped is the initial and terminal state.
	StateStopped State = iota
	// StateInitializing waits for the PLC link and announces vision ready.
	StateInitializing
	// StateWaitingAuthorization polls safety and detection authorization.
	StateWaitingAuthorization
	// StateDetecting waits for the detection pipeline to push an event.
	StateDetecting
	// StateWaitingSendAuthorization waits for the operator in manual mode.
	StateWaitingSendAuthorization
	// StateSendingData writes the detection payload to the PLC.
	StateSendingData
	// StateWaitingAck waits for the robot acknowledge.
	StateWaitingAck
	// StateAckConfirmed echoes the acknowledge back to the robot.
	StateAckConfirmed
	// StateWaitingPick waits for the robot to finish the pick.
	StateWaitingPick
	// StateWaitingPlace waits for the robot to finish the place.
	StateWaitingPlace
	// StateWaitingCycleStart waits for the PLC to signal cycle end.
	StateWaitingCycleStart
	// StateReadyForNext closes the cycle and waits for the next one.
	StateReadyForNext
	// StateError dwells after a handler failure before re-initializing.
	StateError
	// StateTimeout dwells after a handshake deadline expired.
	StateTimeout
	// StateSafetyBlocked holds the cycle while the safety circuit trips.
	StateSafetyBlocked

	stateCount
)

var stateNames = map[State]string{
	StateStopped:                  "stopped",
	StateInitializing:             "initializing",
	StateWaitingAuthorization:     "waiting_authorization",
	StateDetecting:                "detecting",
	StateWaitingSendAuthorization: "waiting_send_authorization",
	StateSendingData:              "sending_data",
	StateWaitingAck:               "waiting_ack",
	StateAckConfirmed:             "ack_confirmed",
	StateWaitingPick:              "waiting_pick",
	StateWaitingPlace:             "waiting_place",
	StateWaitingCycleStart:        "waiting_cycle_start",
	StateReadyForNext:             "ready_for_next",
	StateError:                    "error",
	StateTimeout:                  "timeout",
	StateSafetyBlocked:            "safety_blocked",
}

// String returns a stable machine-readable state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// validTransitions maps each state to the set of states it may enter.
// A forced error transition bypasses this table; everything else is
// rejected if not listed.
var validTransitions = map[State][]State{
	StateStopped:      {StateInitializing},
	StateInitializing: {StateWaitingAuthorization, StateError, StateStopped},
	StateWaitingAuthorization: {
		StateDetecting, StateError, StateSafetyBlocked, StateStopped,
	},
	StateDetecting: {
		StateSendingData, StateWaitingSendAuthorization,
		StateWaitingAuthorization, StateError, StateStopped,
	},
	StateWaitingSendAuthorization: {StateSendingData, StateError, StateStopped},
	StateSendingData:              {StateWaitingAck, StateError, StateStopped},
	StateWaitingAck: {
		StateAckConfirmed, StateTimeout, StateError, StateStopped,
	},
	StateAckConfirmed: {StateWaitingPick, StateError, StateStopped},
	StateWaitingPick: {
		StateWaitingPlace, StateTimeout, StateError, StateStopped,
	},
	StateWaitingPlace: {
		StateWaitingCycleStart, StateTimeout, StateError, StateStopped,
	},
	StateWaitingCycleStart: {StateReadyForNext, StateError, StateStopped},
	StateReadyForNext:      {StateWaitingAuthorization, StateStopped},
	StateError:             {StateInitializing, StateStopped},
	StateTimeout:           {StateWaitingAuthorization, StateError, StateStopped},
	StateSafetyBlocked:     {StateWaitingAuthorization, StateStopped},
}

// CanTransition reports whether moving from one state to another is allowed
// by the handshake table. Self-transitions are always allowed (and treated
// as no-ops by the controller).
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllStates returns every defined state, for diagnostics and tests.
func AllStates() []State {
	states := make([]State, 0, int(stateCount))
	for s := StateStopped; s < stateCount; s++ {
		states = append(states, s)
	}
	return states
}
