package dispatch

// State is a step of the per-request state machine.
type State int

const (
	StateReceived State = iota
	StateRouted
	StateInstantiated
	StateRunning
	StateCompleted
	StateTrapped
	StateTimedOut
	StateCancelled
)

var stateNames = [...]string{
	StateReceived:     "received",
	StateRouted:       "routed",
	StateInstantiated: "instantiated",
	StateRunning:      "running",
	StateCompleted:    "completed",
	StateTrapped:      "trapped",
	StateTimedOut:     "timed_out",
	StateCancelled:    "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// transitions lists the legal successors of each non-terminal state.
var transitions = map[State][]State{
	StateReceived:     {StateRouted, StateCompleted, StateCancelled},
	StateRouted:       {StateInstantiated, StateCompleted, StateTimedOut, StateCancelled},
	StateInstantiated: {StateRunning, StateCancelled},
	StateRunning:      {StateCompleted, StateTrapped, StateTimedOut, StateCancelled},
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
