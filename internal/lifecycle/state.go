// Package lifecycle implements the per-worker thread lifecycle state machine.
//
// Every worker owns one FSM. Events are fired only from the owning worker
// (or its listener goroutine, which is part of the same worker); other
// workers influence it solely by sending messages.
package lifecycle

// State is a lifecycle state.
type State int

const (
	Init State = iota
	AwaitingConfig
	Started
	Running
	Stopping
	Stopped
	Failed
	HWFailed
)

var stateNames = [...]string{
	Init:           "INIT",
	AwaitingConfig: "AWAITING_CONFIG",
	Started:        "STARTED",
	Running:        "RUNNING",
	Stopping:       "STOPPING",
	Stopped:        "STOPPED",
	Failed:         "FAILED",
	HWFailed:       "HW_FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether s absorbs every event.
func (s State) Terminal() bool {
	return s == Stopped || s == Failed || s == HWFailed
}

// ParseState converts a state name back into a State.
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return Init, false
}

// Event drives transitions.
type Event int

const (
	ReadyForConfig Event = iota
	ConfigOk
	ConfigError
	InitOk
	InitFail
	RunTimeFail
	HardwareFail
	Timeout
	Terminate
)

var eventNames = [...]string{
	ReadyForConfig: "ReadyForConfig",
	ConfigOk:       "ConfigOk",
	ConfigError:    "ConfigError",
	InitOk:         "InitOk",
	InitFail:       "InitFail",
	RunTimeFail:    "RunTimeFail",
	HardwareFail:   "HardwareFail",
	Timeout:        "Timeout",
	Terminate:      "Terminate",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "Unknown"
	}
	return eventNames[e]
}

// Next returns the state reached from s on event e.
// Combinations not listed leave the state unchanged.
func Next(s State, e Event) State {
	switch s {
	case Init:
		switch e {
		case ReadyForConfig:
			return AwaitingConfig
		case ConfigOk, InitOk:
			return Started
		case ConfigError, InitFail, RunTimeFail, Timeout:
			return Failed
		case HardwareFail:
			return HWFailed
		case Terminate:
			return Stopping
		}
	case AwaitingConfig:
		switch e {
		case ConfigOk:
			return Started
		case ConfigError, InitFail, RunTimeFail, Timeout:
			return Failed
		case HardwareFail:
			return HWFailed
		case Terminate:
			return Stopping
		}
	case Started:
		switch e {
		case InitOk:
			return Running
		case InitFail, RunTimeFail, Timeout:
			return Failed
		case HardwareFail:
			return HWFailed
		case Terminate:
			return Stopping
		}
	case Running:
		switch e {
		case RunTimeFail, Timeout:
			return Failed
		case HardwareFail:
			return HWFailed
		case Terminate:
			return Stopping
		}
	case Stopping:
		switch e {
		case RunTimeFail:
			return Failed
		case Timeout:
			return Stopped
		}
	}
	return s
}
