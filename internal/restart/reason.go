// Package restart decides what happens to the appliance when the process
// ends, and keeps the persistent restart record up to date.
package restart

import (
	"strings"
	"time"
)

// Reason is persisted so the next start knows how the last run ended.
type Reason int

const (
	Crash Reason = iota
	Restart
	RebootUserReq
	Reboot
	ShutdownUserReq
)

var reasonNames = [...]string{
	Crash:           "CRASH",
	Restart:         "RESTART",
	RebootUserReq:   "REBOOT_USER_REQ",
	Reboot:          "REBOOT",
	ShutdownUserReq: "SHUTDOWN_USER_REQ",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return reasonNames[Crash]
	}
	return reasonNames[r]
}

// ParseReason maps a stored name back to a Reason. Anything unknown,
// including "CRASH/UNKNOWN", is Crash.
func ParseReason(s string) Reason {
	s = strings.TrimSpace(s)
	for i, n := range reasonNames {
		if strings.EqualFold(s, n) {
			return Reason(i)
		}
	}
	return Crash
}

// Cause is why the coordinator is terminating.
type Cause int

const (
	UserReq Cause = iota
	Signal
	FatalException
	SoftwareFail
	HardwareFail
)

var causeNames = [...]string{
	UserReq:        "UserReq",
	Signal:         "Signal",
	FatalException: "FatalException",
	SoftwareFail:   "SoftwareFail",
	HardwareFail:   "HardwareFail",
}

func (c Cause) String() string {
	if c < 0 || int(c) >= len(causeNames) {
		return "Unknown"
	}
	return causeNames[c]
}

// Request is what the user asked for. It only matters for UserReq.
type Request int

const (
	RequestRestart Request = iota
	RequestReboot
	RequestShutdown
)

func (r Request) String() string {
	switch r {
	case RequestReboot:
		return "Reboot"
	case RequestShutdown:
		return "Shutdown"
	}
	return "Restart"
}

// Readings are the last known sensor values, in the same units as
// sensor.Measurement.
type Readings struct {
	Temperature int
	Co2         int
	RelHumidity int
}

// Record is the persisted restart state. Nil fields were never written.
type Record struct {
	Reason           *Reason
	UpdatedAt        time.Time
	RebootsAfterFail *int
	Readings         *Readings
}

// ReasonOrCrash returns the stored reason, or Crash when none was stored.
func (r Record) ReasonOrCrash() Reason {
	if r.Reason == nil {
		return Crash
	}
	return *r.Reason
}

// Reboots returns the stored reboot count, or 0.
func (r Record) Reboots() int {
	if r.RebootsAfterFail == nil {
		return 0
	}
	return *r.RebootsAfterFail
}
