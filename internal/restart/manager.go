package restart

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/co2mon/internal/logger"
)

// Back-off limits for failure-driven reboots.
const (
	MaxRebootsAfterFail = 3
	RebootBackoffWindow = time.Hour
)

// RecordStore persists the restart record.
type RecordStore interface {
	Read(ctx context.Context) (Record, error)
	Write(ctx context.Context, r Record) error
}

// System performs the host-level actions.
type System interface {
	Sync()
	Reboot() error
	PowerOff() error
}

// Action is what the process does once the record is written.
type Action int

const (
	ActionStop        Action = iota // exit 0, stay down
	ActionExitFailure               // exit non-zero so the supervisor restarts us
	ActionReboot
	ActionPowerOff
)

func (a Action) String() string {
	switch a {
	case ActionExitFailure:
		return "exit-failure"
	case ActionReboot:
		return "reboot"
	case ActionPowerOff:
		return "poweroff"
	}
	return "stop"
}

// Decision is the outcome of the termination policy.
type Decision struct {
	Reason           Reason
	Action           Action
	RebootsAfterFail int
	BackedOff        bool
}

// Manager owns the restart record for one process lifetime.
type Manager struct {
	store RecordStore
	sys   System
	log   *logger.Logger

	prev      Record
	startedAt time.Time
	reboots   int
}

func NewManager(store RecordStore, sys System, log *logger.Logger) *Manager {
	return &Manager{store: store, sys: sys, log: log}
}

// Startup reads the previous record and immediately overwrites it with a
// Crash reason and an incremented reboot count, so an unclean exit is
// recorded as such. It returns the previous record.
func (m *Manager) Startup(ctx context.Context, now time.Time) (Record, error) {
	m.startedAt = now

	prev, err := m.store.Read(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("read restart record: %w", err)
	}
	m.prev = prev
	m.reboots = prev.Reboots() + 1

	m.log.Infow("previous run",
		"reason", prev.ReasonOrCrash(),
		"rebootsAfterFail", prev.Reboots(),
		"updatedAt", prev.UpdatedAt)

	crash, reboots := Crash, m.reboots
	next := Record{
		Reason:           &crash,
		UpdatedAt:        now,
		RebootsAfterFail: &reboots,
		Readings:         prev.Readings,
	}
	if err := m.store.Write(ctx, next); err != nil {
		return prev, fmt.Errorf("write restart record: %w", err)
	}
	return prev, nil
}

// Decide applies the termination policy without side effects.
func (m *Manager) Decide(cause Cause, req Request, now time.Time) Decision {
	failures := m.reboots
	if !m.startedAt.IsZero() && now.Sub(m.startedAt) >= RebootBackoffWindow {
		failures = 1
	}

	switch cause {
	case UserReq:
		switch req {
		case RequestReboot:
			return Decision{Reason: RebootUserReq, Action: ActionReboot}
		case RequestShutdown:
			return Decision{Reason: ShutdownUserReq, Action: ActionPowerOff}
		}
		return Decision{Reason: Restart, Action: ActionStop}
	case Signal:
		return Decision{Reason: Restart, Action: ActionStop}
	case HardwareFail:
		d := Decision{Reason: Reboot, Action: ActionReboot, RebootsAfterFail: failures}
		if failures > MaxRebootsAfterFail && m.recentFailure(now) {
			d.Action = ActionStop
			d.BackedOff = true
		}
		return d
	}
	return Decision{Reason: Restart, Action: ActionExitFailure, RebootsAfterFail: failures}
}

// recentFailure reports whether the previous run also ended in failure
// inside the back-off window.
func (m *Manager) recentFailure(now time.Time) bool {
	if m.prev.UpdatedAt.IsZero() {
		return false
	}
	switch m.prev.ReasonOrCrash() {
	case Crash, Reboot:
	default:
		return false
	}
	return now.Sub(m.prev.UpdatedAt) < RebootBackoffWindow
}

// Stop records the outcome and carries out reboot or power-off. For the
// other actions the caller exits the process.
func (m *Manager) Stop(ctx context.Context, cause Cause, req Request, readings *Readings, now time.Time) (Decision, error) {
	d := m.Decide(cause, req, now)
	m.log.Infow("terminating",
		"cause", cause,
		"request", req,
		"reason", d.Reason,
		"action", d.Action,
		"rebootsAfterFail", d.RebootsAfterFail,
		"backedOff", d.BackedOff)

	rec := Record{
		Reason:           &d.Reason,
		UpdatedAt:        now,
		RebootsAfterFail: &d.RebootsAfterFail,
		Readings:         m.prev.Readings,
	}
	if readings != nil {
		rec.Readings = readings
	}
	werr := m.store.Write(ctx, rec)
	if werr != nil {
		m.log.Errorw("write restart record", "error", werr)
	}

	switch d.Action {
	case ActionReboot:
		m.sys.Sync()
		if err := m.sys.Reboot(); err != nil {
			return d, fmt.Errorf("reboot: %w", err)
		}
	case ActionPowerOff:
		m.sys.Sync()
		if err := m.sys.PowerOff(); err != nil {
			return d, fmt.Errorf("power off: %w", err)
		}
	}
	return d, werr
}
