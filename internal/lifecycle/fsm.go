package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/co2mon/internal/logger"
)

// Notifier receives every state transition. Workers use it to push a
// ThreadState message towards the coordinator.
type Notifier interface {
	ThreadState(worker string, s State)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(worker string, s State)

// ThreadState calls f.
func (f NotifierFunc) ThreadState(worker string, s State) { f(worker, s) }

// FSM is one worker's lifecycle state machine.
type FSM struct {
	name   string
	notify Notifier
	log    *logger.Logger
	now    func() time.Time

	mu         sync.Mutex
	state      State
	lastChange time.Time

	changed atomic.Bool
}

// New creates an FSM in the INIT state. notify may be nil.
func New(name string, notify Notifier, log *logger.Logger) *FSM {
	if log == nil {
		log = logger.Nop()
	}
	f := &FSM{
		name:   name,
		notify: notify,
		log:    log,
		now:    time.Now,
		state:  Init,
	}
	f.lastChange = f.now()
	return f
}

// SetClock overrides the time source used for lastChangeTime.
func (f *FSM) SetClock(now func() time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

// Name returns the worker name.
func (f *FSM) Name() string { return f.name }

// StateEvent applies e. On an actual transition the new state is logged,
// stored, flagged as changed and reported to the notifier.
func (f *FSM) StateEvent(e Event) {
	f.mu.Lock()
	cur := f.state
	next := Next(cur, e)
	if next == cur {
		f.mu.Unlock()
		f.log.Debugw("state event ignored", "worker", f.name, "state", cur.String(), "event", e.String())
		return
	}
	f.state = next
	f.lastChange = f.now()
	f.changed.Store(true)
	f.mu.Unlock()

	f.log.Infow("state transition", "worker", f.name, "from", cur.String(), "to", next.String(), "event", e.String())
	if f.notify != nil {
		f.notify.ThreadState(f.name, next)
	}
}

// State returns the current state.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastChange returns the time of the most recent transition.
func (f *FSM) LastChange() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastChange
}

// StateChanged reports whether a transition happened since the previous
// call, clearing the flag.
func (f *FSM) StateChanged() bool {
	return f.changed.Swap(false)
}

// WaitChanged polls StateChanged every interval until it reports true.
// It returns ctx.Err() if the context ends first.
func (f *FSM) WaitChanged(ctx context.Context, interval time.Duration) error {
	if f.StateChanged() {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if f.StateChanged() {
				return nil
			}
		}
	}
}

// Active reports whether the worker should keep looping.
func (f *FSM) Active() bool {
	return f.State() == Running
}
