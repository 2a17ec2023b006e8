package netmon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/sweeney/co2mon/internal/bus"
	"github.com/sweeney/co2mon/internal/lifecycle"
	"github.com/sweeney/co2mon/internal/logger"
	"github.com/sweeney/co2mon/internal/message"
)

// Name identifies the worker on the bus.
const Name = "netmon"

// Settings tune the worker.
type Settings struct {
	ConfigPoll       time.Duration
	AllowedPingFails int
	PeriodUnit       time.Duration // networkcheckperiod is counted in these
	PingHost         string        // empty pings the default gateway
}

// DefaultSettings returns the production settings.
func DefaultSettings() Settings {
	return Settings{
		ConfigPoll:       50 * time.Millisecond,
		AllowedPingFails: 5,
		PeriodUnit:       time.Second,
	}
}

// Deps are the worker's collaborators.
type Deps struct {
	Link   LinkChecker
	Pinger Pinger
	Now    func() time.Time
	Log    *logger.Logger
}

// Worker is the network monitor worker.
type Worker struct {
	conn *bus.Conn
	deps Deps
	set  Settings
	fsm  *lifecycle.FSM
	log  *logger.Logger

	mu  sync.Mutex
	cfg *message.RequiredNetConfig
	net message.NetStatus

	// owned by Run
	pingFails       int
	deviceDownSince time.Time
	netDownSince    time.Time
}

// New creates a network monitor on conn.
func New(conn *bus.Conn, deps Deps, set Settings) *Worker {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Link == nil {
		deps.Link = NewSysLink()
	}
	if deps.Pinger == nil {
		deps.Pinger = ExecPinger{}
	}
	w := &Worker{conn: conn, deps: deps, set: set, log: deps.Log, net: message.NetStart}
	w.fsm = lifecycle.New(conn.Name(), lifecycle.NotifierFunc(w.notify), deps.Log)
	w.fsm.SetClock(deps.Now)
	return w
}

func (w *Worker) notify(_ string, s lifecycle.State) {
	if err := w.conn.Send(message.NewThreadState(s)); err != nil {
		w.log.Warnw("send thread state", "state", s.String(), "error", err)
	}
}

// State returns the worker's lifecycle state.
func (w *Worker) State() lifecycle.State { return w.fsm.State() }

// NetState returns the current network state.
func (w *Worker) NetState() message.NetStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.net
}

// fire applies e to the network state machine and publishes any change.
func (w *Worker) fire(e Event) message.NetStatus {
	now := w.deps.Now()
	w.mu.Lock()
	cur := w.net
	next := Next(cur, e)
	w.net = next
	w.mu.Unlock()

	if next == cur {
		return cur
	}
	switch next {
	case message.NetDown:
		if w.netDownSince.IsZero() {
			w.netDownSince = now
		}
	case message.NetUp:
		w.netDownSince = time.Time{}
		w.deviceDownSince = time.Time{}
	}
	w.log.Infow("net state change", "from", cur.String(), "to", next.String(), "event", e.String())
	if err := w.conn.Send(message.NewNetState(next)); err != nil {
		w.log.Warnw("send net state", "error", err)
	}
	return next
}

// Run executes the worker until it stops or fails.
func (w *Worker) Run(ctx context.Context) error {
	lctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.listen(lctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	w.fsm.StateEvent(lifecycle.ReadyForConfig)
	for st := w.fsm.State(); st == lifecycle.Init || st == lifecycle.AwaitingConfig; st = w.fsm.State() {
		if err := w.fsm.WaitChanged(ctx, w.set.ConfigPoll); err != nil {
			return err
		}
	}
	if st := w.fsm.State(); st != lifecycle.Started {
		w.log.Warnw("not starting", "state", st.String())
		return w.finish()
	}

	w.mu.Lock()
	cfg := *w.cfg
	w.mu.Unlock()

	if err := w.start(cfg); err != nil {
		w.log.Errorw("start failed", "error", err)
		w.fsm.StateEvent(lifecycle.InitFail)
		return w.finish()
	}
	w.fsm.StateEvent(lifecycle.InitOk)

	w.loop(ctx, cfg)
	return w.finish()
}

func (w *Worker) start(cfg message.RequiredNetConfig) error {
	devs, err := w.deps.Link.Interfaces()
	if err != nil {
		w.fire(NetDeviceFail)
		return fmt.Errorf("list interfaces: %w", err)
	}
	if len(devs) == 0 {
		w.fire(NoNetDevices)
		return errors.New("no network interface present")
	}
	w.fire(NetDevicePresent)
	w.log.Infow("net monitor started", "device", cfg.NetDevice, "interfaces", devs,
		"period", cfg.NetworkCheckPeriod)
	return nil
}

func (w *Worker) loop(ctx context.Context, cfg message.RequiredNetConfig) {
	ticker := time.NewTicker(time.Duration(cfg.NetworkCheckPeriod) * w.set.PeriodUnit)
	defer ticker.Stop()

	w.check(ctx, cfg)
	for w.fsm.Active() {
		select {
		case <-ctx.Done():
			w.fsm.StateEvent(lifecycle.Terminate)
			return
		case <-ticker.C:
			w.check(ctx, cfg)
		}
	}
}

// check is one poll of the device and the gateway. A panic fails the
// worker with RunTimeFail.
func (w *Worker) check(ctx context.Context, cfg message.RequiredNetConfig) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorw("network check panicked", "panic", r)
			w.fsm.StateEvent(lifecycle.RunTimeFail)
		}
	}()

	now := w.deps.Now()
	up, err := w.deps.Link.DeviceUp(cfg.NetDevice)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		w.deviceDown(now)
		w.fire(NetDeviceMissing)
	case err != nil:
		w.log.Errorw("read device state", "device", cfg.NetDevice, "error", err)
		w.fire(NetDeviceFail)
	case !up:
		w.deviceDown(now)
		w.fire(NetDown)
	default:
		w.deviceDownSince = time.Time{}
		if w.NetState() == message.NetMissing {
			w.fire(NetDevicePresent)
		}
		w.ping(ctx)
	}

	if w.timedOut(now, cfg) {
		w.fire(Timeout)
	}
	if st := w.NetState(); Terminal(st) {
		w.log.Errorw("network failed", "state", st.String())
		w.fsm.StateEvent(lifecycle.RunTimeFail)
	}
}

func (w *Worker) ping(ctx context.Context) {
	host := w.set.PingHost
	if host == "" {
		gw, err := w.deps.Link.Gateway()
		if err != nil {
			w.log.Warnw("no gateway", "error", err)
			w.pingFailed()
			return
		}
		host = gw
	}
	if err := w.deps.Pinger.Ping(ctx, host); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.log.Debugw("ping failed", "host", host, "error", err, "fails", w.pingFails+1)
		w.pingFailed()
		return
	}
	w.pingFails = 0
	w.fire(NetUp)
}

func (w *Worker) pingFailed() {
	w.pingFails++
	if w.pingFails >= w.set.AllowedPingFails {
		w.fire(NetDown)
	}
}

func (w *Worker) deviceDown(now time.Time) {
	if w.deviceDownSince.IsZero() {
		w.deviceDownSince = now
	}
}

func (w *Worker) timedOut(now time.Time, cfg message.RequiredNetConfig) bool {
	if !w.deviceDownSince.IsZero() &&
		now.Sub(w.deviceDownSince) >= time.Duration(cfg.NetDeviceDownRebootMinTime)*time.Minute {
		return true
	}
	return !w.netDownSince.IsZero() &&
		now.Sub(w.netDownSince) >= time.Duration(cfg.NetDownRebootMinTime)*time.Second
}

// finish completes STOPPING.
func (w *Worker) finish() error {
	if w.fsm.State() == lifecycle.Stopping {
		w.fsm.StateEvent(lifecycle.Timeout)
	}
	st := w.fsm.State()
	w.log.Infow("net monitor exiting", "state", st.String(), "net", w.NetState().String())
	if st == lifecycle.Stopped {
		return nil
	}
	return fmt.Errorf("net monitor ended in %s", st)
}
