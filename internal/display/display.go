package display

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/co2mon/internal/bus"
	"github.com/sweeney/co2mon/internal/lifecycle"
	"github.com/sweeney/co2mon/internal/logger"
	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
)

// Name identifies the worker on the bus.
const Name = "display"

// Settings tune the worker.
type Settings struct {
	ConfigPoll     time.Duration
	EditInterval   time.Duration // minimum time between FanConfig publishes
	SplashDuration time.Duration
	RefreshBounds  logic.Bounds // Hz
	RelHumBounds   logic.Bounds // whole percent
	Co2Bounds      logic.Bounds
}

// DefaultSettings returns the production settings.
func DefaultSettings() Settings {
	return Settings{
		ConfigPoll:     50 * time.Millisecond,
		EditInterval:   time.Second,
		SplashDuration: 3 * time.Second,
		RefreshBounds:  logic.Bounds{Lo: 1, Hi: 60},
		RelHumBounds:   logic.Bounds{Lo: 10, Hi: 95},
		Co2Bounds:      logic.Bounds{Lo: 200, Hi: 2000},
	}
}

// Deps are the worker's collaborators.
type Deps struct {
	Renderer  Renderer
	Backlight BacklightDriver // nil when there is no dimmable backlight

	// Input delivers operator events. The GPIO buttons only produce
	// Button1..4; the on-screen events (threshold steps, fan modes,
	// Reboot, Shutdown, Confirm, Cancel) must come from the touch
	// decoder of an external renderer feeding the same channel.
	Input <-chan ScreenEvent

	Now func() time.Time
	Log *logger.Logger
}

// Worker is the display worker.
type Worker struct {
	conn *bus.Conn
	deps Deps
	set  Settings
	fsm  *lifecycle.FSM
	log  *logger.Logger

	updates chan message.Message

	mu     sync.Mutex
	uiRaw  *message.UIConfig
	uiCfg  *message.RequiredUIConfig
	fanCfg *message.RequiredFanConfig

	// owned by Run
	model       *UIModel
	nav         *Navigator
	backlight   *Backlight
	dirty       Dirty
	started     time.Time
	editPending bool
	lastEdit    time.Time
}

// New creates a display worker on conn.
func New(conn *bus.Conn, deps Deps, set Settings) *Worker {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Renderer == nil {
		deps.Renderer = LogRenderer{Log: deps.Log}
	}
	w := &Worker{
		conn:    conn,
		deps:    deps,
		set:     set,
		log:     deps.Log,
		updates: make(chan message.Message, 16),
	}
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
		return w.finish(false)
	}

	period, err := w.start()
	if err != nil {
		w.log.Errorw("start failed", "error", err)
		return w.finish(false)
	}
	w.fsm.StateEvent(lifecycle.InitOk)

	w.loop(ctx, period)
	return w.finish(true)
}

func (w *Worker) start() (time.Duration, error) {
	w.mu.Lock()
	raw, ui, fc := *w.uiRaw, *w.uiCfg, *w.fanCfg
	w.mu.Unlock()

	if err := w.deps.Renderer.Init(raw); err != nil {
		w.fsm.StateEvent(lifecycle.InitFail)
		return 0, fmt.Errorf("init renderer: %w", err)
	}

	now := w.deps.Now()
	w.model = &UIModel{
		Override:        fc.FanOverride,
		RelHumThreshold: w.set.RelHumBounds.Clamp(int(fc.RelHumFanOnThreshold)),
		Co2Threshold:    w.set.Co2Bounds.Clamp(int(fc.Co2FanOnThreshold)),
		RelHumBounds:    w.set.RelHumBounds,
		Co2Bounds:       w.set.Co2Bounds,
	}
	w.nav = NewNavigator(w.model)
	w.backlight = NewBacklight(w.deps.Backlight, time.Duration(ui.ScreenTimeout)*time.Second, now)
	if err := w.backlight.SetBrightness(now, LevelOn); err != nil {
		w.log.Warnw("backlight on", "error", err)
	}
	w.started = now
	w.dirty = Dirty{Full: true}
	w.render()

	hz := w.set.RefreshBounds.Clamp(int(ui.ScreenRefreshRate))
	w.log.Infow("display started", "refreshHz", hz, "timeout", ui.ScreenTimeout)
	return time.Second / time.Duration(hz), nil
}

func (w *Worker) loop(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for w.fsm.Active() {
		select {
		case <-ctx.Done():
			w.fsm.StateEvent(lifecycle.Terminate)
			return
		case ev, ok := <-w.deps.Input:
			if !ok {
				w.deps.Input = nil
				continue
			}
			w.safely(func() { w.input(ev) })
		case m := <-w.updates:
			w.safely(func() { w.update(m) })
		case <-ticker.C:
			w.safely(w.tick)
		}
	}
}

// safely runs f and turns a panic into RunTimeFail.
func (w *Worker) safely(f func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorw("display panicked", "panic", r)
			w.fsm.StateEvent(lifecycle.RunTimeFail)
		}
	}()
	f()
}

// input handles one operator event. While the backlight is off the event
// only wakes the screen.
func (w *Worker) input(ev ScreenEvent) {
	now := w.deps.Now()
	if w.backlight.Brightness() == LevelOff {
		if err := w.backlight.SetBrightness(now, LevelOn); err != nil {
			w.log.Warnw("backlight on", "error", err)
		}
		w.apply(w.nav.Handle(BacklightOn))
		return
	}
	w.backlight.InputEvent(now)
	if _, err := w.backlight.Update(now); err != nil {
		w.log.Warnw("backlight", "error", err)
	}
	w.log.Debugw("input", "event", ev.String(), "screen", w.nav.Screen().String())
	w.apply(w.nav.Handle(ev))
}

func (w *Worker) apply(r Result) {
	w.dirty.Merge(r.Dirty)
	if r.FanEdit {
		w.editPending = true
		w.flushEdit(w.deps.Now())
	}
	if r.Restart != nil {
		w.log.Infow("restart requested", "type", r.Restart.String())
		if err := w.conn.Send(message.NewRestart(*r.Restart)); err != nil {
			w.log.Errorw("send restart", "error", err)
		}
	}
}

// flushEdit publishes the edited fan settings at most once per EditInterval.
func (w *Worker) flushEdit(now time.Time) {
	if !w.editPending {
		return
	}
	if !w.lastEdit.IsZero() && now.Sub(w.lastEdit) < w.set.EditInterval {
		return
	}
	fc, ok := w.model.takeEdit()
	if !ok {
		w.editPending = false
		return
	}
	w.lastEdit = now
	w.editPending = false
	if err := w.conn.Send(message.NewFanConfig(fc)); err != nil {
		w.log.Warnw("publish fan config", "error", err)
		return
	}
	w.log.Infow("fan settings edited", "config", message.NewFanConfig(fc).String())
}

// update applies a broadcast forwarded by the listener. Payloads may be
// missing; that means nothing changed.
func (w *Worker) update(m message.Message) {
	var ids []string
	switch m.Type {
	case message.TypeCo2State:
		if m.Co2State != nil {
			ids = w.model.ApplyCo2State(*m.Co2State)
		}
	case message.TypeNetState:
		if m.NetState != nil && m.NetState.State != nil {
			ids = w.model.ApplyNetState(*m.NetState.State)
		}
	case message.TypeFanConfig:
		// Local edits not yet published win over the echo of older ones.
		if m.FanConfig == nil || w.editPending {
			return
		}
		ids = w.model.ApplyFanConfig(*m.FanConfig)
	}
	w.dirty.Merge(w.nav.Refresh(ids))
}

func (w *Worker) tick() {
	now := w.deps.Now()
	if w.nav.Screen() == Splash && now.Sub(w.started) >= w.set.SplashDuration {
		w.apply(w.nav.Handle(Button1))
	}

	before := w.backlight.Brightness()
	after, err := w.backlight.Update(now)
	if err != nil {
		w.log.Warnw("backlight", "error", err)
	}
	if before != LevelOff && after == LevelOff {
		w.apply(w.nav.Handle(BacklightOff))
	}

	w.flushEdit(now)
	w.render()
}

func (w *Worker) render() {
	if w.dirty.Empty() {
		return
	}
	scr := ScreenFor(w.nav.Screen())
	var elems []Element
	if w.dirty.Full {
		elems = scr.Elements(w.model)
	} else {
		elems = pick(scr, w.model, w.dirty.Elements)
	}
	if err := w.deps.Renderer.Render(scr.Name(), w.dirty.Full, elems); err != nil {
		w.log.Warnw("render", "screen", scr.Name().String(), "error", err)
		return
	}
	w.dirty = Dirty{}
}

// finish releases resources and completes STOPPING.
func (w *Worker) finish(started bool) error {
	if started {
		if w.backlight != nil {
			if err := w.backlight.SetBrightness(w.deps.Now(), LevelOff); err != nil {
				w.log.Warnw("backlight off", "error", err)
			}
		}
		if err := w.deps.Renderer.Close(); err != nil {
			w.log.Warnw("close renderer", "error", err)
		}
	}
	if w.fsm.State() == lifecycle.Stopping {
		w.fsm.StateEvent(lifecycle.Timeout)
	}
	st := w.fsm.State()
	w.log.Infow("display exiting", "state", st.String())
	if st == lifecycle.Stopped {
		return nil
	}
	return fmt.Errorf("display ended in %s", st)
}
