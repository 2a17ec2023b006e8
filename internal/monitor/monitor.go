// Package monitor runs the sensor worker: it reads the probe, filters the
// readings, drives the fan and publishes Co2State.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/co2mon/internal/bus"
	"github.com/sweeney/co2mon/internal/lifecycle"
	"github.com/sweeney/co2mon/internal/logger"
	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
	"github.com/sweeney/co2mon/internal/sensor"
	"github.com/sweeney/co2mon/internal/store"
)

// Name identifies the worker on the bus.
const Name = "monitor"

// ReadingLog receives every accepted sample.
type ReadingLog interface {
	Append(ctx context.Context, r store.Reading) error
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Settings tune the worker's cadence.
type Settings struct {
	Tick             time.Duration // loop period
	PollTicks        int           // ticks between sensor reads
	PublishInterval  time.Duration // minimum time between routine publishes
	HWErrorThreshold int           // consecutive bad readings before HardwareFail
	ConfigPoll       time.Duration // state poll while waiting for config
	LogRetention     time.Duration // readings older than this are pruned at start
	RelHumBounds     logic.Bounds  // hundredths of a percent
	Co2Bounds        logic.Bounds
}

// DefaultSettings returns the production cadence.
func DefaultSettings() Settings {
	return Settings{
		Tick:             time.Second,
		PollTicks:        5,
		PublishInterval:  60 * time.Second,
		HWErrorThreshold: 3,
		ConfigPoll:       50 * time.Millisecond,
		LogRetention:     30 * 24 * time.Hour,
		RelHumBounds:     logic.Bounds{Lo: logic.PercentToFixed(10), Hi: logic.PercentToFixed(95)},
		Co2Bounds:        logic.Bounds{Lo: 200, Hi: 2000},
	}
}

// Deps are the worker's collaborators.
type Deps struct {
	Sensors sensor.Factory
	Fan     logic.FanOutput
	OpenLog func(dir string) (ReadingLog, error) // nil disables the reading log
	Now     func() time.Time
	Log     *logger.Logger
}

// Worker is the monitor worker.
type Worker struct {
	conn *bus.Conn
	deps Deps
	set  Settings
	fsm  *lifecycle.FSM
	log  *logger.Logger

	mu     sync.Mutex
	co2Cfg *message.RequiredCo2Config
	fanCfg *message.RequiredFanConfig
	fan    *logic.FanController

	// owned by Run
	sensor      sensor.Sensor
	breaker     *sensor.Breaker
	rhFilter    logic.Filter
	co2Filter   logic.Filter
	latest      sensor.Measurement
	hasReading  bool
	lastPublish time.Time
	readings    ReadingLog
}

// New creates a monitor worker on conn.
func New(conn *bus.Conn, deps Deps, set Settings) *Worker {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Sensors == nil {
		deps.Sensors = sensor.New
	}
	w := &Worker{
		conn:    conn,
		deps:    deps,
		set:     set,
		log:     deps.Log,
		breaker: sensor.NewBreaker(set.HWErrorThreshold),
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

// FanSnapshot returns the fan controller state, or false before config.
func (w *Worker) FanSnapshot() (logic.FanControlState, bool) {
	fan := w.controller()
	if fan == nil {
		return logic.FanControlState{}, false
	}
	return fan.Snapshot(), true
}

func (w *Worker) controller() *logic.FanController {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fan
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

	if err := w.start(ctx); err != nil {
		w.log.Errorw("start failed", "error", err)
		return w.finish()
	}
	w.fsm.StateEvent(lifecycle.InitOk)

	w.loop(ctx)
	return w.finish()
}

func (w *Worker) start(ctx context.Context) error {
	w.mu.Lock()
	cfg := *w.co2Cfg
	w.mu.Unlock()

	s, err := w.deps.Sensors(cfg.SensorType, cfg.SensorPort)
	if err != nil {
		w.fsm.StateEvent(lifecycle.InitFail)
		return err
	}
	w.sensor = s
	if err := sensor.InitWithRetry(s, sensor.InitAttempts); err != nil {
		if sensor.IsFatal(err) {
			w.fsm.StateEvent(lifecycle.InitFail)
		} else {
			w.fsm.StateEvent(lifecycle.HardwareFail)
		}
		return fmt.Errorf("init %s sensor: %w", cfg.SensorType, err)
	}

	if w.deps.OpenLog != nil {
		rl, err := w.deps.OpenLog(cfg.Co2LogBaseDir)
		if err != nil {
			w.log.Warnw("reading log unavailable", "dir", cfg.Co2LogBaseDir, "error", err)
		} else {
			w.readings = rl
			if n, err := rl.Prune(ctx, w.deps.Now().Add(-w.set.LogRetention)); err != nil {
				w.log.Warnw("prune reading log", "error", err)
			} else if n > 0 {
				w.log.Infow("pruned reading log", "rows", n)
			}
		}
	}

	if _, err := w.controller().Reevaluate(w.deps.Now()); err != nil {
		w.log.Errorw("initial fan write", "error", err)
	}
	w.log.Infow("monitor started", "sensor", cfg.SensorType, "port", cfg.SensorPort)
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.set.Tick)
	defer ticker.Stop()

	ticks := 0
	for w.fsm.Active() {
		select {
		case <-ctx.Done():
			w.fsm.StateEvent(lifecycle.Terminate)
			return
		case <-ticker.C:
		}
		ticks++
		if ticks%w.set.PollTicks == 0 {
			w.iterate(ctx)
		}
		if w.fsm.Active() {
			w.maybePublish()
		}
	}
}

// iterate is one poll: read, filter, decide, log. Panics and fatal sensor
// errors fail the worker; anything else is logged.
func (w *Worker) iterate(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorw("poll panicked", "panic", r)
			w.fsm.StateEvent(lifecycle.RunTimeFail)
		}
	}()

	fan := w.controller()
	now := w.deps.Now()

	m, ok, err := w.breaker.Read(w.sensor)
	switch {
	case errors.Is(err, sensor.ErrHardwareFail):
		w.log.Errorw("sensor hardware failure", "error", err)
		w.fsm.StateEvent(lifecycle.HardwareFail)
		return
	case sensor.IsFatal(err):
		w.log.Errorw("sensor failed", "error", err)
		w.fsm.StateEvent(lifecycle.RunTimeFail)
		return
	case err != nil:
		w.log.Warnw("sensor read", "error", err, "consecutive", w.breaker.Count())
	}

	if !ok {
		d, err := fan.Reevaluate(now)
		if err != nil {
			w.log.Errorw("fan write", "error", err)
		}
		w.reverted(d)
		return
	}

	w.latest = m
	w.hasReading = true
	rh := w.rhFilter.Update(m.RelHumidity)
	co2 := w.co2Filter.Update(m.Co2)

	d, err := fan.UpdateFanState(now, rh, co2)
	if err != nil {
		w.log.Errorw("fan write", "error", err)
	}
	w.reverted(d)
	w.log.Debugw("reading",
		"co2", m.Co2, "temperature", m.Temperature, "relHumidity", m.RelHumidity,
		"filteredCo2", co2, "filteredRelHumidity", rh, "fan", d.State.String())

	if w.readings != nil {
		err := w.readings.Append(ctx, store.Reading{
			TakenAt:     now,
			Co2:         m.Co2,
			Temperature: m.Temperature,
			RelHumidity: m.RelHumidity,
			FanState:    d.State,
		})
		if err != nil {
			w.log.Warnw("log reading", "error", err)
		}
	}
}

// reverted reports an expired manual override to the coordinator so the
// persisted settings and the display follow the fan back to Auto.
func (w *Worker) reverted(d logic.Decision) {
	if !d.Reverted {
		return
	}
	w.log.Infow("manual fan override expired")
	msg := message.NewFanConfig(message.FanConfig{FanOverride: message.Override(logic.Auto)})
	if err := w.conn.Send(msg); err != nil {
		w.log.Warnw("report override expiry", "error", err)
	}
}

func (w *Worker) maybePublish() {
	if !w.hasReading {
		return
	}
	now := w.deps.Now()
	forced := w.controller().TakePublishNow()
	if !forced && !w.lastPublish.IsZero() && now.Sub(w.lastPublish) < w.set.PublishInterval {
		return
	}
	w.lastPublish = now

	fs := w.controller().Snapshot().FanState()
	msg := message.NewCo2State(message.Co2State{
		Temperature: message.Int32(int32(w.latest.Temperature)),
		RelHumidity: message.Int32(int32(w.latest.RelHumidity)),
		Co2:         message.Int32(int32(w.latest.Co2)),
		FanState:    message.Fan(fs),
		Timestamp:   message.Int64(now.Unix()),
	})
	if err := w.conn.Send(msg); err != nil {
		w.log.Warnw("publish state", "error", err)
	}
}

// finish releases resources and completes STOPPING.
func (w *Worker) finish() error {
	if w.sensor != nil {
		if err := w.sensor.Close(); err != nil {
			w.log.Warnw("close sensor", "error", err)
		}
	}
	if w.readings != nil {
		if err := w.readings.Close(); err != nil {
			w.log.Warnw("close reading log", "error", err)
		}
	}
	if w.fsm.State() == lifecycle.Stopping {
		w.fsm.StateEvent(lifecycle.Timeout)
	}
	st := w.fsm.State()
	w.log.Infow("monitor exiting", "state", st.String())
	if st == lifecycle.Stopped {
		return nil
	}
	return fmt.Errorf("monitor ended in %s", st)
}
