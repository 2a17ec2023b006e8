package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/co2mon/internal/bus"
	"github.com/sweeney/co2mon/internal/lifecycle"
	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
)

// listen consumes the broadcast channel until ctx ends or the bus closes.
func (w *Worker) listen(ctx context.Context) {
	for {
		m, err := w.conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, message.ErrMalformed) || errors.Is(err, message.ErrUnsupportedVersion) {
				w.log.Warnw("dropping broadcast", "error", err)
				continue
			}
			if !errors.Is(err, bus.ErrClosed) && ctx.Err() == nil {
				w.log.Errorw("broadcast receive", "error", err)
			}
			return
		}
		w.handle(m)
	}
}

func (w *Worker) handle(m message.Message) {
	switch m.Type {
	case message.TypeTerminate:
		w.fsm.StateEvent(lifecycle.Terminate)
	case message.TypeCo2Config, message.TypeFanConfig:
		if w.fsm.State() == lifecycle.AwaitingConfig {
			w.gateConfig(m)
			return
		}
		// Without a payload nothing changed.
		if m.Type == message.TypeFanConfig && m.HasPayload() {
			w.applyFanConfig(*m.FanConfig)
		}
	}
}

// gateConfig records the initial configs and fires ConfigOk once both are
// complete. The fan controller is built before ConfigOk so later updates
// always find it.
func (w *Worker) gateConfig(m message.Message) {
	w.mu.Lock()
	switch m.Type {
	case message.TypeCo2Config:
		cfg, err := message.RequireCo2Config(m)
		if err != nil {
			w.mu.Unlock()
			w.log.Errorw("bad co2 config", "error", err)
			w.fsm.StateEvent(lifecycle.ConfigError)
			return
		}
		w.co2Cfg = &cfg
	case message.TypeFanConfig:
		cfg, err := message.RequireFanConfig(m)
		if err != nil {
			w.mu.Unlock()
			w.log.Errorw("bad fan config", "error", err)
			w.fsm.StateEvent(lifecycle.ConfigError)
			return
		}
		w.fanCfg = &cfg
	}
	if w.co2Cfg == nil || w.fanCfg == nil {
		w.mu.Unlock()
		return
	}

	fc := *w.fanCfg
	w.fan = logic.NewFanController(w.deps.Fan, logic.FanSettings{
		Override:          logic.Auto,
		RelHumThreshold:   w.set.RelHumBounds.Clamp(logic.PercentToFixed(int(fc.RelHumFanOnThreshold))),
		Co2Threshold:      w.set.Co2Bounds.Clamp(int(fc.Co2FanOnThreshold)),
		FanOnOverrideTime: time.Duration(fc.FanOnOverrideTime) * time.Minute,
		RelHumBounds:      w.set.RelHumBounds,
		Co2Bounds:         w.set.Co2Bounds,
	})
	if err := w.fan.SetOverride(w.deps.Now(), fc.FanOverride); err != nil {
		w.log.Warnw("initial fan override", "error", err)
	}
	w.mu.Unlock()

	w.fsm.StateEvent(lifecycle.ConfigOk)
}

// applyFanConfig applies whichever fields are present.
func (w *Worker) applyFanConfig(fc message.FanConfig) {
	fan := w.controller()
	if fan == nil {
		return
	}
	now := w.deps.Now()

	if fc.FanOnOverrideTime != nil {
		fan.SetFanOnOverrideTime(time.Duration(*fc.FanOnOverrideTime) * time.Minute)
	}
	var rh, co2 *int
	if fc.RelHumFanOnThreshold != nil {
		v := logic.PercentToFixed(int(*fc.RelHumFanOnThreshold))
		rh = &v
	}
	if fc.Co2FanOnThreshold != nil {
		v := int(*fc.Co2FanOnThreshold)
		co2 = &v
	}
	if rh != nil || co2 != nil {
		if err := fan.SetThresholds(rh, co2); err != nil {
			w.log.Warnw("rejected fan threshold", "error", err)
		}
	}
	if fc.FanOverride != nil {
		if err := fan.SetOverride(now, *fc.FanOverride); err != nil {
			w.log.Warnw("rejected fan override", "error", err)
		}
	}

	d, err := fan.Reevaluate(now)
	if err != nil {
		w.log.Errorw("fan write", "error", err)
		return
	}
	w.reverted(d)
	w.log.Infow("fan config applied", "config", message.NewFanConfig(fc).String(), "fan", d.State.String())
}
