package display

import (
	"context"
	"errors"

	"github.com/sweeney/co2mon/internal/bus"
	"github.com/sweeney/co2mon/internal/lifecycle"
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
		w.handle(ctx, m)
	}
}

func (w *Worker) handle(ctx context.Context, m message.Message) {
	switch m.Type {
	case message.TypeTerminate:
		w.fsm.StateEvent(lifecycle.Terminate)
		return
	case message.TypeUIConfig, message.TypeFanConfig:
		if w.fsm.State() == lifecycle.AwaitingConfig {
			w.gateConfig(m)
			return
		}
	}

	switch m.Type {
	case message.TypeCo2State, message.TypeNetState, message.TypeFanConfig:
	default:
		return
	}
	if !m.HasPayload() {
		w.log.Debugw("ignoring message without payload", "type", m.Type.String())
		return
	}
	if !w.fsm.Active() {
		return
	}
	select {
	case w.updates <- m:
	case <-ctx.Done():
	}
}

// gateConfig records the initial configs and fires ConfigOk once both are
// complete.
func (w *Worker) gateConfig(m message.Message) {
	w.mu.Lock()
	switch m.Type {
	case message.TypeUIConfig:
		cfg, err := message.RequireUIConfig(m)
		if err != nil {
			w.mu.Unlock()
			w.log.Errorw("bad ui config", "error", err)
			w.fsm.StateEvent(lifecycle.ConfigError)
			return
		}
		raw := *m.UIConfig
		w.uiCfg, w.uiRaw = &cfg, &raw
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
	ready := w.uiCfg != nil && w.fanCfg != nil
	w.mu.Unlock()

	if ready {
		w.fsm.StateEvent(lifecycle.ConfigOk)
	}
}
