package netmon

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
		switch m.Type {
		case message.TypeTerminate:
			w.fsm.StateEvent(lifecycle.Terminate)
		case message.TypeNetConfig:
			if w.fsm.State() != lifecycle.AwaitingConfig {
				continue
			}
			cfg, err := message.RequireNetConfig(m)
			if err == nil && cfg.NetworkCheckPeriod <= 0 {
				err = errors.New("networkcheckperiod must be positive")
			}
			if err != nil {
				w.log.Errorw("bad net config", "error", err)
				w.fsm.StateEvent(lifecycle.ConfigError)
				continue
			}
			w.mu.Lock()
			w.cfg = &cfg
			w.mu.Unlock()
			w.fsm.StateEvent(lifecycle.ConfigOk)
		}
	}
}
