package display

import (
	"errors"
	"sync"

	"github.com/sweeney/co2mon/internal/logger"
	"github.com/sweeney/co2mon/internal/message"
)

// Renderer draws screens. full requests a complete redraw; otherwise only
// elems changed.
type Renderer interface {
	Init(cfg message.UIConfig) error
	Render(screen ScreenName, full bool, elems []Element) error
	Close() error
}

// LogRenderer is the headless renderer: it logs what would be drawn.
type LogRenderer struct {
	Log *logger.Logger
}

func (r LogRenderer) Init(cfg message.UIConfig) error {
	fb := ""
	if cfg.FBDev != nil {
		fb = *cfg.FBDev
	}
	r.log().Infow("headless display", "fbdev", fb)
	return nil
}

func (r LogRenderer) Render(screen ScreenName, full bool, elems []Element) error {
	l := r.log()
	l.Debugw("render", "screen", screen.String(), "full", full, "elements", len(elems))
	for _, e := range elems {
		l.Debugw("element", "id", e.ID, "text", e.Text)
	}
	return nil
}

func (r LogRenderer) Close() error { return nil }

func (r LogRenderer) log() *logger.Logger {
	if r.Log == nil {
		return logger.Nop()
	}
	return r.Log
}

// Frame is one Render call captured by FakeRenderer.
type Frame struct {
	Screen   ScreenName
	Full     bool
	Elements []Element
}

// FakeRenderer records frames for tests.
type FakeRenderer struct {
	InitErr error

	mu     sync.Mutex
	frames []Frame
	closed bool
}

var errRendererClosed = errors.New("renderer closed")

func (r *FakeRenderer) Init(message.UIConfig) error { return r.InitErr }

func (r *FakeRenderer) Render(screen ScreenName, full bool, elems []Element) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errRendererClosed
	}
	r.frames = append(r.frames, Frame{Screen: screen, Full: full, Elements: append([]Element(nil), elems...)})
	return nil
}

func (r *FakeRenderer) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Frames returns a copy of the captured frames.
func (r *FakeRenderer) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

// Last returns the most recent frame.
func (r *FakeRenderer) Last() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Frame{}, false
	}
	return r.frames[len(r.frames)-1], true
}
