// Package gpio drives the appliance's GPIO lines: the fan relay, the
// backlight switch and the four front panel buttons.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"sync"
	"time"
)

// Pin defaults (BCM numbering).
const (
	PinFan       = 4
	PinBacklight = 18
)

// ButtonPins are the front panel buttons, in Button1..4 order.
var ButtonPins = []int{17, 22, 23, 27}

// Debounce is the minimum spacing of presses on one button.
const Debounce = 50 * time.Millisecond

// Output is a single digital output line.
type Output interface {
	Set(on bool) error
	// Close drives the line inactive and releases it.
	Close() error
}

// Buttons delivers front panel presses as 1-based button numbers.
type Buttons interface {
	Presses() <-chan int
	Close() error
}

// Relay switches the fan.
type Relay struct {
	out       Output
	activeLow bool

	mu    sync.Mutex
	state *bool
}

// NewRelay wraps out. Boards that energise the relay on a low level set
// activeLow.
func NewRelay(out Output, activeLow bool) *Relay {
	return &Relay{out: out, activeLow: activeLow}
}

// SetFan drives the relay. Repeated writes of the same state are skipped.
func (r *Relay) SetFan(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != nil && *r.state == on {
		return nil
	}
	if err := r.out.Set(on != r.activeLow); err != nil {
		return err
	}
	r.state = &on
	return nil
}

// On reports the last state written, false before the first write.
func (r *Relay) On() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != nil && *r.state
}

// Close turns the fan off and releases the line.
func (r *Relay) Close() error {
	if err := r.SetFan(false); err != nil {
		return err
	}
	return r.out.Close()
}

// Switch is an on/off backlight. Any non-zero level lights it.
type Switch struct {
	out Output
}

// NewSwitch wraps out.
func NewSwitch(out Output) *Switch { return &Switch{out: out} }

// SetLevel switches the backlight on for level > 0.
func (s *Switch) SetLevel(level int) error { return s.out.Set(level > 0) }

// Close releases the line.
func (s *Switch) Close() error { return s.out.Close() }

// debouncer drops presses closer together than the debounce window.
type debouncer struct {
	window time.Duration
	mu     sync.Mutex
	last   map[int]time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, last: make(map[int]time.Time)}
}

func (d *debouncer) accept(button int, at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.last[button]; ok && at.Sub(prev) < d.window {
		return false
	}
	d.last[button] = at
	return true
}
