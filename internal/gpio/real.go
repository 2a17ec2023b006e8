//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "co2mon"

// Line is an output line on a GPIO character device.
type Line struct {
	line *gpiocdev.Line
}

// NewOutputLine requests pin on chip as an output driven low.
func NewOutputLine(chip string, pin int) (*Line, error) {
	l, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &Line{line: l}, nil
}

// Set drives the line.
func (l *Line) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

// Close drives the line low and reconfigures it as an input with pull-down
// (matching Pi boot defaults) so nothing is held energised across a reboot.
func (l *Line) Close() error {
	var errs []error
	if err := l.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive low: %w", err))
	}
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure: %w", err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	return errors.Join(errs...)
}

// RealButtons watches the button lines for falling edges. The buttons pull
// the line low against the internal pull-up.
type RealButtons struct {
	lines   *gpiocdev.Lines
	presses chan int
	index   map[int]int
	deb     *debouncer
}

// NewButtons requests pins on chip. Presses are numbered from 1 in pin order.
func NewButtons(chip string, pins []int) (*RealButtons, error) {
	b := &RealButtons{
		presses: make(chan int, 8),
		index:   make(map[int]int, len(pins)),
		deb:     newDebouncer(Debounce),
	}
	for i, p := range pins {
		b.index[p] = i + 1
	}
	lines, err := gpiocdev.RequestLines(chip, pins,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(Debounce),
		gpiocdev.WithConsumer(consumer),
		gpiocdev.WithEventHandler(b.handle))
	if err != nil {
		return nil, fmt.Errorf("request button pins %v: %w", pins, err)
	}
	b.lines = lines
	return b, nil
}

func (b *RealButtons) handle(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	n, ok := b.index[evt.Offset]
	if !ok || !b.deb.accept(n, time.Now()) {
		return
	}
	select {
	case b.presses <- n:
	default:
	}
}

// Presses returns the press channel.
func (b *RealButtons) Presses() <-chan int { return b.presses }

// Close releases the lines.
func (b *RealButtons) Close() error {
	if err := b.lines.Close(); err != nil {
		return fmt.Errorf("close buttons: %w", err)
	}
	return nil
}
