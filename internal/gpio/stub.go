//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Line is not available on non-Linux platforms.
type Line struct{}

// NewOutputLine returns an error on non-Linux platforms.
func NewOutputLine(chip string, pin int) (*Line, error) { return nil, errUnsupported }

func (l *Line) Set(bool) error { return errUnsupported }
func (l *Line) Close() error   { return nil }

// RealButtons is not available on non-Linux platforms.
type RealButtons struct{}

// NewButtons returns an error on non-Linux platforms.
func NewButtons(chip string, pins []int) (*RealButtons, error) { return nil, errUnsupported }

func (b *RealButtons) Presses() <-chan int { return nil }
func (b *RealButtons) Close() error        { return nil }
