package gpio

import (
	"sync"
	"time"
)

// FakeOutput records writes.
type FakeOutput struct {
	// Err, if set, is returned by Set.
	Err error

	mu     sync.Mutex
	writes []bool
	closed bool
}

func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.writes = append(f.writes, on)
	return nil
}

func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Writes returns a copy of every value written.
func (f *FakeOutput) Writes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.writes...)
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeButtons lets tests press buttons. Presses go through the same
// debouncing as the hardware handler, using the supplied timestamps.
type FakeButtons struct {
	presses chan int
	deb     *debouncer
}

// NewFakeButtons creates an idle button set.
func NewFakeButtons() *FakeButtons {
	return &FakeButtons{presses: make(chan int, 8), deb: newDebouncer(Debounce)}
}

// Press emits button n (1-based) at the given time. It reports whether the
// press survived debouncing.
func (f *FakeButtons) Press(n int, at time.Time) bool {
	if !f.deb.accept(n, at) {
		return false
	}
	f.presses <- n
	return true
}

func (f *FakeButtons) Presses() <-chan int { return f.presses }
func (f *FakeButtons) Close() error        { return nil }
