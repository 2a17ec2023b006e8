package display

import (
	"sync"
	"time"
)

// Backlight levels.
const (
	FullBrightness = 1023
	DimDuration    = 10 * time.Second
)

// Level is the coarse backlight state.
type Level int

const (
	LevelOn Level = iota
	LevelDimming
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelOn:
		return "ON"
	case LevelDimming:
		return "DIMMING"
	case LevelOff:
		return "OFF"
	}
	return "UNKNOWN"
}

// BacklightDriver sets the physical backlight, 0..FullBrightness.
type BacklightDriver interface {
	SetLevel(level int) error
}

// Backlight dims the screen after a period without input: full brightness
// until the timeout, then a linear fade to off over DimDuration.
type Backlight struct {
	drv     BacklightDriver
	timeout time.Duration

	mu        sync.Mutex
	lastInput time.Time
	level     int
	written   bool
}

// NewBacklight starts fully on at now. drv may be nil.
func NewBacklight(drv BacklightDriver, timeout time.Duration, now time.Time) *Backlight {
	return &Backlight{drv: drv, timeout: timeout, lastInput: now, level: FullBrightness}
}

// InputEvent restarts the idle timer.
func (b *Backlight) InputEvent(now time.Time) {
	b.mu.Lock()
	b.lastInput = now
	b.mu.Unlock()
}

// Update recomputes the level for now and writes it to the driver when
// it changed.
func (b *Backlight) Update(now time.Time) (Level, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.apply(levelAt(now.Sub(b.lastInput), b.timeout))
}

// SetBrightness forces the backlight fully on or off. Dimming is ignored.
func (b *Backlight) SetBrightness(now time.Time, l Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch l {
	case LevelOn:
		b.lastInput = now
		_, err := b.apply(FullBrightness)
		return err
	case LevelOff:
		b.lastInput = now.Add(-b.timeout - DimDuration)
		_, err := b.apply(0)
		return err
	}
	return nil
}

// Brightness reports the current coarse level.
func (b *Backlight) Brightness() Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return levelOf(b.level)
}

// Value returns the raw level last written.
func (b *Backlight) Value() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

func (b *Backlight) apply(v int) (Level, error) {
	if v == b.level && b.written {
		return levelOf(v), nil
	}
	b.level = v
	b.written = true
	if b.drv != nil {
		if err := b.drv.SetLevel(v); err != nil {
			b.written = false
			return levelOf(v), err
		}
	}
	return levelOf(v), nil
}

func levelAt(idle, timeout time.Duration) int {
	switch {
	case idle < timeout:
		return FullBrightness
	case idle >= timeout+DimDuration:
		return 0
	}
	dimming := idle - timeout
	return int(int64(FullBrightness) * int64(DimDuration-dimming) / int64(DimDuration))
}

func levelOf(v int) Level {
	switch {
	case v >= FullBrightness:
		return LevelOn
	case v <= 0:
		return LevelOff
	}
	return LevelDimming
}
