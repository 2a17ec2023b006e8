// Package logic contains the pure decision logic: the fan controller and
// the reading filter. It has no I/O; time is always passed in.
package logic

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// OverrideMode is the fan override tri-state.
type OverrideMode int32

const (
	Auto OverrideMode = iota
	ManualOn
	ManualOff
)

var overrideNames = [...]string{
	Auto:      "AUTO",
	ManualOn:  "MANUAL_ON",
	ManualOff: "MANUAL_OFF",
}

func (m OverrideMode) String() string {
	if !m.Valid() {
		return "UNKNOWN"
	}
	return overrideNames[m]
}

// Valid reports whether m is one of the three modes.
func (m OverrideMode) Valid() bool {
	return m >= Auto && m <= ManualOff
}

// ParseOverrideMode accepts "auto", "manual_on" and "manual_off" in any case.
func ParseOverrideMode(s string) (OverrideMode, error) {
	for i, n := range overrideNames {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return OverrideMode(i), nil
		}
	}
	return Auto, fmt.Errorf("unknown fan override %q", s)
}

// FanState combines the override mode with the physical fan output.
type FanState int32

const (
	AutoOff FanState = iota
	AutoOn
	ManualOffState
	ManualOnState
)

var fanStateNames = [...]string{
	AutoOff:        "AUTO_OFF",
	AutoOn:         "AUTO_ON",
	ManualOffState: "MANUAL_OFF",
	ManualOnState:  "MANUAL_ON",
}

func (s FanState) String() string {
	if s < AutoOff || s > ManualOnState {
		return "UNKNOWN"
	}
	return fanStateNames[s]
}

// On reports whether the fan is running in this state.
func (s FanState) On() bool {
	return s == AutoOn || s == ManualOnState
}

// Override returns the override mode that produces s.
func (s FanState) Override() OverrideMode {
	switch s {
	case ManualOnState:
		return ManualOn
	case ManualOffState:
		return ManualOff
	}
	return Auto
}

// FixedScale converts whole percent and degrees into the hundredths used
// for humidity and temperature readings and thresholds.
const FixedScale = 100

// PercentToFixed converts a whole-percent threshold to hundredths.
func PercentToFixed(p int) int { return p * FixedScale }

// FixedToPercent converts hundredths back to whole percent, truncating.
func FixedToPercent(v int) int { return v / FixedScale }

// Bounds is an inclusive range.
type Bounds struct {
	Lo, Hi int
}

// Contains reports whether v lies within b.
func (b Bounds) Contains(v int) bool { return v >= b.Lo && v <= b.Hi }

// Clamp limits v to b.
func (b Bounds) Clamp(v int) int {
	if v < b.Lo {
		return b.Lo
	}
	if v > b.Hi {
		return b.Hi
	}
	return v
}

// ErrOutOfBounds is returned when a threshold is rejected.
var ErrOutOfBounds = errors.New("threshold out of bounds")

// FanOutput drives the physical fan.
type FanOutput interface {
	SetFan(on bool) error
}

// FanSettings seeds a FanController. Humidity values are hundredths of a percent.
type FanSettings struct {
	Override          OverrideMode
	RelHumThreshold   int
	Co2Threshold      int
	FanOnOverrideTime time.Duration
	RelHumBounds      Bounds
	Co2Bounds         Bounds
}

// FanControlState is the aggregate guarded by the controller mutex.
type FanControlState struct {
	Override          OverrideMode
	PhysicalOn        bool
	ManualOnExpiry    time.Time // zero unless Override == ManualOn
	RelHumThreshold   int
	Co2Threshold      int
	FanOnOverrideTime time.Duration
}

// FanState derives the reported state.
func (s FanControlState) FanState() FanState {
	switch s.Override {
	case ManualOn:
		return ManualOnState
	case ManualOff:
		return ManualOffState
	}
	if s.PhysicalOn {
		return AutoOn
	}
	return AutoOff
}

// Decision is the outcome of one evaluation.
type Decision struct {
	On       bool
	Wrote    bool // a physical write was issued
	Reverted bool // ManualOn expired and the mode fell back to Auto
	State    FanState
}

// FanController is the single authority over the physical fan. Override
// requests, threshold changes and periodic re-evaluation all go through it.
type FanController struct {
	out FanOutput

	// apply serializes decide-then-write so physical writes happen in order.
	// mu guards st and is never held across out.SetFan.
	apply sync.Mutex
	mu    sync.Mutex

	st         FanControlState
	rhBounds   Bounds
	co2Bounds  Bounds
	written    bool
	publishNow bool
	lastRH     int
	lastCo2    int
}

// NewFanController creates a controller. The first evaluation always writes
// the output so hardware and state agree.
func NewFanController(out FanOutput, cfg FanSettings) *FanController {
	c := &FanController{
		out:       out,
		rhBounds:  cfg.RelHumBounds,
		co2Bounds: cfg.Co2Bounds,
		st: FanControlState{
			Override:          cfg.Override,
			RelHumThreshold:   cfg.RelHumThreshold,
			Co2Threshold:      cfg.Co2Threshold,
			FanOnOverrideTime: cfg.FanOnOverrideTime,
		},
	}
	return c
}

// UpdateFanState evaluates the decision against new filtered readings.
// Humidity is in hundredths of a percent, CO2 in ppm.
func (c *FanController) UpdateFanState(now time.Time, filteredRH, filteredCo2 int) (Decision, error) {
	c.apply.Lock()
	defer c.apply.Unlock()

	c.mu.Lock()
	c.lastRH, c.lastCo2 = filteredRH, filteredCo2
	c.mu.Unlock()

	return c.evaluate(now)
}

// Reevaluate runs the decision against the most recent readings. Used after
// an override or threshold change.
func (c *FanController) Reevaluate(now time.Time) (Decision, error) {
	c.apply.Lock()
	defer c.apply.Unlock()
	return c.evaluate(now)
}

// evaluate must be called with c.apply held.
func (c *FanController) evaluate(now time.Time) (Decision, error) {
	c.mu.Lock()
	var d Decision
	if c.st.Override == ManualOn && !now.Before(c.st.ManualOnExpiry) {
		c.st.Override = Auto
		c.st.ManualOnExpiry = time.Time{}
		c.publishNow = true
		d.Reverted = true
	}
	d.On = decide(c.st, c.lastRH, c.lastCo2)
	need := !c.written || d.On != c.st.PhysicalOn
	c.mu.Unlock()

	if need {
		if err := c.out.SetFan(d.On); err != nil {
			c.mu.Lock()
			d.State = c.st.FanState()
			c.mu.Unlock()
			return d, fmt.Errorf("set fan %v: %w", d.On, err)
		}
		d.Wrote = true
	}

	c.mu.Lock()
	if need {
		if c.written && c.st.PhysicalOn != d.On {
			c.publishNow = true
		}
		c.st.PhysicalOn = d.On
		c.written = true
	}
	d.State = c.st.FanState()
	c.mu.Unlock()
	return d, nil
}

func decide(st FanControlState, rh, co2 int) bool {
	switch st.Override {
	case ManualOff:
		return false
	case ManualOn:
		return true
	}
	return rh > st.RelHumThreshold || co2 > st.Co2Threshold
}

// SetOverride changes the override mode. Entering ManualOn (re)starts the
// expiry countdown; leaving it clears the expiry. The caller re-evaluates.
func (c *FanController) SetOverride(now time.Time, mode OverrideMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid override mode %d", mode)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode == ManualOn {
		c.st.ManualOnExpiry = now.Add(c.st.FanOnOverrideTime)
	} else {
		c.st.ManualOnExpiry = time.Time{}
	}
	if mode != c.st.Override || mode == ManualOn {
		c.publishNow = true
	}
	c.st.Override = mode
	return nil
}

// SetThresholds updates whichever thresholds are non-nil. Humidity is in
// hundredths of a percent. A value outside its bounds is rejected without
// affecting the other.
func (c *FanController) SetThresholds(relHum, co2 *int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if relHum != nil {
		switch {
		case !c.rhBounds.Contains(*relHum):
			errs = append(errs, fmt.Errorf("rel hum %d not in [%d,%d]: %w", *relHum, c.rhBounds.Lo, c.rhBounds.Hi, ErrOutOfBounds))
		case *relHum != c.st.RelHumThreshold:
			c.st.RelHumThreshold = *relHum
			c.publishNow = true
		}
	}
	if co2 != nil {
		switch {
		case !c.co2Bounds.Contains(*co2):
			errs = append(errs, fmt.Errorf("co2 %d not in [%d,%d]: %w", *co2, c.co2Bounds.Lo, c.co2Bounds.Hi, ErrOutOfBounds))
		case *co2 != c.st.Co2Threshold:
			c.st.Co2Threshold = *co2
			c.publishNow = true
		}
	}
	return errors.Join(errs...)
}

// SetFanOnOverrideTime changes the ManualOn duration used on the next entry.
func (c *FanController) SetFanOnOverrideTime(d time.Duration) {
	c.mu.Lock()
	c.st.FanOnOverrideTime = d
	c.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (c *FanController) Snapshot() FanControlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// TakePublishNow reports whether a state publish should happen immediately,
// clearing the request.
func (c *FanController) TakePublishNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.publishNow
	c.publishNow = false
	return p
}
