package display

import (
	"fmt"

	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
)

// Threshold edit steps.
const (
	RelHumStep = 1  // percent
	Co2Step    = 50 // ppm
)

// UIModel is the display's copy of appliance state and of the values the
// operator can edit. Thresholds are whole percent and ppm, as on the wire.
type UIModel struct {
	Temperature int // °C ×100
	RelHumidity int // % ×100
	Co2         int
	HasReading  bool
	FanState    logic.FanState

	NetState message.NetStatus
	HasNet   bool

	Override        logic.OverrideMode
	RelHumThreshold int
	Co2Threshold    int
	RelHumBounds    logic.Bounds
	Co2Bounds       logic.Bounds

	edit message.FanConfig // fields changed by the operator, not yet sent
}

// ApplyCo2State copies a Co2State and returns the element ids that changed.
func (m *UIModel) ApplyCo2State(s message.Co2State) []string {
	var changed []string
	set := func(id string, dst *int, src *int32) {
		if src != nil && int(*src) != *dst {
			*dst = int(*src)
			changed = append(changed, id)
		}
	}
	set(ElemTemperature, &m.Temperature, s.Temperature)
	set(ElemRelHumidity, &m.RelHumidity, s.RelHumidity)
	set(ElemCo2, &m.Co2, s.Co2)
	if s.FanState != nil && *s.FanState != m.FanState {
		m.FanState = *s.FanState
		changed = append(changed, ElemFanState)
	}
	if !m.HasReading {
		m.HasReading = true
		changed = []string{ElemTemperature, ElemRelHumidity, ElemCo2, ElemFanState}
	}
	// The fan state tells which override is in force, including after a
	// timed manual override has run out.
	if s.FanState != nil && m.edit.FanOverride == nil {
		if mode := s.FanState.Override(); mode != m.Override {
			m.Override = mode
			changed = append(changed, ElemOverride)
		}
	}
	return changed
}

// ApplyNetState records the network state.
func (m *UIModel) ApplyNetState(s message.NetStatus) []string {
	if m.HasNet && m.NetState == s {
		return nil
	}
	m.NetState, m.HasNet = s, true
	return []string{ElemNetState}
}

// ApplyFanConfig copies the editable fields that are present.
func (m *UIModel) ApplyFanConfig(fc message.FanConfig) []string {
	var changed []string
	if fc.RelHumFanOnThreshold != nil && int(*fc.RelHumFanOnThreshold) != m.RelHumThreshold {
		m.RelHumThreshold = int(*fc.RelHumFanOnThreshold)
		changed = append(changed, ElemRelHumThreshold)
	}
	if fc.Co2FanOnThreshold != nil && int(*fc.Co2FanOnThreshold) != m.Co2Threshold {
		m.Co2Threshold = int(*fc.Co2FanOnThreshold)
		changed = append(changed, ElemCo2Threshold)
	}
	if fc.FanOverride != nil && *fc.FanOverride != m.Override {
		m.Override = *fc.FanOverride
		changed = append(changed, ElemOverride)
	}
	return changed
}

// takeEdit returns the operator's pending changes and clears them. Only
// edited fields are set, so a threshold change never restates the override.
func (m *UIModel) takeEdit() (message.FanConfig, bool) {
	fc := m.edit
	m.edit = message.FanConfig{}
	return fc, !fc.Empty()
}

func (m *UIModel) stepRelHum(delta int) bool {
	v := m.RelHumBounds.Clamp(m.RelHumThreshold + delta)
	if v == m.RelHumThreshold {
		return false
	}
	m.RelHumThreshold = v
	m.edit.RelHumFanOnThreshold = message.Int32(int32(v))
	return true
}

func (m *UIModel) stepCo2(delta int) bool {
	v := m.Co2Bounds.Clamp(m.Co2Threshold + delta)
	if v == m.Co2Threshold {
		return false
	}
	m.Co2Threshold = v
	m.edit.Co2FanOnThreshold = message.Int32(int32(v))
	return true
}

func (m *UIModel) setOverride(mode logic.OverrideMode) bool {
	if m.Override == mode {
		return false
	}
	m.Override = mode
	m.edit.FanOverride = message.Override(mode)
	return true
}

func formatTemperature(v int) string {
	return fmt.Sprintf("%.1f°C", float64(v)/100)
}

func formatRelHumidity(v int) string {
	return fmt.Sprintf("%d%%", logic.FixedToPercent(v))
}
