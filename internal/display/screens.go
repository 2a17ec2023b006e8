package display

import (
	"fmt"
	"strings"
)

// Screen is one screen variant. It owns its element layout.
type Screen interface {
	Name() ScreenName
	Elements(m *UIModel) []Element
}

type splashScreen struct{}

func (splashScreen) Name() ScreenName { return Splash }
func (splashScreen) Elements(*UIModel) []Element {
	return []Element{{ID: ElemTitle, Text: "CO2 Monitor"}}
}

type statusScreen struct{}

func (statusScreen) Name() ScreenName { return Status }
func (statusScreen) Elements(m *UIModel) []Element {
	if !m.HasReading {
		return []Element{
			{ID: ElemTemperature, Text: "--"},
			{ID: ElemRelHumidity, Text: "--"},
			{ID: ElemCo2, Text: "--"},
			{ID: ElemFanState, Text: "--"},
			{ID: ElemNetState, Text: netText(m)},
		}
	}
	return []Element{
		{ID: ElemTemperature, Text: formatTemperature(m.Temperature)},
		{ID: ElemRelHumidity, Text: formatRelHumidity(m.RelHumidity)},
		{ID: ElemCo2, Text: fmt.Sprintf("%d ppm", m.Co2)},
		{ID: ElemFanState, Text: fanText(m)},
		{ID: ElemNetState, Text: netText(m)},
	}
}

type thresholdsScreen struct{}

func (thresholdsScreen) Name() ScreenName { return Thresholds }
func (thresholdsScreen) Elements(m *UIModel) []Element {
	return []Element{
		{ID: ElemTitle, Text: "Fan on above"},
		{ID: ElemRelHumThreshold, Text: fmt.Sprintf("%d%%", m.RelHumThreshold)},
		{ID: ElemCo2Threshold, Text: fmt.Sprintf("%d ppm", m.Co2Threshold)},
	}
}

type fanControlScreen struct{}

func (fanControlScreen) Name() ScreenName { return FanControl }
func (fanControlScreen) Elements(m *UIModel) []Element {
	return []Element{
		{ID: ElemOverride, Text: m.Override.String()},
		{ID: ElemFanState, Text: fanText(m)},
	}
}

type shutdownRebootScreen struct{}

func (shutdownRebootScreen) Name() ScreenName { return ShutdownReboot }
func (shutdownRebootScreen) Elements(*UIModel) []Element {
	return []Element{
		{ID: ElemReboot, Text: "Reboot"},
		{ID: ElemShutdown, Text: "Shutdown"},
	}
}

type confirmScreen struct {
	name   ScreenName
	prompt string
}

func (s confirmScreen) Name() ScreenName { return s.name }
func (s confirmScreen) Elements(*UIModel) []Element {
	return []Element{
		{ID: ElemPrompt, Text: s.prompt},
		{ID: ElemConfirm, Text: "Confirm"},
		{ID: ElemCancel, Text: "Cancel"},
	}
}

type blankScreen struct{}

func (blankScreen) Name() ScreenName { return Blank }
func (blankScreen) Elements(*UIModel) []Element { return nil }

// screens holds one value per ScreenName.
var screens = map[ScreenName]Screen{
	Splash:          splashScreen{},
	Status:          statusScreen{},
	Thresholds:      thresholdsScreen{},
	FanControl:      fanControlScreen{},
	ShutdownReboot:  shutdownRebootScreen{},
	ConfirmReboot:   confirmScreen{name: ConfirmReboot, prompt: "Reboot?"},
	ConfirmShutdown: confirmScreen{name: ConfirmShutdown, prompt: "Shut down?"},
	Blank:           blankScreen{},
}

// ScreenFor returns the screen variant for name.
func ScreenFor(name ScreenName) Screen { return screens[name] }

// pick returns the elements of s named in ids, in layout order.
func pick(s Screen, m *UIModel, ids []string) []Element {
	var out []Element
	for _, e := range s.Elements(m) {
		for _, id := range ids {
			if e.ID == id {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func fanText(m *UIModel) string {
	return strings.ReplaceAll(m.FanState.String(), "_", " ")
}

func netText(m *UIModel) string {
	if !m.HasNet {
		return "NET ?"
	}
	return "NET " + m.NetState.String()
}
