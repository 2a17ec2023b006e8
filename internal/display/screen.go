// Package display runs the UI worker: screen navigation, backlight
// dimming and the operator's threshold and override edits.
//
// Drawing is delegated to a Renderer. The package only decides which
// screen is shown and which of its elements need redrawing.
package display

import "slices"

// ScreenName identifies one screen.
type ScreenName int

const (
	Splash ScreenName = iota
	Status
	Thresholds
	FanControl
	ShutdownReboot
	ConfirmReboot
	ConfirmShutdown
	Blank
)

var screenNames = [...]string{
	Splash:          "Splash",
	Status:          "Status",
	Thresholds:      "Thresholds",
	FanControl:      "FanControl",
	ShutdownReboot:  "ShutdownReboot",
	ConfirmReboot:   "ConfirmReboot",
	ConfirmShutdown: "ConfirmShutdown",
	Blank:           "Blank",
}

func (s ScreenName) String() string {
	if s < 0 || int(s) >= len(screenNames) {
		return "Unknown"
	}
	return screenNames[s]
}

// ScreenEvent is an input to the navigator.
type ScreenEvent int

const (
	EventNone ScreenEvent = iota
	Button1
	Button2
	Button3
	Button4
	RelHumUp
	RelHumDown
	Co2Up
	Co2Down
	FanOn
	FanAuto
	FanOff
	Reboot
	Shutdown
	Confirm
	Cancel
	BacklightOff
	BacklightOn
)

var eventNames = [...]string{
	EventNone:    "None",
	Button1:      "Button1",
	Button2:      "Button2",
	Button3:      "Button3",
	Button4:      "Button4",
	RelHumUp:     "RelHumUp",
	RelHumDown:   "RelHumDown",
	Co2Up:        "Co2Up",
	Co2Down:      "Co2Down",
	FanOn:        "FanOn",
	FanAuto:      "FanAuto",
	FanOff:       "FanOff",
	Reboot:       "Reboot",
	Shutdown:     "Shutdown",
	Confirm:      "Confirm",
	Cancel:       "Cancel",
	BacklightOff: "BacklightOff",
	BacklightOn:  "BacklightOn",
}

func (e ScreenEvent) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "Unknown"
	}
	return eventNames[e]
}

// Element ids shared by screens and the model.
const (
	ElemTitle           = "title"
	ElemTemperature     = "temperature"
	ElemRelHumidity     = "relhumidity"
	ElemCo2             = "co2"
	ElemFanState        = "fanstate"
	ElemNetState        = "netstate"
	ElemRelHumThreshold = "relhumthreshold"
	ElemCo2Threshold    = "co2threshold"
	ElemOverride        = "override"
	ElemReboot          = "reboot"
	ElemShutdown        = "shutdown"
	ElemConfirm         = "confirm"
	ElemCancel          = "cancel"
	ElemPrompt          = "prompt"
)

// Element is one logical piece of a screen.
type Element struct {
	ID   string
	Text string
}

// Dirty lists what must be redrawn. Full overrides Elements.
type Dirty struct {
	Full     bool
	Elements []string
}

// Empty reports whether nothing needs redrawing.
func (d Dirty) Empty() bool { return !d.Full && len(d.Elements) == 0 }

// Merge accumulates o into d.
func (d *Dirty) Merge(o Dirty) {
	if o.Full {
		d.Full = true
	}
	for _, id := range o.Elements {
		if !slices.Contains(d.Elements, id) {
			d.Elements = append(d.Elements, id)
		}
	}
}
