package display

import (
	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
)

// Result is the outcome of one navigator event.
type Result struct {
	Screen  ScreenName
	Dirty   Dirty
	FanEdit bool                 // thresholds or override changed
	Restart *message.RestartType // operator confirmed a restart
}

// Navigator is the screen state machine. It is not safe for concurrent use.
type Navigator struct {
	cur   ScreenName
	prev  ScreenName // shown again when the backlight comes back
	model *UIModel
}

// NewNavigator starts on the splash screen.
func NewNavigator(model *UIModel) *Navigator {
	return &Navigator{cur: Splash, prev: Status, model: model}
}

// Screen returns the current screen.
func (n *Navigator) Screen() ScreenName { return n.cur }

// Model returns the model the navigator edits.
func (n *Navigator) Model() *UIModel { return n.model }

// Handle applies ev and reports what changed.
func (n *Navigator) Handle(ev ScreenEvent) Result {
	if ev == EventNone {
		return n.stay(nil)
	}
	if n.cur == Blank {
		if ev == BacklightOn {
			return n.enter(n.prev)
		}
		return n.stay(nil)
	}
	switch ev {
	case BacklightOff:
		n.prev = n.cur
		if n.prev == Splash {
			n.prev = Status
		}
		return n.enter(Blank)
	case BacklightOn:
		return n.stay(nil)
	case Button1:
		return n.enter(Status)
	case Button2:
		return n.enter(Thresholds)
	case Button3:
		return n.enter(FanControl)
	case Button4:
		return n.enter(ShutdownReboot)
	}
	if n.cur == Splash {
		return n.enter(Status)
	}

	switch n.cur {
	case Thresholds:
		return n.thresholds(ev)
	case FanControl:
		return n.fanControl(ev)
	case ShutdownReboot:
		switch ev {
		case Reboot:
			return n.enter(ConfirmReboot)
		case Shutdown:
			return n.enter(ConfirmShutdown)
		}
	case ConfirmReboot, ConfirmShutdown:
		switch ev {
		case Cancel:
			return n.enter(ShutdownReboot)
		case Confirm:
			rt := message.Reboot
			if n.cur == ConfirmShutdown {
				rt = message.Shutdown
			}
			r := n.stay(nil)
			r.Restart = &rt
			return r
		}
	}
	return n.stay(nil)
}

func (n *Navigator) thresholds(ev ScreenEvent) Result {
	var changed bool
	var id string
	switch ev {
	case RelHumUp:
		changed, id = n.model.stepRelHum(RelHumStep), ElemRelHumThreshold
	case RelHumDown:
		changed, id = n.model.stepRelHum(-RelHumStep), ElemRelHumThreshold
	case Co2Up:
		changed, id = n.model.stepCo2(Co2Step), ElemCo2Threshold
	case Co2Down:
		changed, id = n.model.stepCo2(-Co2Step), ElemCo2Threshold
	}
	if !changed {
		return n.stay(nil)
	}
	r := n.stay([]string{id})
	r.FanEdit = true
	return r
}

func (n *Navigator) fanControl(ev ScreenEvent) Result {
	var mode logic.OverrideMode
	switch ev {
	case FanOn:
		mode = logic.ManualOn
	case FanAuto:
		mode = logic.Auto
	case FanOff:
		mode = logic.ManualOff
	default:
		return n.stay(nil)
	}
	if !n.model.setOverride(mode) {
		return n.stay(nil)
	}
	r := n.stay([]string{ElemOverride})
	r.FanEdit = true
	return r
}

// Refresh marks the model elements in ids dirty if the current screen
// shows them.
func (n *Navigator) Refresh(ids []string) Dirty {
	var d Dirty
	if len(ids) == 0 {
		return d
	}
	for _, e := range ScreenFor(n.cur).Elements(n.model) {
		for _, id := range ids {
			if e.ID == id {
				d.Elements = append(d.Elements, id)
				break
			}
		}
	}
	return d
}

func (n *Navigator) enter(s ScreenName) Result {
	n.cur = s
	return Result{Screen: s, Dirty: Dirty{Full: true}}
}

func (n *Navigator) stay(ids []string) Result {
	return Result{Screen: n.cur, Dirty: Dirty{Elements: ids}}
}
