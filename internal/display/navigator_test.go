package display

import (
	"slices"
	"testing"

	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
)

func newModel() *UIModel {
	return &UIModel{
		Override:        logic.Auto,
		RelHumThreshold: 70,
		Co2Threshold:    999,
		RelHumBounds:    logic.Bounds{Lo: 10, Hi: 95},
		Co2Bounds:       logic.Bounds{Lo: 200, Hi: 2000},
	}
}

func TestNavigatorTransitions(t *testing.T) {
	tests := []struct {
		name   string
		events []ScreenEvent
		want   ScreenName
	}{
		{"splash any input", []ScreenEvent{RelHumUp}, Status},
		{"splash button", []ScreenEvent{Button3}, FanControl},
		{"none is ignored", []ScreenEvent{EventNone}, Splash},
		{"button2", []ScreenEvent{Button1, Button2}, Thresholds},
		{"button4", []ScreenEvent{Button1, Button4}, ShutdownReboot},
		{"reboot asks", []ScreenEvent{Button4, Reboot}, ConfirmReboot},
		{"shutdown asks", []ScreenEvent{Button4, Shutdown}, ConfirmShutdown},
		{"cancel returns", []ScreenEvent{Button4, Shutdown, Cancel}, ShutdownReboot},
		{"confirm stays", []ScreenEvent{Button4, Reboot, Confirm}, ConfirmReboot},
		{"button escapes confirm", []ScreenEvent{Button4, Reboot, Button1}, Status},
		{"unrelated event stays", []ScreenEvent{Button1, Confirm}, Status},
		{"backlight off", []ScreenEvent{Button2, BacklightOff}, Blank},
		{"blank ignores buttons", []ScreenEvent{Button2, BacklightOff, Button4}, Blank},
		{"blank restores", []ScreenEvent{Button2, BacklightOff, BacklightOn}, Thresholds},
		{"blank from splash restores status", []ScreenEvent{BacklightOff, BacklightOn}, Status},
		{"backlight on while lit", []ScreenEvent{Button3, BacklightOn}, FanControl},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNavigator(newModel())
			for _, ev := range tt.events {
				n.Handle(ev)
			}
			if n.Screen() != tt.want {
				t.Errorf("screen = %s, want %s", n.Screen(), tt.want)
			}
		})
	}
}

func TestNavigatorEnterIsFullRedraw(t *testing.T) {
	n := NewNavigator(newModel())
	r := n.Handle(Button2)
	if !r.Dirty.Full || r.Screen != Thresholds {
		t.Errorf("got %+v", r)
	}
	r = n.Handle(Confirm)
	if !r.Dirty.Empty() {
		t.Errorf("ignored event dirtied %+v", r.Dirty)
	}
}

func TestNavigatorThresholdEdits(t *testing.T) {
	m := newModel()
	n := NewNavigator(m)
	n.Handle(Button2)

	r := n.Handle(RelHumUp)
	if !r.FanEdit || r.Dirty.Full || !slices.Equal(r.Dirty.Elements, []string{ElemRelHumThreshold}) {
		t.Errorf("RelHumUp = %+v", r)
	}
	if m.RelHumThreshold != 71 {
		t.Errorf("rh = %d", m.RelHumThreshold)
	}

	r = n.Handle(Co2Down)
	if !slices.Equal(r.Dirty.Elements, []string{ElemCo2Threshold}) || m.Co2Threshold != 949 {
		t.Errorf("Co2Down = %+v, co2 = %d", r, m.Co2Threshold)
	}

	m.RelHumThreshold = 95
	if r := n.Handle(RelHumUp); r.FanEdit || !r.Dirty.Empty() || m.RelHumThreshold != 95 {
		t.Errorf("edit past bound: %+v rh=%d", r, m.RelHumThreshold)
	}
	m.Co2Threshold = 220
	n.Handle(Co2Down)
	if m.Co2Threshold != 200 {
		t.Errorf("co2 clamp = %d", m.Co2Threshold)
	}
}

func TestNavigatorThresholdEventsOnlyOnThresholdScreen(t *testing.T) {
	m := newModel()
	n := NewNavigator(m)
	n.Handle(Button1)
	if r := n.Handle(RelHumUp); r.FanEdit || m.RelHumThreshold != 70 {
		t.Errorf("edit on status screen: %+v", r)
	}
}

func TestNavigatorOverride(t *testing.T) {
	m := newModel()
	n := NewNavigator(m)
	n.Handle(Button3)

	if r := n.Handle(FanAuto); r.FanEdit {
		t.Error("same mode reported an edit")
	}
	r := n.Handle(FanOn)
	if !r.FanEdit || m.Override != logic.ManualOn || !slices.Equal(r.Dirty.Elements, []string{ElemOverride}) {
		t.Errorf("FanOn = %+v override=%s", r, m.Override)
	}
	n.Handle(FanOff)
	if m.Override != logic.ManualOff {
		t.Errorf("override = %s", m.Override)
	}
}

func TestNavigatorConfirmEmitsRestart(t *testing.T) {
	tests := []struct {
		choice ScreenEvent
		want   message.RestartType
	}{
		{Reboot, message.Reboot},
		{Shutdown, message.Shutdown},
	}
	for _, tt := range tests {
		t.Run(tt.choice.String(), func(t *testing.T) {
			n := NewNavigator(newModel())
			n.Handle(Button4)
			if r := n.Handle(tt.choice); r.Restart != nil {
				t.Fatal("restart before confirm")
			}
			r := n.Handle(Confirm)
			if r.Restart == nil || *r.Restart != tt.want {
				t.Errorf("restart = %v, want %s", r.Restart, tt.want)
			}
		})
	}
}

func TestNavigatorRefreshOnlyVisibleElements(t *testing.T) {
	n := NewNavigator(newModel())
	n.Handle(Button1)
	d := n.Refresh([]string{ElemCo2, ElemRelHumThreshold})
	if !slices.Equal(d.Elements, []string{ElemCo2}) {
		t.Errorf("status refresh = %v", d.Elements)
	}
	n.Handle(Button2)
	d = n.Refresh([]string{ElemCo2, ElemRelHumThreshold})
	if !slices.Equal(d.Elements, []string{ElemRelHumThreshold}) {
		t.Errorf("thresholds refresh = %v", d.Elements)
	}
}

func TestModelApplyCo2State(t *testing.T) {
	m := newModel()
	ids := m.ApplyCo2State(message.Co2State{Co2: message.Int32(500)})
	if len(ids) != 4 {
		t.Errorf("first reading should dirty every reading element, got %v", ids)
	}
	ids = m.ApplyCo2State(message.Co2State{Co2: message.Int32(500), Temperature: message.Int32(2150)})
	if !slices.Equal(ids, []string{ElemTemperature}) {
		t.Errorf("ids = %v", ids)
	}
	el := statusScreen{}.Elements(m)
	if el[0].Text != "21.5°C" {
		t.Errorf("temperature text = %q", el[0].Text)
	}
}

func TestDirtyMerge(t *testing.T) {
	var d Dirty
	d.Merge(Dirty{Elements: []string{ElemCo2}})
	d.Merge(Dirty{Elements: []string{ElemCo2, ElemFanState}})
	if !slices.Equal(d.Elements, []string{ElemCo2, ElemFanState}) || d.Full {
		t.Errorf("merged = %+v", d)
	}
	d.Merge(Dirty{Full: true})
	if !d.Full {
		t.Error("full lost")
	}
}

func TestModelOverrideFollowsFanState(t *testing.T) {
	tests := []struct {
		state logic.FanState
		want  logic.OverrideMode
	}{
		{logic.AutoOff, logic.Auto},
		{logic.AutoOn, logic.Auto},
		{logic.ManualOnState, logic.ManualOn},
		{logic.ManualOffState, logic.ManualOff},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			m := newModel()
			m.Override = logic.ManualOn
			m.ApplyCo2State(message.Co2State{FanState: message.Fan(tt.state)})
			if m.Override != tt.want {
				t.Errorf("override = %s, want %s", m.Override, tt.want)
			}
		})
	}
}

func TestModelPendingOverrideEditWins(t *testing.T) {
	m := newModel()
	if !m.setOverride(logic.ManualOn) {
		t.Fatal("setOverride reported no change")
	}
	m.ApplyCo2State(message.Co2State{FanState: message.Fan(logic.AutoOff)})
	if m.Override != logic.ManualOn {
		t.Errorf("stale fan state replaced an unsent edit: override = %s", m.Override)
	}
}

func TestModelEditCarriesOnlyChangedFields(t *testing.T) {
	m := newModel()
	m.Override = logic.ManualOn

	if _, ok := m.takeEdit(); ok {
		t.Fatal("no edit expected before any change")
	}
	m.stepRelHum(RelHumStep)
	fc, ok := m.takeEdit()
	if !ok || fc.RelHumFanOnThreshold == nil || *fc.RelHumFanOnThreshold != 71 {
		t.Fatalf("edit = %+v", fc)
	}
	if fc.FanOverride != nil || fc.Co2FanOnThreshold != nil || fc.FanOnOverrideTime != nil {
		t.Errorf("threshold edit carried other fields: %+v", fc)
	}
	if _, ok := m.takeEdit(); ok {
		t.Error("takeEdit should clear the edit")
	}

	m.stepCo2(Co2Step)
	m.setOverride(logic.ManualOff)
	fc, _ = m.takeEdit()
	if fc.Co2FanOnThreshold == nil || *fc.Co2FanOnThreshold != 1049 || fc.FanOverride == nil || *fc.FanOverride != logic.ManualOff {
		t.Errorf("combined edit = %+v", fc)
	}
	if fc.RelHumFanOnThreshold != nil {
		t.Error("unchanged humidity threshold should not be sent")
	}
}
