package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
)

func TestFormatStatePayloadExactJSON(t *testing.T) {
	ts := time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC).Unix()
	s := message.Co2State{
		Co2:         message.Int32(812),
		Temperature: message.Int32(2155),
		RelHumidity: message.Int32(4820),
		FanState:    message.Fan(logic.AutoOn),
		Timestamp:   &ts,
	}

	payload, err := FormatStatePayload(s, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"co2mon":{"timestamp":"2026-02-02T22:18:12Z","co2_ppm":812,"temperature_c":21.55,"relative_humidity":48.2,"fan_state":"AUTO_ON"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatStatePayloadPartial(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	payload, err := FormatStatePayload(message.Co2State{Co2: message.Int32(450)}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"co2mon":{"timestamp":"2026-03-01T08:00:00Z","co2_ppm":450}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestTopics(t *testing.T) {
	if TopicState != "co2mon/state" || TopicSystem != "co2mon/system" || TopicFanSet != "co2mon/fan/set" {
		t.Errorf("unexpected topics: %s %s %s", TopicState, TopicSystem, TopicFanSet)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "RECONNECTED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["system"]["reason"]; ok {
		t.Error("reason should be omitted")
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"system":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "ignored", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("got %s, want raw payload", payload)
	}
}

func TestParseFanCommand(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		override *logic.OverrideMode
		rh       *int32
		co2      *int32
		mins     *int32
		wantErr  bool
	}{
		{name: "override", payload: `{"override":"manual_on"}`, override: message.Override(logic.ManualOn)},
		{name: "upper case", payload: `{"override":"AUTO"}`, override: message.Override(logic.Auto)},
		{name: "thresholds", payload: `{"rh_threshold":65,"co2_threshold":900}`, rh: message.Int32(65), co2: message.Int32(900)},
		{name: "minutes", payload: `{"on_override_minutes":30}`, mins: message.Int32(30)},
		{name: "bad override", payload: `{"override":"sometimes"}`, wantErr: true},
		{name: "zero minutes", payload: `{"on_override_minutes":0}`, wantErr: true},
		{name: "empty", payload: `{}`, wantErr: true},
		{name: "not json", payload: `fan on`, wantErr: true},
	}

	eq := func(a, b *int32) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, err := ParseFanCommand([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", fc)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (fc.FanOverride == nil) != (tt.override == nil) ||
				(fc.FanOverride != nil && *fc.FanOverride != *tt.override) {
				t.Errorf("override = %v, want %v", fc.FanOverride, tt.override)
			}
			if !eq(fc.RelHumFanOnThreshold, tt.rh) || !eq(fc.Co2FanOnThreshold, tt.co2) || !eq(fc.FanOnOverrideTime, tt.mins) {
				t.Errorf("got %+v", fc)
			}
		})
	}
}

func TestParseFanCommandEmptyError(t *testing.T) {
	_, err := ParseFanCommand([]byte(`{}`))
	if !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("err = %v, want ErrEmptyCommand", err)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishState(message.Co2State{Co2: message.Int32(700)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.States(); len(got) != 1 || *got[0].Co2 != 700 {
		t.Errorf("states = %+v", got)
	}
	if len(f.StatePayloads()) != 1 {
		t.Errorf("expected 1 state payload, got %d", len(f.StatePayloads()))
	}
	if got := f.SystemEvents(); len(got) != 1 || got[0].Event != "STARTUP" {
		t.Errorf("system events = %+v", got)
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")
	f.PublishSystemError = errors.New("simulated error")

	if err := f.PublishState(message.Co2State{}); err == nil {
		t.Error("expected state error")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected system error")
	}
	if len(f.States()) != 0 || len(f.SystemEvents()) != 0 {
		t.Error("nothing should be recorded on error")
	}
}

func TestFakePublisherCommand(t *testing.T) {
	f := NewFakePublisher()
	var got []message.FanConfig
	f.OnFanCommand = func(fc message.FanConfig) { got = append(got, fc) }

	if err := f.Command([]byte(`{"override":"manual_off"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Command([]byte(`{}`)); err == nil {
		t.Error("expected error for empty command")
	}
	if len(got) != 1 || *got[0].FanOverride != logic.ManualOff {
		t.Errorf("commands = %+v", got)
	}
}

func TestFakePublisherCloseAndConnected(t *testing.T) {
	f := NewFakePublisher()
	if f.Closed() || f.IsConnected() {
		t.Error("fresh fake should be open and disconnected")
	}
	f.SetConnected(true)
	if !f.IsConnected() {
		t.Error("expected connected")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed() {
		t.Error("expected closed")
	}
}

var (
	_ Publisher        = (*FakePublisher)(nil)
	_ ConnectionStatus = (*FakePublisher)(nil)
	_ Publisher        = (*RealPublisher)(nil)
	_ ConnectionStatus = (*RealPublisher)(nil)
)
