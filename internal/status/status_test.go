package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/co2mon/internal/lifecycle"
	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{SensorType: "k30", Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.SensorType != "k30" {
		t.Errorf("Config.SensorType: got %q", snap.Config.SensorType)
	}
	if snap.Reading != nil || snap.Net != nil {
		t.Error("expected no reading and no net state initially")
	}
	if snap.Ready() {
		t.Error("expected not ready with no workers")
	}
}

func TestUpdateCo2StateMerges(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	now := time.Unix(1_700_000_000, 0)

	tr.UpdateCo2State(message.Co2State{
		Co2:         message.Int32(640),
		Temperature: message.Int32(2130),
		RelHumidity: message.Int32(4800),
		FanState:    message.Fan(logic.AutoOff),
	}, now)
	tr.UpdateCo2State(message.Co2State{Co2: message.Int32(700)}, now.Add(time.Minute))

	r := tr.Snapshot().Reading
	if r == nil {
		t.Fatal("no reading")
	}
	if r.Co2 != 700 || r.Temperature != 2130 || r.RelHumidity != 4800 || r.FanState != logic.AutoOff {
		t.Errorf("reading = %+v", r)
	}
	if !r.Time.Equal(now.Add(time.Minute)) {
		t.Errorf("time = %v", r.Time)
	}
}

func TestWorkersReady(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetWorkerState("monitor", lifecycle.Running)
	tr.SetWorkerState("display", lifecycle.Started)
	if tr.Snapshot().Ready() {
		t.Error("ready with a worker still starting")
	}
	tr.SetWorkerState("display", lifecycle.Running)
	snap := tr.Snapshot()
	if !snap.Ready() {
		t.Error("expected ready")
	}
	if names := snap.WorkerNames(); len(names) != 2 || names[0] != "display" {
		t.Errorf("names = %v", names)
	}
}

func TestUpdateFanSettingsPartial(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.UpdateFanSettings(message.FanConfig{
		FanOnOverrideTime:    message.Int32(30),
		RelHumFanOnThreshold: message.Int32(70),
		Co2FanOnThreshold:    message.Int32(900),
		FanOverride:          message.Override(logic.Auto),
	})
	tr.UpdateFanSettings(message.FanConfig{FanOverride: message.Override(logic.ManualOn)})

	f := tr.Snapshot().Fan
	want := FanSettings{Override: logic.ManualOn, RelHumThreshold: 70, Co2Threshold: 900, OnOverrideMins: 30}
	if f != want {
		t.Errorf("fan = %+v, want %+v", f, want)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetWorkerState("monitor", lifecycle.Running)
	tr.UpdateCo2State(message.Co2State{Co2: message.Int32(500)}, time.Now())

	snap := tr.Snapshot()
	snap.Workers["monitor"] = lifecycle.Failed
	snap.Reading.Co2 = 1

	again := tr.Snapshot()
	if again.Workers["monitor"] != lifecycle.Running {
		t.Error("worker map shared with tracker")
	}
	if again.Reading.Co2 != 500 {
		t.Error("reading shared with tracker")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Now().Add(-5 * time.Second)
	tr := NewTracker(start, Config{})

	snap := tr.Snapshot()
	if up := snap.Uptime(); up < 5*time.Second || up > 10*time.Second {
		t.Errorf("Uptime: got %v, expected ~5s", up)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{SensorType: "scd30", NetDevice: "wlan0", Broker: "tcp://broker:1883", HTTPAddr: ":80"})
	tr.UpdateCo2State(message.Co2State{
		Co2:         message.Int32(812),
		Temperature: message.Int32(2155),
		RelHumidity: message.Int32(5520),
		FanState:    message.Fan(logic.AutoOn),
		Timestamp:   message.Int64(start.Add(time.Minute).Unix()),
	}, start)
	tr.SetNetState(message.NetUp)
	tr.SetWorkerState("monitor", lifecycle.Running)
	tr.SetLastRestart("REBOOT")

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status
	if s.Reading == nil || s.Reading.Co2 != 812 || s.Reading.Temperature != 21.55 || s.Reading.RelHumidity != 55.2 {
		t.Errorf("reading = %+v", s.Reading)
	}
	if s.Reading.FanState != "AUTO_ON" || s.Reading.Timestamp != "2026-01-15T10:01:00Z" {
		t.Errorf("reading = %+v", s.Reading)
	}
	if s.Net != "UP" || !s.Ready || s.Workers["monitor"] != "RUNNING" {
		t.Errorf("net=%s ready=%v workers=%v", s.Net, s.Ready, s.Workers)
	}
	if s.LastRestart != "REBOOT" || s.Config.SensorType != "scd30" || s.StartTime != "2026-01-15T10:00:00Z" {
		t.Errorf("status = %+v", s)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON should not carry event or reason")
	}
}

func TestFormatJSONUnknownNet(t *testing.T) {
	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(NewTracker(time.Now(), Config{}).Snapshot()), &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Status.Net != "UNKNOWN" || parsed.Status.Reading != nil {
		t.Errorf("status = %+v", parsed.Status)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	data := FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason = %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.50", Status: "connected", SSID: "MyNet"})

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Status.Network == nil || parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("network = %+v", parsed.Status.Network)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.UpdateCo2State(message.Co2State{Co2: message.Int32(int32(i))}, time.Now())
			tr.SetWorkerState("monitor", lifecycle.Running)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
