package main

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/co2mon/internal/config"
	"github.com/sweeney/co2mon/internal/display"
	"github.com/sweeney/co2mon/internal/logger"
)

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		http       string
		broker     string
		wantLevel  string
		wantHTTP   string
		wantBroker string
	}{
		{"none", "", "", "", "info", ":80", "tcp://broker:1883"},
		{"set", "debug", ":8080", "tcp://other:1883", "debug", ":8080", "tcp://other:1883"},
		{"off", "", "off", "off", "info", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Log.Level = "info"
			cfg.HTTP.Addr = ":80"
			cfg.MQTT.Broker = "tcp://broker:1883"

			applyOverrides(cfg, tt.level, tt.http, tt.broker)
			if cfg.Log.Level != tt.wantLevel || cfg.HTTP.Addr != tt.wantHTTP || cfg.MQTT.Broker != tt.wantBroker {
				t.Errorf("got level=%q http=%q broker=%q", cfg.Log.Level, cfg.HTTP.Addr, cfg.MQTT.Broker)
			}
		})
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("SIGINT -> %q", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("SIGTERM -> %q", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP -> %q", got)
	}
}

func TestButtonEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	presses := make(chan int, 5)
	events := buttonEvents(ctx, presses)
	for _, n := range []int{1, 7, 2, 3, 4} {
		presses <- n
	}

	want := []display.ScreenEvent{display.Button1, display.Button2, display.Button3, display.Button4}
	for i, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Errorf("event %d = %s, want %s", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}

	close(presses)
	select {
	case _, ok := <-events:
		if ok {
			t.Error("unexpected extra event")
		}
	case <-time.After(time.Second):
		t.Fatal("events channel not closed after presses closed")
	}
}

func TestOpenHardwareDisabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.GPIO.Disabled = true

	hw, err := openHardware(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("openHardware: %v", err)
	}
	defer hw.Close()

	if err := hw.fan.SetFan(true); err != nil {
		t.Errorf("fake relay: %v", err)
	}
	if !hw.fan.On() || hw.backlight != nil || hw.buttons == nil {
		t.Errorf("unexpected hardware %+v", hw)
	}
}
