// Package mqtt bridges the appliance to an MQTT broker: readings and
// system events go out, fan commands come in.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
)

// Topics.
const (
	TopicState  = "co2mon/state"
	TopicSystem = "co2mon/system"
	TopicFanSet = "co2mon/fan/set"
)

// Publisher publishes appliance state to MQTT.
type Publisher interface {
	// PublishState sends a reading. Errors are reported, never fatal.
	PublishState(s message.Co2State) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, reconnect).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g. "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g. "SIGTERM", "REBOOT_USER_REQ"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// StatePayload is the JSON body published on TopicState.
type StatePayload struct {
	Co2 StateInner `json:"co2mon"`
}

// StateInner carries one reading in display units.
type StateInner struct {
	Timestamp   string   `json:"timestamp"`
	Co2         *int32   `json:"co2_ppm,omitempty"`
	Temperature *float64 `json:"temperature_c,omitempty"`
	RelHumidity *float64 `json:"relative_humidity,omitempty"`
	FanState    string   `json:"fan_state,omitempty"`
}

func fixed(v *int32) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v) / logic.FixedScale
	return &f
}

// FormatStatePayload creates the JSON payload for a reading. A missing
// timestamp uses now.
func FormatStatePayload(s message.Co2State, now time.Time) ([]byte, error) {
	ts := now
	if s.Timestamp != nil {
		ts = time.Unix(*s.Timestamp, 0)
	}
	inner := StateInner{
		Timestamp:   ts.UTC().Format(time.RFC3339),
		Co2:         s.Co2,
		Temperature: fixed(s.Temperature),
		RelHumidity: fixed(s.RelHumidity),
	}
	if s.FanState != nil {
		inner.FanState = s.FanState.String()
	}
	return json.Marshal(StatePayload{Co2: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// FanCommand is the JSON body accepted on TopicFanSet. Every field is
// optional; at least one must be present.
type FanCommand struct {
	Override        *string `json:"override,omitempty"`
	RelHumThreshold *int32  `json:"rh_threshold,omitempty"`
	Co2Threshold    *int32  `json:"co2_threshold,omitempty"`
	OnOverrideMins  *int32  `json:"on_override_minutes,omitempty"`
}

// ErrEmptyCommand means a fan command set no field.
var ErrEmptyCommand = errors.New("fan command sets nothing")

// ParseFanCommand decodes a fan command into a partial FanConfig.
func ParseFanCommand(payload []byte) (message.FanConfig, error) {
	var cmd FanCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return message.FanConfig{}, fmt.Errorf("decode fan command: %w", err)
	}
	fc := message.FanConfig{
		RelHumFanOnThreshold: cmd.RelHumThreshold,
		Co2FanOnThreshold:    cmd.Co2Threshold,
		FanOnOverrideTime:    cmd.OnOverrideMins,
	}
	if cmd.Override != nil {
		mode, err := logic.ParseOverrideMode(*cmd.Override)
		if err != nil {
			return message.FanConfig{}, err
		}
		fc.FanOverride = &mode
	}
	if cmd.OnOverrideMins != nil && *cmd.OnOverrideMins <= 0 {
		return message.FanConfig{}, fmt.Errorf("on_override_minutes must be positive, got %d", *cmd.OnOverrideMins)
	}
	if fc.Empty() {
		return message.FanConfig{}, ErrEmptyCommand
	}
	return fc, nil
}
