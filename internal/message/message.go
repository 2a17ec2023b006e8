// Package message defines the envelope exchanged between workers and its
// wire encoding.
//
// Every payload field is optional. A nil pointer means "not present"; the
// Has* helpers and Require* functions distinguish "nothing changed" during
// steady state from "missing" during the initial configuration handshake.
package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/co2mon/internal/lifecycle"
	"github.com/sweeney/co2mon/internal/logic"
)

// Type discriminates the payload carried by a Message.
type Type int32

const (
	TypeUnknown Type = iota
	TypeUIConfig
	TypeFanConfig
	TypeCo2Config
	TypeCo2State
	TypeNetConfig
	TypeNetState
	TypeThreadState
	TypeRestart
	TypeTerminate
)

var typeNames = map[Type]string{
	TypeUIConfig:    "UI_CFG",
	TypeFanConfig:   "FAN_CFG",
	TypeCo2Config:   "CO2_CFG",
	TypeCo2State:    "CO2_STATE",
	TypeNetConfig:   "NET_CFG",
	TypeNetState:    "NET_STATE",
	TypeThreadState: "THREAD_STATE",
	TypeRestart:     "RESTART",
	TypeTerminate:   "TERMINATE",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("TYPE(%d)", int32(t))
}

func (t Type) valid() bool {
	_, ok := typeNames[t]
	return ok
}

// ErrMissingField is returned by the Require* helpers.
var ErrMissingField = errors.New("message: missing required field")

func missing(payload, field string) error {
	return fmt.Errorf("%w: %s.%s", ErrMissingField, payload, field)
}

// UIConfig configures the display worker.
type UIConfig struct {
	FBDev             *string
	MouseDev          *string
	MouseDrv          *string
	MouseRelative     *string
	VideoDriver       *string
	TTFDir            *string
	BitmapDir         *string
	ScreenRefreshRate *int32 // Hz
	ScreenTimeout     *int32 // seconds
}

// FanConfig carries fan thresholds and the override request.
// RelHumFanOnThreshold is in whole percent on the wire.
type FanConfig struct {
	FanOnOverrideTime    *int32 // minutes
	RelHumFanOnThreshold *int32 // percent
	Co2FanOnThreshold    *int32 // ppm
	FanOverride          *logic.OverrideMode
}

// Empty reports whether no field is set.
func (c FanConfig) Empty() bool {
	return c.FanOnOverrideTime == nil && c.RelHumFanOnThreshold == nil &&
		c.Co2FanOnThreshold == nil && c.FanOverride == nil
}

// Co2Config configures the monitor worker.
type Co2Config struct {
	SensorType    *string
	SensorPort    *string
	Co2LogBaseDir *string
}

// Co2State is the monitor's periodic report.
// Temperature is hundredths of a degree C, RelHumidity hundredths of a percent.
type Co2State struct {
	Temperature *int32
	RelHumidity *int32
	Co2         *int32
	FanState    *logic.FanState
	Timestamp   *int64 // unix seconds
}

// NetConfig configures the network monitor.
type NetConfig struct {
	NetDevice                  *string
	NetworkCheckPeriod         *int32 // seconds
	NetDeviceDownRebootMinTime *int32 // minutes
	NetDownRebootMinTime       *int32 // seconds
}

// NetStatus is the network monitor's state.
type NetStatus int32

const (
	NetStart NetStatus = iota
	NetUp
	NetDown
	NetFailed
	NetMissing
	NetNoInterface
)

var netStatusNames = [...]string{
	NetStart:       "START",
	NetUp:          "UP",
	NetDown:        "DOWN",
	NetFailed:      "FAILED",
	NetMissing:     "MISSING",
	NetNoInterface: "NO_NET_INTERFACE",
}

func (s NetStatus) String() string {
	if s < 0 || int(s) >= len(netStatusNames) {
		return "UNKNOWN"
	}
	return netStatusNames[s]
}

// NetState reports a network state change.
type NetState struct {
	State *NetStatus
}

// ThreadState reports a worker lifecycle transition.
type ThreadState struct {
	State *lifecycle.State
}

// RestartType selects what the user asked for.
type RestartType int32

const (
	Reboot RestartType = iota
	Shutdown
)

func (r RestartType) String() string {
	if r == Shutdown {
		return "SHUTDOWN"
	}
	return "REBOOT"
}

// RestartMsg is a user reboot or shutdown request.
type RestartMsg struct {
	Type *RestartType
}

// Message is the envelope. Exactly one payload matching Type is expected;
// Terminate carries none.
type Message struct {
	Type Type

	UIConfig    *UIConfig
	FanConfig   *FanConfig
	Co2Config   *Co2Config
	Co2State    *Co2State
	NetConfig   *NetConfig
	NetState    *NetState
	ThreadState *ThreadState
	Restart     *RestartMsg
}

// HasPayload reports whether the payload variant for m.Type is present.
func (m Message) HasPayload() bool {
	switch m.Type {
	case TypeUIConfig:
		return m.UIConfig != nil
	case TypeFanConfig:
		return m.FanConfig != nil
	case TypeCo2Config:
		return m.Co2Config != nil
	case TypeCo2State:
		return m.Co2State != nil
	case TypeNetConfig:
		return m.NetConfig != nil
	case TypeNetState:
		return m.NetState != nil
	case TypeThreadState:
		return m.ThreadState != nil
	case TypeRestart:
		return m.Restart != nil
	case TypeTerminate:
		return true
	}
	return false
}

func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Type.String())
	switch {
	case m.ThreadState != nil && m.ThreadState.State != nil:
		fmt.Fprintf(&b, " state=%s", *m.ThreadState.State)
	case m.NetState != nil && m.NetState.State != nil:
		fmt.Fprintf(&b, " net=%s", *m.NetState.State)
	case m.Restart != nil && m.Restart.Type != nil:
		fmt.Fprintf(&b, " restart=%s", *m.Restart.Type)
	case m.FanConfig != nil && m.FanConfig.FanOverride != nil:
		fmt.Fprintf(&b, " override=%s", *m.FanConfig.FanOverride)
	}
	return b.String()
}

// Constructors.

func NewUIConfig(c UIConfig) Message { return Message{Type: TypeUIConfig, UIConfig: &c} }
func NewFanConfig(c FanConfig) Message { return Message{Type: TypeFanConfig, FanConfig: &c} }
func NewCo2Config(c Co2Config) Message { return Message{Type: TypeCo2Config, Co2Config: &c} }
func NewCo2State(s Co2State) Message { return Message{Type: TypeCo2State, Co2State: &s} }
func NewNetConfig(c NetConfig) Message { return Message{Type: TypeNetConfig, NetConfig: &c} }
func NewTerminate() Message { return Message{Type: TypeTerminate} }

func NewNetState(s NetStatus) Message {
	return Message{Type: TypeNetState, NetState: &NetState{State: &s}}
}

func NewThreadState(s lifecycle.State) Message {
	return Message{Type: TypeThreadState, ThreadState: &ThreadState{State: &s}}
}

func NewRestart(r RestartType) Message {
	return Message{Type: TypeRestart, Restart: &RestartMsg{Type: &r}}
}

// Pointer helpers for building payloads.

func Int32(v int32) *int32 { return &v }
func Int64(v int64) *int64 { return &v }
func String(v string) *string { return &v }
func Override(v logic.OverrideMode) *logic.OverrideMode { return &v }
func Fan(v logic.FanState) *logic.FanState { return &v }
