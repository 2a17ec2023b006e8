package message

import "github.com/sweeney/co2mon/internal/logic"

// RequiredFanConfig is a FanConfig with every field present.
type RequiredFanConfig struct {
	FanOnOverrideTime    int32
	RelHumFanOnThreshold int32
	Co2FanOnThreshold    int32
	FanOverride          logic.OverrideMode
}

// RequireFanConfig checks that every FanConfig field is present.
func RequireFanConfig(m Message) (RequiredFanConfig, error) {
	c := m.FanConfig
	if c == nil {
		return RequiredFanConfig{}, missing("Message", "fanConfig")
	}
	switch {
	case c.FanOnOverrideTime == nil:
		return RequiredFanConfig{}, missing("FanConfig", "fanonoverridetime")
	case c.RelHumFanOnThreshold == nil:
		return RequiredFanConfig{}, missing("FanConfig", "relhumfanonthreshold")
	case c.Co2FanOnThreshold == nil:
		return RequiredFanConfig{}, missing("FanConfig", "co2fanonthreshold")
	case c.FanOverride == nil:
		return RequiredFanConfig{}, missing("FanConfig", "fanoverride")
	}
	return RequiredFanConfig{
		FanOnOverrideTime:    *c.FanOnOverrideTime,
		RelHumFanOnThreshold: *c.RelHumFanOnThreshold,
		Co2FanOnThreshold:    *c.Co2FanOnThreshold,
		FanOverride:          *c.FanOverride,
	}, nil
}

// RequiredCo2Config is a Co2Config with every field present.
type RequiredCo2Config struct {
	SensorType    string
	SensorPort    string
	Co2LogBaseDir string
}

// RequireCo2Config checks that every Co2Config field is present.
func RequireCo2Config(m Message) (RequiredCo2Config, error) {
	c := m.Co2Config
	if c == nil {
		return RequiredCo2Config{}, missing("Message", "co2Config")
	}
	switch {
	case c.SensorType == nil:
		return RequiredCo2Config{}, missing("Co2Config", "sensortype")
	case c.SensorPort == nil:
		return RequiredCo2Config{}, missing("Co2Config", "sensorport")
	case c.Co2LogBaseDir == nil:
		return RequiredCo2Config{}, missing("Co2Config", "co2monlogbasedir")
	}
	return RequiredCo2Config{
		SensorType:    *c.SensorType,
		SensorPort:    *c.SensorPort,
		Co2LogBaseDir: *c.Co2LogBaseDir,
	}, nil
}

// RequiredUIConfig holds the UIConfig fields the display cannot start without.
// The SDL device fields stay optional; a headless renderer ignores them.
type RequiredUIConfig struct {
	ScreenRefreshRate int32
	ScreenTimeout     int32
}

// RequireUIConfig checks the display's mandatory UIConfig fields.
func RequireUIConfig(m Message) (RequiredUIConfig, error) {
	c := m.UIConfig
	if c == nil {
		return RequiredUIConfig{}, missing("Message", "uiConfig")
	}
	switch {
	case c.ScreenRefreshRate == nil:
		return RequiredUIConfig{}, missing("UIConfig", "screenrefreshrate")
	case c.ScreenTimeout == nil:
		return RequiredUIConfig{}, missing("UIConfig", "screentimeout")
	}
	return RequiredUIConfig{
		ScreenRefreshRate: *c.ScreenRefreshRate,
		ScreenTimeout:     *c.ScreenTimeout,
	}, nil
}

// RequiredNetConfig is a NetConfig with every field present.
type RequiredNetConfig struct {
	NetDevice                  string
	NetworkCheckPeriod         int32
	NetDeviceDownRebootMinTime int32
	NetDownRebootMinTime       int32
}

// RequireNetConfig checks that every NetConfig field is present.
func RequireNetConfig(m Message) (RequiredNetConfig, error) {
	c := m.NetConfig
	if c == nil {
		return RequiredNetConfig{}, missing("Message", "netConfig")
	}
	switch {
	case c.NetDevice == nil:
		return RequiredNetConfig{}, missing("NetConfig", "netdevice")
	case c.NetworkCheckPeriod == nil:
		return RequiredNetConfig{}, missing("NetConfig", "networkcheckperiod")
	case c.NetDeviceDownRebootMinTime == nil:
		return RequiredNetConfig{}, missing("NetConfig", "netdevicedownrebootmintime")
	case c.NetDownRebootMinTime == nil:
		return RequiredNetConfig{}, missing("NetConfig", "netdownrebootmintime")
	}
	return RequiredNetConfig{
		NetDevice:                  *c.NetDevice,
		NetworkCheckPeriod:         *c.NetworkCheckPeriod,
		NetDeviceDownRebootMinTime: *c.NetDeviceDownRebootMinTime,
		NetDownRebootMinTime:       *c.NetDownRebootMinTime,
	}, nil
}
