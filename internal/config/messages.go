package config

import "github.com/sweeney/co2mon/internal/message"

// Co2ConfigMsg builds the monitor's configuration message.
func (c *Config) Co2ConfigMsg() message.Message {
	return message.NewCo2Config(message.Co2Config{
		SensorType:    message.String(c.Sensor.Type),
		SensorPort:    message.String(c.Sensor.Port),
		Co2LogBaseDir: message.String(c.Sensor.LogBaseDir),
	})
}

// FanConfigMsg builds the fan configuration message. Humidity is sent in
// whole percent.
func (c *Config) FanConfigMsg() message.Message {
	return message.NewFanConfig(message.FanConfig{
		FanOnOverrideTime:    message.Int32(int32(c.Fan.OnOverrideTime)),
		RelHumFanOnThreshold: message.Int32(int32(c.Fan.RelHumThreshold)),
		Co2FanOnThreshold:    message.Int32(int32(c.Fan.Co2Threshold)),
		FanOverride:          message.Override(c.Override()),
	})
}

// UIConfigMsg builds the display's configuration message.
func (c *Config) UIConfigMsg() message.Message {
	return message.NewUIConfig(message.UIConfig{
		FBDev:             message.String(c.UI.FBDev),
		MouseDev:          message.String(c.UI.MouseDev),
		MouseDrv:          message.String(c.UI.MouseDrv),
		MouseRelative:     message.String(c.UI.MouseRelative),
		VideoDriver:       message.String(c.UI.VideoDriver),
		TTFDir:            message.String(c.UI.TTFDir),
		BitmapDir:         message.String(c.UI.BitmapDir),
		ScreenRefreshRate: message.Int32(int32(c.UI.ScreenRefreshRate)),
		ScreenTimeout:     message.Int32(int32(c.UI.ScreenTimeout)),
	})
}

// NetConfigMsg builds the network monitor's configuration message.
func (c *Config) NetConfigMsg() message.Message {
	return message.NewNetConfig(message.NetConfig{
		NetDevice:                  message.String(c.Net.Device),
		NetworkCheckPeriod:         message.Int32(int32(c.Net.CheckPeriod)),
		NetDeviceDownRebootMinTime: message.Int32(int32(c.Net.DeviceDownRebootMinTime)),
		NetDownRebootMinTime:       message.Int32(int32(c.Net.DownRebootMinTime)),
	})
}
