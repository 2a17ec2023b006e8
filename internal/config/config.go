// Package config loads the appliance configuration.
//
// Values come from viper defaults, an optional YAML file and CO2MON_*
// environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/co2mon/internal/logic"
)

// DefaultPaths are searched for co2mon.yml when no file is given.
var DefaultPaths = []string{"/etc/co2mon", "configs", "."}

// Administrative bounds. Values outside them are clamped by Validate.
var (
	ScreenRefreshRateBounds = logic.Bounds{Lo: 1, Hi: 60}
	ScreenTimeoutBounds     = logic.Bounds{Lo: 10, Hi: 7200}
	FanOnOverrideBounds     = logic.Bounds{Lo: 1, Hi: 180}
	RelHumThresholdBounds   = logic.Bounds{Lo: 10, Hi: 95}
	Co2ThresholdBounds      = logic.Bounds{Lo: 200, Hi: 2000}
)

// Config is the full process configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Net      NetConfig      `mapstructure:"net"`
	Sensor   SensorConfig   `mapstructure:"sensor"`
	Store    StoreConfig    `mapstructure:"store"`
	UI       UIConfig       `mapstructure:"ui"`
	Fan      FanConfig      `mapstructure:"fan"`
	GPIO     GPIOConfig     `mapstructure:"gpio"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Watchdog WatchdogConfig `mapstructure:"watchdog"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type NetConfig struct {
	Device                  string `mapstructure:"device"`
	CheckPeriod             int    `mapstructure:"check_period"`               // seconds
	DeviceDownRebootMinTime int    `mapstructure:"device_down_reboot_min_time"` // minutes
	DownRebootMinTime       int    `mapstructure:"down_reboot_min_time"`        // seconds
	EnvFile                 string `mapstructure:"env_file"`
}

type SensorConfig struct {
	Type       string `mapstructure:"type"`
	Port       string `mapstructure:"port"`
	LogBaseDir string `mapstructure:"log_base_dir"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type UIConfig struct {
	FBDev             string `mapstructure:"fbdev"`
	MouseDev          string `mapstructure:"mousedev"`
	MouseDrv          string `mapstructure:"mousedrv"`
	MouseRelative     string `mapstructure:"mouse_relative"`
	VideoDriver       string `mapstructure:"video_driver"`
	TTFDir            string `mapstructure:"ttf_dir"`
	BitmapDir         string `mapstructure:"bmp_dir"`
	ScreenRefreshRate int    `mapstructure:"screen_refresh_rate"` // Hz
	ScreenTimeout     int    `mapstructure:"screen_timeout"`      // seconds
}

type FanConfig struct {
	OnOverrideTime  int    `mapstructure:"on_override_time"` // minutes
	RelHumThreshold int    `mapstructure:"relhum_threshold"` // percent
	Co2Threshold    int    `mapstructure:"co2_threshold"`    // ppm
	Override        string `mapstructure:"override"`
}

type GPIOConfig struct {
	Chip         string `mapstructure:"chip"`
	FanPin       int    `mapstructure:"fan_pin"`
	BacklightPin int    `mapstructure:"backlight_pin"`
	ButtonPins   []int  `mapstructure:"button_pins"`
	Disabled     bool   `mapstructure:"disabled"`
}

type MQTTConfig struct {
	Broker    string `mapstructure:"broker"` // empty disables the bridge
	ClientID  string `mapstructure:"client_id"`
	Heartbeat int    `mapstructure:"heartbeat"` // seconds, 0 disables
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the status page
}

type WatchdogConfig struct {
	KickPeriod int `mapstructure:"kick_period"` // seconds
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("net.device", "wlan0")
	v.SetDefault("net.check_period", 60)
	v.SetDefault("net.device_down_reboot_min_time", 5)
	v.SetDefault("net.down_reboot_min_time", 600)
	v.SetDefault("net.env_file", "/run/pi-helper.env")

	v.SetDefault("sensor.type", "sim")
	v.SetDefault("sensor.port", "dummy")
	v.SetDefault("sensor.log_base_dir", "/var/log/co2mon")

	v.SetDefault("store.path", "/var/tmp/co2mon/state.db")

	v.SetDefault("ui.fbdev", "/dev/fb1")
	v.SetDefault("ui.mousedev", "/dev/input/ts")
	v.SetDefault("ui.mousedrv", "TSLIB")
	v.SetDefault("ui.mouse_relative", "0")
	v.SetDefault("ui.video_driver", "")
	v.SetDefault("ui.ttf_dir", ".")
	v.SetDefault("ui.bmp_dir", ".")
	v.SetDefault("ui.screen_refresh_rate", 20)
	v.SetDefault("ui.screen_timeout", 60)

	v.SetDefault("fan.on_override_time", 30)
	v.SetDefault("fan.relhum_threshold", 70)
	v.SetDefault("fan.co2_threshold", 999)
	v.SetDefault("fan.override", "auto")

	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.fan_pin", 4)
	v.SetDefault("gpio.backlight_pin", 18)
	v.SetDefault("gpio.button_pins", []int{17, 22, 23, 27})
	v.SetDefault("gpio.disabled", false)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "co2mon")
	v.SetDefault("mqtt.heartbeat", 900)

	v.SetDefault("http.addr", ":80")

	v.SetDefault("watchdog.kick_period", 60)
}

// Load reads configuration. path may be empty, in which case co2mon.yml is
// looked up in DefaultPaths and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CO2MON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("co2mon")
		v.SetConfigType("yaml")
		for _, p := range DefaultPaths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate clamps bounded values and checks enumerations. It returns one
// warning per adjusted value.
func (c *Config) Validate() ([]string, error) {
	var warnings []string
	clamp := func(name string, v *int, b logic.Bounds) {
		if !b.Contains(*v) {
			nv := b.Clamp(*v)
			warnings = append(warnings, fmt.Sprintf("%s %d outside [%d,%d], using %d", name, *v, b.Lo, b.Hi, nv))
			*v = nv
		}
	}
	clamp("ui.screen_refresh_rate", &c.UI.ScreenRefreshRate, ScreenRefreshRateBounds)
	clamp("ui.screen_timeout", &c.UI.ScreenTimeout, ScreenTimeoutBounds)
	clamp("fan.on_override_time", &c.Fan.OnOverrideTime, FanOnOverrideBounds)
	clamp("fan.relhum_threshold", &c.Fan.RelHumThreshold, RelHumThresholdBounds)
	clamp("fan.co2_threshold", &c.Fan.Co2Threshold, Co2ThresholdBounds)

	if _, err := logic.ParseOverrideMode(c.Fan.Override); err != nil {
		return warnings, fmt.Errorf("fan.override: %w", err)
	}
	switch strings.ToLower(c.Sensor.Type) {
	case "k30", "scd30", "sim":
	default:
		return warnings, fmt.Errorf("sensor.type: unknown sensor %q", c.Sensor.Type)
	}
	if c.Net.CheckPeriod <= 0 {
		return warnings, fmt.Errorf("net.check_period must be positive, got %d", c.Net.CheckPeriod)
	}
	return warnings, nil
}

// Override returns the parsed fan override. Validate must have succeeded.
func (c *Config) Override() logic.OverrideMode {
	m, _ := logic.ParseOverrideMode(c.Fan.Override)
	return m
}

// HeartbeatPeriod returns the MQTT heartbeat interval, 0 when disabled.
func (c *Config) HeartbeatPeriod() time.Duration {
	if c.MQTT.Heartbeat <= 0 {
		return 0
	}
	return time.Duration(c.MQTT.Heartbeat) * time.Second
}

// WatchdogPeriod returns the watchdog kick interval.
func (c *Config) WatchdogPeriod() time.Duration {
	return time.Duration(c.Watchdog.KickPeriod) * time.Second
}
