package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/co2mon/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string            `json:"event,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Reading       *ReadingJSON      `json:"reading,omitempty"`
	Net           string            `json:"net"`
	Fan           FanJSON           `json:"fan"`
	Workers       map[string]string `json:"workers"`
	Ready         bool              `json:"ready"`
	LastRestart   string            `json:"last_restart,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartTime     string            `json:"start_time"`
	Timestamp     string            `json:"timestamp"`
	MQTT          MQTTStatus        `json:"mqtt"`
	Network       *NetworkJSON      `json:"network,omitempty"`
	Config        ConfigJSON        `json:"config"`
}

// ReadingJSON is the latest sensor reading in display units.
type ReadingJSON struct {
	Co2         int     `json:"co2_ppm"`
	Temperature float64 `json:"temperature_c"`
	RelHumidity float64 `json:"relative_humidity"`
	FanState    string  `json:"fan_state"`
	Timestamp   string  `json:"timestamp"`
}

// FanJSON reports the fan settings.
type FanJSON struct {
	Override        string `json:"override"`
	RelHumThreshold int    `json:"rh_threshold"`
	Co2Threshold    int    `json:"co2_threshold"`
	OnOverrideMins  int    `json:"on_override_minutes"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SensorType string `json:"sensor_type"`
	NetDevice  string `json:"net_device"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
}

func fixed(v int) float64 { return float64(v) / logic.FixedScale }

func buildInner(snap Snapshot) StatusInner {
	net := "UNKNOWN"
	if snap.Net != nil {
		net = snap.Net.String()
	}
	workers := make(map[string]string, len(snap.Workers))
	for name, st := range snap.Workers {
		workers[name] = st.String()
	}

	inner := StatusInner{
		Net: net,
		Fan: FanJSON{
			Override:        snap.Fan.Override.String(),
			RelHumThreshold: snap.Fan.RelHumThreshold,
			Co2Threshold:    snap.Fan.Co2Threshold,
			OnOverrideMins:  snap.Fan.OnOverrideMins,
		},
		Workers:       workers,
		Ready:         snap.Ready(),
		LastRestart:   snap.LastRestart,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			SensorType: snap.Config.SensorType,
			NetDevice:  snap.Config.NetDevice,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
	if r := snap.Reading; r != nil {
		inner.Reading = &ReadingJSON{
			Co2:         r.Co2,
			Temperature: fixed(r.Temperature),
			RelHumidity: fixed(r.RelHumidity),
			FanState:    r.FanState.String(),
			Timestamp:   r.Time.UTC().Format(time.RFC3339),
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
