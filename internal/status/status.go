// Package status provides a thread-safe view of the appliance for the HTTP
// status page and MQTT system events.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/co2mon/internal/lifecycle"
	"github.com/sweeney/co2mon/internal/logic"
	"github.com/sweeney/co2mon/internal/message"
)

// NetworkInfo contains host network details read from the environment
// file the network setup scripts write.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	SensorType string
	NetDevice  string
	Broker     string
	HTTPAddr   string
}

// Reading is the most recent Co2State.
type Reading struct {
	Co2         int
	Temperature int // °C ×100
	RelHumidity int // % ×100
	FanState    logic.FanState
	Time        time.Time
}

// FanSettings are the operator-editable fan settings. Thresholds are whole
// percent and ppm.
type FanSettings struct {
	Override        logic.OverrideMode
	RelHumThreshold int
	Co2Threshold    int
	OnOverrideMins  int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Reading       *Reading
	Net           *message.NetStatus
	Workers       map[string]lifecycle.State
	Fan           FanSettings
	LastRestart   string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether every worker is running.
func (s Snapshot) Ready() bool {
	if len(s.Workers) == 0 {
		return false
	}
	for _, st := range s.Workers {
		if st != lifecycle.Running {
			return false
		}
	}
	return true
}

// WorkerNames returns the worker names in sorted order.
func (s Snapshot) WorkerNames() []string {
	names := make([]string, 0, len(s.Workers))
	for n := range s.Workers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Workers:   make(map[string]lifecycle.State),
		},
	}
}

// UpdateCo2State merges the fields present in s into the latest reading.
func (t *Tracker) UpdateCo2State(s message.Co2State, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := Reading{Time: now}
	if t.snap.Reading != nil {
		r = *t.snap.Reading
		r.Time = now
	}
	if s.Co2 != nil {
		r.Co2 = int(*s.Co2)
	}
	if s.Temperature != nil {
		r.Temperature = int(*s.Temperature)
	}
	if s.RelHumidity != nil {
		r.RelHumidity = int(*s.RelHumidity)
	}
	if s.FanState != nil {
		r.FanState = *s.FanState
	}
	if s.Timestamp != nil {
		r.Time = time.Unix(*s.Timestamp, 0)
	}
	t.snap.Reading = &r
}

// SetNetState records the network monitor's state.
func (t *Tracker) SetNetState(s message.NetStatus) {
	t.mu.Lock()
	t.snap.Net = &s
	t.mu.Unlock()
}

// SetWorkerState records a worker's lifecycle state.
func (t *Tracker) SetWorkerState(worker string, s lifecycle.State) {
	t.mu.Lock()
	t.snap.Workers[worker] = s
	t.mu.Unlock()
}

// UpdateFanSettings merges the fields present in fc.
func (t *Tracker) UpdateFanSettings(fc message.FanConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := &t.snap.Fan
	if fc.FanOverride != nil {
		f.Override = *fc.FanOverride
	}
	if fc.RelHumFanOnThreshold != nil {
		f.RelHumThreshold = int(*fc.RelHumFanOnThreshold)
	}
	if fc.Co2FanOnThreshold != nil {
		f.Co2Threshold = int(*fc.Co2FanOnThreshold)
	}
	if fc.FanOnOverrideTime != nil {
		f.OnOverrideMins = int(*fc.FanOnOverrideTime)
	}
}

// SetLastRestart records why the previous run ended.
func (t *Tracker) SetLastRestart(reason string) {
	t.mu.Lock()
	t.snap.LastRestart = reason
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the host network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Workers = make(map[string]lifecycle.State, len(t.snap.Workers))
	for k, v := range t.snap.Workers {
		s.Workers[k] = v
	}
	if t.snap.Reading != nil {
		r := *t.snap.Reading
		s.Reading = &r
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
