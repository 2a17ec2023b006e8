package main

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/co2mon/internal/bus"
	"github.com/sweeney/co2mon/internal/lifecycle"
	"github.com/sweeney/co2mon/internal/logger"
	"github.com/sweeney/co2mon/internal/message"
	"github.com/sweeney/co2mon/internal/mqtt"
	"github.com/sweeney/co2mon/internal/restart"
	"github.com/sweeney/co2mon/internal/status"
)

// Handshake and teardown limits.
const (
	AwaitConfigTimeout  = 2 * time.Second
	AwaitRunningTimeout = 5 * time.Second
	StopTimeout         = 5 * time.Second
)

// FanStore persists operator fan settings.
type FanStore interface {
	Load(ctx context.Context) (message.FanConfig, error)
	Save(ctx context.Context, fc message.FanConfig) error
}

// Outcome is why the coordinator stopped.
type Outcome struct {
	Cause   restart.Cause
	Request restart.Request
	Reason  string // for the SHUTDOWN event
}

var errHandshake = errors.New("handshake failed")

// Coordinator owns the bus and relays messages between the workers and
// the outside world.
type Coordinator struct {
	bus      *bus.Bus
	workers  []string
	configs  []message.Message // Co2Config, NetConfig, UIConfig
	fanBase  message.FanConfig
	fans     FanStore
	tracker  *status.Tracker
	pub      mqtt.Publisher
	mqttConn mqtt.ConnectionStatus
	log      *logger.Logger
	now      func() time.Time

	awaitConfig  time.Duration
	awaitRunning time.Duration
	stopWait     time.Duration

	states   map[string]lifecycle.State
	commands chan message.FanConfig
	userReq  *restart.Request
	readings *restart.Readings
}

// CoordinatorOptions collect the coordinator's collaborators. Pub and
// MQTTConn may be nil.
type CoordinatorOptions struct {
	Bus      *bus.Bus
	Workers  []string
	Configs  []message.Message
	FanBase  message.FanConfig
	Fans     FanStore
	Tracker  *status.Tracker
	Pub      mqtt.Publisher
	MQTTConn mqtt.ConnectionStatus
	Log      *logger.Logger
	Now      func() time.Time

	// Zero values use the package defaults.
	AwaitConfig  time.Duration
	AwaitRunning time.Duration
	Stop         time.Duration
}

func NewCoordinator(o CoordinatorOptions) *Coordinator {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	if o.AwaitConfig <= 0 {
		o.AwaitConfig = AwaitConfigTimeout
	}
	if o.AwaitRunning <= 0 {
		o.AwaitRunning = AwaitRunningTimeout
	}
	if o.Stop <= 0 {
		o.Stop = StopTimeout
	}
	return &Coordinator{
		bus:      o.Bus,
		workers:  o.Workers,
		configs:  o.Configs,
		fanBase:  o.FanBase,
		fans:     o.Fans,
		tracker:  o.Tracker,
		pub:      o.Pub,
		mqttConn: o.MQTTConn,
		log:      o.Log,
		now:      o.Now,
		states:   make(map[string]lifecycle.State),
		commands: make(chan message.FanConfig, 8),

		awaitConfig:  o.AwaitConfig,
		awaitRunning: o.AwaitRunning,
		stopWait:     o.Stop,
	}
}

// ExternalFanConfig queues a fan change from outside the bus. It never
// blocks; a full queue drops the command.
func (c *Coordinator) ExternalFanConfig(fc message.FanConfig) {
	select {
	case c.commands <- fc:
	default:
		c.log.Warnw("fan command queue full, dropping command")
	}
}

// Readings returns the last complete reading, or nil.
func (c *Coordinator) Readings() *restart.Readings { return c.readings }

// Handshake brings every worker to RUNNING. The Outcome is only meaningful
// when an error is returned.
func (c *Coordinator) Handshake(ctx context.Context) (Outcome, error) {
	if out, ok, err := c.await(ctx, lifecycle.AwaitingConfig, c.awaitConfig); err != nil || ok {
		return out, err
	}

	fc, err := c.initialFanConfig(ctx)
	if err != nil {
		c.log.Warnw("load persisted fan settings", "error", err)
	}
	c.tracker.UpdateFanSettings(fc)
	msgs := append([]message.Message(nil), c.configs...)
	for _, m := range append(msgs, message.NewFanConfig(fc)) {
		if err := c.bus.Broadcast(m); err != nil {
			return Outcome{Cause: restart.SoftwareFail}, err
		}
	}

	if out, ok, err := c.await(ctx, lifecycle.Running, c.awaitRunning); err != nil || ok {
		return out, err
	}
	c.log.Infow("all workers running", "workers", c.workers)
	return Outcome{}, nil
}

// await dispatches messages until every worker has reached want. It
// reports ok when dispatch decided to terminate.
func (c *Coordinator) await(ctx context.Context, want lifecycle.State, limit time.Duration) (Outcome, bool, error) {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	for !c.allIn(want) {
		select {
		case <-ctx.Done():
			return Outcome{Cause: restart.Signal, Reason: "CONTEXT"}, true, ctx.Err()
		case <-timer.C:
			c.log.Errorw("handshake timeout", "want", want.String(), "states", c.stateNames())
			return Outcome{Cause: restart.SoftwareFail, Reason: "HANDSHAKE"}, true, errHandshake
		case p := <-c.bus.Pull():
			if out, done := c.packet(ctx, p); done {
				return out, true, errHandshake
			}
		}
	}
	return Outcome{}, false, nil
}

func (c *Coordinator) allIn(want lifecycle.State) bool {
	for _, w := range c.workers {
		if c.states[w] != want {
			return false
		}
	}
	return true
}

func (c *Coordinator) stateNames() map[string]string {
	out := make(map[string]string, len(c.workers))
	for _, w := range c.workers {
		st, ok := c.states[w]
		if !ok {
			out[w] = "none"
			continue
		}
		out[w] = st.String()
	}
	return out
}

// initialFanConfig overlays the persisted settings on the configured ones.
func (c *Coordinator) initialFanConfig(ctx context.Context) (message.FanConfig, error) {
	if c.fans == nil {
		return c.fanBase, nil
	}
	saved, err := c.fans.Load(ctx)
	if err != nil {
		return c.fanBase, err
	}
	return mergeFanConfig(c.fanBase, saved), nil
}

// mergeFanConfig returns base with every field present in over replaced.
func mergeFanConfig(base, over message.FanConfig) message.FanConfig {
	if over.FanOnOverrideTime != nil {
		base.FanOnOverrideTime = over.FanOnOverrideTime
	}
	if over.RelHumFanOnThreshold != nil {
		base.RelHumFanOnThreshold = over.RelHumFanOnThreshold
	}
	if over.Co2FanOnThreshold != nil {
		base.Co2FanOnThreshold = over.Co2FanOnThreshold
	}
	if over.FanOverride != nil {
		base.FanOverride = over.FanOverride
	}
	return base
}

// RunLoop relays messages until something asks the process to stop.
// A nil heartbeat channel disables heartbeats.
func (c *Coordinator) RunLoop(ctx context.Context, sig <-chan string, heartbeat <-chan time.Time) Outcome {
	for {
		select {
		case <-ctx.Done():
			return Outcome{Cause: restart.Signal, Reason: "CONTEXT"}
		case name := <-sig:
			c.log.Infow("signal received, shutting down", "signal", name)
			return Outcome{Cause: restart.Signal, Reason: name}
		case p := <-c.bus.Pull():
			if out, done := c.packet(ctx, p); done {
				return out
			}
		case fc := <-c.commands:
			c.fanConfig(ctx, "mqtt", fc)
		case <-heartbeat:
			c.heartbeat()
		}
	}
}

func (c *Coordinator) packet(ctx context.Context, p bus.Packet) (Outcome, bool) {
	m, err := message.Unmarshal(p.Frame)
	if err != nil {
		c.log.Warnw("dropping worker message", "from", p.From, "error", err)
		return Outcome{}, false
	}
	return c.dispatch(ctx, p.From, m)
}

// dispatch handles one worker message and reports whether the process
// must terminate.
func (c *Coordinator) dispatch(ctx context.Context, from string, m message.Message) (Outcome, bool) {
	if !m.HasPayload() {
		c.log.Warnw("message without payload", "from", from, "type", m.Type.String())
		return Outcome{}, false
	}

	switch m.Type {
	case message.TypeThreadState:
		if m.ThreadState.State == nil {
			return Outcome{}, false
		}
		return c.threadState(from, *m.ThreadState.State)

	case message.TypeNetState:
		if m.NetState.State == nil {
			return Outcome{}, false
		}
		st := *m.NetState.State
		c.tracker.SetNetState(st)
		switch st {
		case message.NetUp, message.NetDown, message.NetMissing:
			c.broadcast(m)
		case message.NetFailed, message.NetNoInterface:
			c.log.Errorw("network failed", "state", st.String())
			return Outcome{Cause: restart.HardwareFail, Reason: "NET_" + st.String()}, true
		}

	case message.TypeFanConfig:
		c.fanConfig(ctx, from, *m.FanConfig)

	case message.TypeCo2State:
		c.co2State(*m.Co2State)

	case message.TypeRestart:
		if m.Restart.Type == nil {
			return Outcome{}, false
		}
		req := restart.RequestReboot
		if *m.Restart.Type == message.Shutdown {
			req = restart.RequestShutdown
		}
		c.userReq = &req
		c.log.Infow("user requested restart", "from", from, "type", m.Restart.Type.String())
		return Outcome{Cause: restart.UserReq, Request: req, Reason: m.Restart.Type.String() + "_USER_REQ"}, true

	default:
		c.log.Warnw("unexpected message", "from", from, "type", m.Type.String())
	}
	return Outcome{}, false
}

func (c *Coordinator) threadState(from string, st lifecycle.State) (Outcome, bool) {
	c.states[from] = st
	c.tracker.SetWorkerState(from, st)
	c.log.Infow("worker state", "worker", from, "state", st.String())

	switch st {
	case lifecycle.Stopping, lifecycle.Stopped:
		if c.userReq != nil {
			return Outcome{Cause: restart.UserReq, Request: *c.userReq, Reason: "USER_REQ"}, true
		}
		return Outcome{Cause: restart.SoftwareFail, Reason: from + "_" + st.String()}, true
	case lifecycle.Failed:
		return Outcome{Cause: restart.SoftwareFail, Reason: from + "_" + st.String()}, true
	case lifecycle.HWFailed:
		return Outcome{Cause: restart.HardwareFail, Reason: from + "_" + st.String()}, true
	}
	return Outcome{}, false
}

// fanConfig relays an operator change to every worker and persists it.
func (c *Coordinator) fanConfig(ctx context.Context, from string, fc message.FanConfig) {
	if fc.Empty() {
		return
	}
	c.log.Infow("fan settings changed", "from", from, "config", message.NewFanConfig(fc).String())
	c.tracker.UpdateFanSettings(fc)
	c.broadcast(message.NewFanConfig(fc))
	if c.fans != nil {
		if err := c.fans.Save(ctx, fc); err != nil {
			c.log.Errorw("persist fan settings", "error", err)
		}
	}
}

func (c *Coordinator) co2State(s message.Co2State) {
	c.broadcast(message.NewCo2State(s))
	c.tracker.UpdateCo2State(s, c.now())
	if s.Co2 != nil && s.Temperature != nil && s.RelHumidity != nil {
		c.readings = &restart.Readings{
			Co2:         int(*s.Co2),
			Temperature: int(*s.Temperature),
			RelHumidity: int(*s.RelHumidity),
		}
	}
	if c.pub != nil {
		if err := c.pub.PublishState(s); err != nil {
			c.log.Warnw("publish state", "error", err)
		}
	}
}

func (c *Coordinator) broadcast(m message.Message) {
	if err := c.bus.Broadcast(m); err != nil {
		c.log.Warnw("broadcast", "type", m.Type.String(), "error", err)
	}
}

func (c *Coordinator) refreshMQTT() {
	if c.mqttConn != nil {
		c.tracker.SetMQTTConnected(c.mqttConn.IsConnected())
	}
}

func (c *Coordinator) heartbeat() {
	if c.pub == nil {
		return
	}
	c.refreshMQTT()
	snap := c.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := c.pub.PublishSystem(ev); err != nil {
		c.log.Warnw("heartbeat publish", "error", err)
	}
}

// PublishSystem sends a lifecycle event carrying a status snapshot.
func (c *Coordinator) PublishSystem(event, reason string) {
	if c.pub == nil {
		return
	}
	c.refreshMQTT()
	snap := c.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := c.pub.PublishSystem(ev); err != nil {
		c.log.Warnw("publish system event", "event", event, "error", err)
	}
}

// Teardown broadcasts Terminate and waits for the workers to exit, or for
// the stop limit. done is closed once every worker goroutine has returned.
func (c *Coordinator) Teardown(done <-chan struct{}) {
	c.broadcast(message.NewTerminate())

	timer := time.NewTimer(c.stopWait)
	defer timer.Stop()
	for {
		select {
		case <-done:
			c.drainStates()
			return
		case <-timer.C:
			c.log.Warnw("workers did not stop in time", "states", c.stateNames())
			return
		case p := <-c.bus.Pull():
			c.finalState(p)
		}
	}
}

// drainStates records whatever the exited workers left queued.
func (c *Coordinator) drainStates() {
	for {
		select {
		case p := <-c.bus.Pull():
			c.finalState(p)
		default:
			return
		}
	}
}

func (c *Coordinator) finalState(p bus.Packet) {
	m, err := message.Unmarshal(p.Frame)
	if err != nil || m.Type != message.TypeThreadState || m.ThreadState == nil || m.ThreadState.State == nil {
		return
	}
	c.states[p.From] = *m.ThreadState.State
	c.tracker.SetWorkerState(p.From, *m.ThreadState.State)
}
