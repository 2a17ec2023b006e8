package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/co2mon/internal/logger"
	"github.com/sweeney/co2mon/internal/message"
)

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 256

// Options configure a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int
	Log        *logger.Logger

	// OnFanCommand receives commands from TopicFanSet.
	OnFanCommand func(message.FanConfig)

	// OnConnectionChange is told about connects and disconnects.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. While the connection
// is down, messages are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	opts   Options
	log    *logger.Logger

	mu       sync.Mutex
	buf      *ringBuffer
	connects int
}

// NewRealPublisher creates a publisher for the given broker. The broker
// does not have to be reachable yet; the client keeps retrying in the
// background.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "co2mon"
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	p := &RealPublisher{opts: opts, log: opts.Log, buf: newRingBuffer(opts.BufferSize)}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onLost)

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warnw("mqtt broker not reachable yet, buffering", "broker", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.log.Infow("mqtt connected", "broker", p.opts.Broker)
	if p.opts.OnFanCommand != nil {
		c.Subscribe(TopicFanSet, 1, p.handleFanSet)
	}

	p.mu.Lock()
	p.connects++
	reconnect := p.connects > 1
	backlog := p.buf.drain()
	p.mu.Unlock()

	for _, m := range backlog {
		if err := p.send(m); err != nil {
			p.log.Warnw("replay buffered message", "topic", m.topic, "error", err)
		}
	}
	if len(backlog) > 0 {
		p.log.Infow("replayed buffered messages", "count", len(backlog))
	}
	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			p.log.Warnw("publish reconnect", "error", err)
		}
	}
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(true)
	}
}

func (p *RealPublisher) onLost(_ paho.Client, err error) {
	p.log.Warnw("mqtt connection lost", "error", err)
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(false)
	}
}

func (p *RealPublisher) handleFanSet(_ paho.Client, msg paho.Message) {
	fc, err := ParseFanCommand(msg.Payload())
	if err != nil {
		p.log.Warnw("rejected fan command", "payload", string(msg.Payload()), "error", err)
		return
	}
	p.log.Infow("fan command", "config", message.NewFanConfig(fc).String())
	p.opts.OnFanCommand(fc)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// PublishState sends a reading. QoS 0, not retained.
func (p *RealPublisher) PublishState(s message.Co2State) error {
	payload, err := FormatStatePayload(s, time.Now())
	if err != nil {
		return fmt.Errorf("format state: %w", err)
	}
	return p.publish(pending{topic: TopicState, payload: payload})
}

// PublishSystem sends a system lifecycle event. QoS 1 so shutdown
// notices are delivered.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(pending{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m pending) error {
	if !p.client.IsConnectionOpen() {
		p.hold(m)
		return nil
	}
	if err := p.send(m); err != nil {
		p.hold(m)
		return err
	}
	return nil
}

func (p *RealPublisher) send(m pending) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) hold(m pending) {
	p.mu.Lock()
	first := p.buf.push(m)
	p.mu.Unlock()
	if first {
		p.log.Warnw("mqtt buffer full, dropping oldest", "capacity", p.opts.BufferSize)
	}
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
