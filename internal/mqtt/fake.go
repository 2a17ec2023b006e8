package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/co2mon/internal/message"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// OnFanCommand receives commands passed to Command.
	OnFanCommand func(message.FanConfig)

	// PublishError, if set, is returned by PublishState.
	PublishError error

	// PublishSystemError, if set, is returned by PublishSystem.
	PublishSystemError error

	mu             sync.Mutex
	states         []message.Co2State
	statePayloads  [][]byte
	systemEvents   []SystemEvent
	systemPayloads [][]byte
	closed         bool
	connected      bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishState records the reading.
func (f *FakePublisher) PublishState(s message.Co2State) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatStatePayload(s, time.Now())
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.states = append(f.states, s)
	f.statePayloads = append(f.statePayloads, payload)
	f.mu.Unlock()
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	f.mu.Unlock()
	return nil
}

// Command feeds payload through the TopicFanSet handling.
func (f *FakePublisher) Command(payload []byte) error {
	fc, err := ParseFanCommand(payload)
	if err != nil {
		return err
	}
	if f.OnFanCommand != nil {
		f.OnFanCommand(fc)
	}
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// SetConnected controls IsConnected.
func (f *FakePublisher) SetConnected(c bool) {
	f.mu.Lock()
	f.connected = c
	f.mu.Unlock()
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// States returns the recorded readings.
func (f *FakePublisher) States() []message.Co2State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message.Co2State(nil), f.states...)
}

// StatePayloads returns the recorded reading payloads.
func (f *FakePublisher) StatePayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.statePayloads...)
}

// SystemEvents returns the recorded system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns the recorded system payloads.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
