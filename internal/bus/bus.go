// Package bus is the in-process message transport between the coordinator
// and the workers.
//
// It has exactly two channel kinds. Broadcast fans a frame out from the
// coordinator to every subscriber, each with a bounded queue that drops its
// oldest frame when full. Point-to-point carries frames from a named worker
// endpoint to the coordinator and never drops; senders block up to a timeout.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed is returned once the bus has been closed.
	ErrClosed = errors.New("bus: closed")
	// ErrTimeout is returned when the coordinator does not drain in time.
	ErrTimeout = errors.New("bus: send timeout")
)

// Packet is a point-to-point frame as seen by the coordinator.
type Packet struct {
	From  string
	Frame []byte
}

// Options tune queue sizes.
type Options struct {
	SubscriberQueue int           // broadcast frames buffered per subscriber
	PullQueue       int           // point-to-point frames buffered for the coordinator
	SendTimeout     time.Duration // how long a worker blocks on a full pull queue
}

// Bus owns the broadcast subscriptions and the coordinator's pull queue.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool

	qLen        int
	sendTimeout time.Duration
	pull        chan Packet
	done        chan struct{}
}

// New creates a bus. Zero options get small safe defaults.
func New(opts Options) *Bus {
	if opts.SubscriberQueue <= 0 {
		opts.SubscriberQueue = 16
	}
	if opts.PullQueue <= 0 {
		opts.PullQueue = 64
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 2 * time.Second
	}
	return &Bus{
		qLen:        opts.SubscriberQueue,
		sendTimeout: opts.SendTimeout,
		pull:        make(chan Packet, opts.PullQueue),
		done:        make(chan struct{}),
	}
}

// Subscription receives broadcast frames in publish order.
type Subscription struct {
	ch      chan []byte
	bus     *Bus
	dropped atomic.Uint64
}

// C returns the frame channel. It is closed on Unsubscribe or bus Close.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Dropped returns how many frames were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Unsubscribe detaches the subscription and closes its channel.
func (s *Subscription) Unsubscribe() { s.bus.unsubscribe(s) }

// Subscribe attaches a new broadcast subscriber.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{ch: make(chan []byte, b.qLen), bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs = append(b.subs, s)
	return s
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Publish delivers frame to every subscriber. A full queue loses its oldest
// frame; delivery to other subscribers is unaffected.
func (b *Bus) Publish(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	for _, s := range b.subs {
		select {
		case s.ch <- frame:
			continue
		default:
		}
		// drop oldest; publishers are serialized by b.mu so the retry has room
		// unless the subscriber raced us, in which case it also has room.
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
		select {
		case s.ch <- frame:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

// Endpoint returns the sending side of a worker's point-to-point channel.
func (b *Bus) Endpoint(name string) *Endpoint {
	return &Endpoint{name: name, bus: b}
}

// Pull returns the coordinator's receive channel. It is never closed; use
// Done to detect shutdown.
func (b *Bus) Pull() <-chan Packet { return b.pull }

// Done is closed by Close.
func (b *Bus) Done() <-chan struct{} { return b.done }

// Close detaches every subscriber and rejects further sends.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
	close(b.done)
}

// Endpoint is a worker's point-to-point sender.
type Endpoint struct {
	name string
	bus  *Bus
}

// Name returns the endpoint name reported in Packet.From.
func (e *Endpoint) Name() string { return e.name }

// Send pushes frame to the coordinator, blocking up to the bus send timeout.
func (e *Endpoint) Send(frame []byte) error {
	select {
	case <-e.bus.done:
		return ErrClosed
	default:
	}

	t := time.NewTimer(e.bus.sendTimeout)
	defer t.Stop()
	select {
	case e.bus.pull <- Packet{From: e.name, Frame: frame}:
		return nil
	case <-e.bus.done:
		return ErrClosed
	case <-t.C:
		return ErrTimeout
	}
}
