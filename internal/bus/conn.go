package bus

import (
	"context"
	"fmt"

	"github.com/sweeney/co2mon/internal/message"
)

// Conn bundles a worker's two endpoints and handles encoding.
type Conn struct {
	name string
	ep   *Endpoint
	sub  *Subscription
}

// Connect creates the endpoint pair for a worker.
func (b *Bus) Connect(name string) *Conn {
	return &Conn{
		name: name,
		ep:   b.Endpoint(name),
		sub:  b.Subscribe(),
	}
}

// Name returns the worker name.
func (c *Conn) Name() string { return c.name }

// Send encodes m and pushes it to the coordinator.
func (c *Conn) Send(m message.Message) error {
	frame, err := message.Marshal(m)
	if err != nil {
		return err
	}
	if err := c.ep.Send(frame); err != nil {
		return fmt.Errorf("send %s from %s: %w", m.Type, c.name, err)
	}
	return nil
}

// Recv waits for the next broadcast and decodes it. A decode failure is
// returned as an error wrapping message.ErrMalformed; the frame is consumed
// and the caller may keep receiving. ErrClosed means the bus is gone.
func (c *Conn) Recv(ctx context.Context) (message.Message, error) {
	select {
	case <-ctx.Done():
		return message.Message{}, ctx.Err()
	case frame, ok := <-c.sub.C():
		if !ok {
			return message.Message{}, ErrClosed
		}
		return message.Unmarshal(frame)
	}
}

// Dropped reports broadcast frames lost to a full queue.
func (c *Conn) Dropped() uint64 { return c.sub.Dropped() }

// Close detaches the broadcast subscription.
func (c *Conn) Close() { c.sub.Unsubscribe() }

// Broadcast encodes m and publishes it to every subscriber.
func (b *Bus) Broadcast(m message.Message) error {
	frame, err := message.Marshal(m)
	if err != nil {
		return err
	}
	return b.Publish(frame)
}

// Receive waits for the next point-to-point packet and decodes it.
func (b *Bus) Receive(ctx context.Context) (string, message.Message, error) {
	select {
	case <-ctx.Done():
		return "", message.Message{}, ctx.Err()
	case <-b.done:
		return "", message.Message{}, ErrClosed
	case p := <-b.pull:
		m, err := message.Unmarshal(p.Frame)
		return p.From, m, err
	}
}
