package mqtt

// pending is a serialized MQTT message held for replay after reconnection.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that holds messages while
// disconnected. When full the oldest message is overwritten.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf     []pending
	head    int // next write position
	count   int
	dropped int // overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]pending, capacity)}
}

// push appends msg. It reports true when this push overwrote the first
// message since the last drain, so callers can log once per outage.
func (r *ringBuffer) push(msg pending) (firstDrop bool) {
	capacity := len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % capacity
	if r.count < capacity {
		r.count++
		return false
	}
	r.dropped++
	return r.dropped == 1
}

// drain returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []pending {
	if r.count == 0 {
		return nil
	}
	capacity := len(r.buf)
	out := make([]pending, r.count)
	start := (r.head - r.count + capacity) % capacity
	for i := range out {
		out[i] = r.buf[(start+i)%capacity]
	}
	r.count, r.head, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int { return r.count }
