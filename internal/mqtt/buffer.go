package mqtt

import (
	"log"
	"time"
)

// bufferedMsg is a frame waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	queued   time.Time
}

// ringBuffer holds frames while the broker is unreachable. When full the
// oldest frame is overwritten.
// Not safe for concurrent use; caller must synchronize.
type ringBuffer struct {
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped int // frames overwritten since the buffer was created
	full    bool
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return
	}
	r.dropped++
	if !r.full {
		log.Printf("mqtt: buffer full (%d frames), dropping oldest", len(r.buf))
		r.full = true
	}
}

// oldest returns the index of the oldest buffered frame.
func (r *ringBuffer) oldest() int {
	return (r.head - r.count + len(r.buf)) % len(r.buf)
}

// expire discards frames queued before cutoff and returns how many went.
func (r *ringBuffer) expire(cutoff time.Time) int {
	n := 0
	for r.count > 0 {
		i := r.oldest()
		if !r.buf[i].queued.Before(cutoff) {
			break
		}
		r.buf[i] = bufferedMsg{}
		r.count--
		n++
	}
	return n
}

// drainAll returns the buffered frames oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	out := make([]bufferedMsg, 0, r.count)
	for i, start := 0, r.oldest(); i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	r.count = 0
	r.head = 0
	r.full = false
	return out
}

// requeue puts msgs back ahead of anything buffered since they were drained.
// If the total exceeds capacity the oldest frames are dropped.
func (r *ringBuffer) requeue(msgs []bufferedMsg) {
	if len(msgs) == 0 {
		return
	}
	newer := r.drainAll()
	for _, m := range msgs {
		r.push(m)
	}
	for _, m := range newer {
		r.push(m)
	}
}

func (r *ringBuffer) len() int {
	return r.count
}
