package eventbus

import "time"

// Record is one published event kept for diagnostic replay.
type Record struct {
	EventType string    `json:"event_type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// ring is a fixed-capacity buffer that overwrites the oldest record when full.
type ring struct {
	buf   []Record
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Record, capacity)}
}

func (r *ring) push(rec Record) {
	if len(r.buf) == 0 {
		return
	}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = rec
		r.size++
		return
	}
	r.buf[r.start] = rec
	r.start = (r.start + 1) % len(r.buf)
}

// snapshot returns the records oldest first.
func (r *ring) snapshot() []Record {
	out := make([]Record, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) reset() {
	r.buf = make([]Record, len(r.buf))
	r.start, r.size = 0, 0
}
