package sensor

import "github.com/couchcryptid/wildfire-watch/internal/domain"

// ring is a fixed-capacity FIFO of readings; the oldest entry is dropped
// when full. Not safe for concurrent use.
type ring struct {
	buf      []domain.Reading
	capacity int
	head     int // next write position
	count    int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]domain.Reading, capacity), capacity: capacity}
}

func (r *ring) push(v domain.Reading) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

// items returns the buffered readings oldest first.
func (r *ring) items() []domain.Reading {
	out := make([]domain.Reading, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%r.capacity]
	}
	return out
}

func (r *ring) len() int { return r.count }
