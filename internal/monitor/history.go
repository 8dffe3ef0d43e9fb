package monitor

import (
	"math"
	"sync"
)

// DefaultHistorySize is the default number of samples kept per sensor.
const DefaultHistorySize = 120

// History keeps a ring buffer of recent values per sensor for sparklines
// and min/avg/max in the detail view.
type History struct {
	mu      sync.RWMutex
	size    int
	sensors map[string]*ringBuffer
}

// ringBuffer is a fixed-size circular buffer for float64 values.
type ringBuffer struct {
	data  []float64
	head  int
	count int
	size  int
}

// NewHistory creates a history with size samples per sensor.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:    size,
		sensors: make(map[string]*ringBuffer),
	}
}

// Push appends a sample for name. NaN marks a gap (sensor unavailable).
func (h *History) Push(name string, v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.sensors[name]
	if !ok {
		r = newRingBuffer(h.size)
		h.sensors[name] = r
	}
	r.push(v)
}

// Get returns up to n of the newest samples for name, oldest first.
func (h *History) Get(name string, n int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.sensors[name]
	if !ok {
		return nil
	}
	return r.getLast(n)
}

// Count returns how many samples are stored for name.
func (h *History) Count(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.sensors[name]
	if !ok {
		return 0
	}
	return r.count
}

// Stats returns the min, mean and max of the stored samples, skipping gaps.
// ok is false when there is no real sample.
func (h *History) Stats(name string) (lo, avg, hi float64, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, found := h.sensors[name]
	if !found {
		return 0, 0, 0, false
	}

	var sum float64
	n := 0
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range r.getLast(r.count) {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
		n++
	}
	if n == 0 {
		return 0, 0, 0, false
	}
	return lo, sum / float64(n), hi, true
}

// Clear removes the samples of name.
func (h *History) Clear(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sensors, name)
}

// ClearAll removes all history.
func (h *History) ClearAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sensors = make(map[string]*ringBuffer)
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		data: make([]float64, size),
		size: size,
	}
}

func (r *ringBuffer) push(value float64) {
	r.data[r.head] = value
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// getLast returns the last count values in chronological order (oldest first).
func (r *ringBuffer) getLast(count int) []float64 {
	if count <= 0 || r.count == 0 {
		return nil
	}
	if count > r.count {
		count = r.count
	}

	result := make([]float64, count)
	// head is the next write position, so the newest value sits at head-1
	start := (r.head - count + r.size) % r.size
	for i := 0; i < count; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}
