package brm

// history keeps the last few similarities and their running sum.
type history struct {
	size   int
	values []float64
	index  int
	count  int
	sum    float64
}

func newHistory(size int) *history {
	return &history{
		size:   size,
		values: make([]float64, size),
	}
}

// push adds v, evicting the oldest value once the window is full.
// The sum is updated by adding v before subtracting the evicted value.
func (h *history) push(v float64) {
	h.sum += v
	if h.count == h.size {
		h.sum -= h.values[h.index]
	} else {
		h.count++
	}
	h.values[h.index] = v
	h.index = (h.index + 1) % h.size
	h.sum = clampNonNegative(h.sum)
}

// mean divides by the window capacity, not by the number of stored values.
func (h *history) mean() float64 {
	return h.sum / float64(h.size)
}

func (h *history) len() int {
	return h.count
}

func (h *history) reset() {
	for i := range h.values {
		h.values[i] = 0
	}
	h.index = 0
	h.count = 0
	h.sum = 0
}
