package liveness

const (
	historySize = 10
	minHistory  = 5
)

// history is a fixed-size ring buffer that drops its oldest sample on overflow
type history struct {
	buf   [historySize]float64
	start int
	n     int
}

func (h *history) push(v float64) {
	if h.n < historySize {
		h.buf[(h.start+h.n)%historySize] = v
		h.n++
		return
	}
	h.buf[h.start] = v
	h.start = (h.start + 1) % historySize
}

func (h *history) len() int {
	return h.n
}

// spread returns max minus min over the buffered samples
func (h *history) spread() float64 {
	if h.n == 0 {
		return 0
	}
	lo, hi := h.buf[h.start], h.buf[h.start]
	for i := 1; i < h.n; i++ {
		v := h.buf[(h.start+i)%historySize]
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return hi - lo
}

// values returns the samples oldest first
func (h *history) values() []float64 {
	out := make([]float64, h.n)
	for i := range out {
		out[i] = h.buf[(h.start+i)%historySize]
	}
	return out
}

func (h *history) reset() {
	*h = history{}
}
