package beat

// ring is a fixed-capacity FIFO of float64 samples. Pushing onto a full ring
// evicts the oldest entry.
type ring struct {
	buf   []float64
	head  int
	count int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{buf: make([]float64, capacity)}
}

func (r *ring) Push(v float64) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) Len() int {
	return r.count
}

func (r *ring) Full() bool {
	return r.count == len(r.buf)
}

// Values appends the buffered samples to dst in oldest-to-newest order.
func (r *ring) Values(dst []float64) []float64 {
	dst = dst[:0]
	for i := 0; i < r.count; i++ {
		dst = append(dst, r.buf[(r.head+i)%len(r.buf)])
	}
	return dst
}

// Last returns the most recently pushed sample.
func (r *ring) Last() (float64, bool) {
	if r.count == 0 {
		return 0, false
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)], true
}

func (r *ring) Reset() {
	r.head = 0
	r.count = 0
}
