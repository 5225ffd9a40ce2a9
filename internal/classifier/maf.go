package classifier

// MAF is a moving average filter over the last n values of every label.
// It is not safe for concurrent use.
type MAF struct {
	size    int
	history map[string][]float32
	next    map[string]int
	sums    map[string]float32
}

// NewMAF returns a filter averaging over size results; size < 1 is treated as 1
func NewMAF(size int) *MAF {
	if size < 1 {
		size = 1
	}
	return &MAF{
		size:    size,
		history: make(map[string][]float32),
		next:    make(map[string]int),
		sums:    make(map[string]float32),
	}
}

// Update folds r into the filter and returns a copy of r with smoothed values.
// Until size results have been seen the average is over the results so far.
func (m *MAF) Update(r *Result) *Result {
	out := *r
	out.Classifications = make([]Classification, len(r.Classifications))
	for i, c := range r.Classifications {
		h := m.history[c.Label]
		if len(h) < m.size {
			h = append(h, c.Value)
			m.history[c.Label] = h
			m.sums[c.Label] += c.Value
		} else {
			idx := m.next[c.Label]
			m.sums[c.Label] += c.Value - h[idx]
			h[idx] = c.Value
			m.next[c.Label] = (idx + 1) % m.size
		}
		out.Classifications[i] = Classification{
			Label: c.Label,
			Value: m.sums[c.Label] / float32(len(m.history[c.Label])),
		}
	}
	return &out
}

// Reset clears the history
func (m *MAF) Reset() {
	clear(m.history)
	clear(m.next)
	clear(m.sums)
}
