// Package classifier defines the contract between the sliding window and an
// inference engine: the engine pulls normalized samples on demand through a
// Signal and returns per-label values for the window.
package classifier

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/arribada/audiocontroller/internal/errors"
)

// Signal describes one window of samples. GetData fills out with the
// normalized samples in [offset, offset+len(out)); out must not extend past
// TotalLength.
type Signal struct {
	TotalLength int
	GetData     func(offset int, out []float32) error
}

// Read pulls [offset, offset+len(out)) after checking the bounds
func (s Signal) Read(offset int, out []float32) error {
	if offset < 0 || offset+len(out) > s.TotalLength {
		return fmt.Errorf("%w: [%d, %d) outside [0, %d)", ErrOutOfRange, offset, offset+len(out), s.TotalLength)
	}
	if len(out) == 0 {
		return nil
	}
	return s.GetData(offset, out)
}

// Timed returns a Signal that adds the time spent in GetData to total.
// The returned Signal must be read from one goroutine at a time.
func (s Signal) Timed(total *time.Duration) Signal {
	return Signal{
		TotalLength: s.TotalLength,
		GetData: func(offset int, out []float32) error {
			start := time.Now()
			err := s.GetData(offset, out)
			*total += time.Since(start)
			return err
		},
	}
}

// Classification is the value an engine assigned to one label
type Classification struct {
	Label string  `json:"label"`
	Value float32 `json:"value"`
}

// Timing breaks down where a window spent its time. Capture, Queue and
// Normalize are measured around the engine; DSP and Classification are the
// engine's own figures.
type Timing struct {
	Capture        time.Duration `json:"capture"`   // source read that completed the window
	Queue          time.Duration `json:"queue"`     // selection to handler start
	Normalize      time.Duration `json:"normalize"` // inside Signal pulls
	DSP            time.Duration `json:"dsp"`
	Classification time.Duration `json:"classification"`
}

// Result is one engine output. Values are independent per label and need not sum to one.
type Result struct {
	Classifications []Classification `json:"classification"`
	Anomaly         float32          `json:"anomaly"`
	HasAnomaly      bool             `json:"has_anomaly"`
	Timing          Timing           `json:"timing"`
	Seq             uint64           `json:"seq"`         // window sequence number
	SampleRate      uint32           `json:"sample_rate"` // effective rate of the window
}

// Top returns the n highest valued classifications, highest first
func (r *Result) Top(n int) []Classification {
	sorted := slices.Clone(r.Classifications)
	slices.SortStableFunc(sorted, func(a, b Classification) int {
		return cmp.Compare(b.Value, a.Value)
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Value returns the value of label and whether it was present
func (r *Result) Value(label string) (float32, bool) {
	for _, c := range r.Classifications {
		if c.Label == label {
			return c.Value, true
		}
	}
	return 0, false
}

// Engine classifies one window at a time. Implementations serialize access
// to their interpreter; Classify may be called from several goroutines.
type Engine interface {
	Classify(ctx context.Context, signal Signal, debug bool) (*Result, error)
	// InputLength is the number of samples the engine expects per window
	InputLength() int
	Labels() []string
	Close() error
}

// PairLabels zips labels with engine outputs
func PairLabels(labels []string, values []float32) ([]Classification, error) {
	if len(labels) != len(values) {
		return nil, errors.Newf("mismatched labels and outputs: %d vs %d", len(labels), len(values)).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	out := make([]Classification, len(labels))
	for i, label := range labels {
		out[i] = Classification{Label: label, Value: values[i]}
	}
	return out, nil
}
