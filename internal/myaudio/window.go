package myaudio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
)

// WindowState is the dispatcher's view of the window
type WindowState int32

const (
	// StateWarming means fewer than windowLength/sliceLength slices have been ingested
	StateWarming WindowState = iota
	// StateReady means the window holds only captured samples
	StateReady
	// StateClassifying means at least one asynchronous classification is in flight
	StateClassifying
)

func (s WindowState) String() string {
	switch s {
	case StateWarming:
		return "WARMING"
	case StateReady:
		return "READY"
	case StateClassifying:
		return "CLASSIFYING"
	default:
		return fmt.Sprintf("WindowState(%d)", int32(s))
	}
}

// SlidingWindow holds the most recent windowLength samples in chronological order.
//
// With the rolled layout every ingest shifts the retained samples left by one
// slice and appends the new slice at the tail. With the register layout the
// buffer is a ring of slice-sized slots and head marks the oldest slot; reads
// linearize across the slot boundary so both layouts look identical to callers.
//
// Ingest takes the write lock. The unlocked readers (Signal, CopyTo) are for
// the capture goroutine itself or for a caller already holding RLock.
type SlidingWindow struct {
	mu          sync.RWMutex
	samples     []int16
	sliceLength int
	slots       int
	head        int // oldest slot, always 0 for the rolled layout
	layout      string
	ingested    atomic.Uint64
}

// NewSlidingWindow allocates a zeroed window. windowLength must be a positive
// multiple of sliceLength.
func NewSlidingWindow(windowLength, sliceLength int, layout string) (*SlidingWindow, error) {
	if windowLength <= 0 || sliceLength <= 0 || windowLength%sliceLength != 0 {
		return nil, errors.Newf("window length %d must be a positive multiple of slice length %d", windowLength, sliceLength).
			Component("myaudio").
			Category(errors.CategoryBuffer).
			Context("operation", "create_window").
			Build()
	}
	switch layout {
	case conf.LayoutRolled, conf.LayoutRegister:
	default:
		return nil, errors.Newf("unknown window layout %q", layout).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Build()
	}
	return &SlidingWindow{
		samples:     make([]int16, windowLength),
		sliceLength: sliceLength,
		slots:       windowLength / sliceLength,
		layout:      layout,
	}, nil
}

// Len returns windowLength
func (w *SlidingWindow) Len() int { return len(w.samples) }

// SliceLength returns the number of samples per ingest
func (w *SlidingWindow) SliceLength() int { return w.sliceLength }

// Layout returns the configured layout
func (w *SlidingWindow) Layout() string { return w.layout }

// WarmupThreshold is the number of ingests needed before the window holds only captured samples
func (w *SlidingWindow) WarmupThreshold() uint64 { return uint64(w.slots) }

// Ingested returns the number of completed ingests
func (w *SlidingWindow) Ingested() uint64 { return w.ingested.Load() }

// Warmed reports whether the warm-up threshold has been reached
func (w *SlidingWindow) Warmed() bool { return w.Ingested() >= w.WarmupThreshold() }

// Ingest evicts the oldest slice and appends slice as the newest.
// An empty slice is a no-op.
func (w *SlidingWindow) Ingest(slice []int16) error {
	k := len(slice)
	if k == 0 {
		return nil
	}
	if k != w.sliceLength {
		return fmt.Errorf("%w: got %d samples, want %d", ErrSliceLength, k, w.sliceLength)
	}

	w.mu.Lock()
	n := len(w.samples)
	switch w.layout {
	case conf.LayoutRegister:
		start := w.head * k
		copy(w.samples[start:start+k], slice)
		w.head = (w.head + 1) % w.slots
	default:
		// copy is memmove, so the overlapping shift is safe
		copy(w.samples, w.samples[k:])
		copy(w.samples[n-k:], slice)
	}
	w.mu.Unlock()

	w.ingested.Add(1)
	return nil
}

// RLock blocks ingestion until RUnlock
func (w *SlidingWindow) RLock() { w.mu.RLock() }

// RUnlock releases RLock
func (w *SlidingWindow) RUnlock() { w.mu.RUnlock() }

// readNormalized fills out with the normalized samples at chronological
// positions [offset, offset+len(out)). The caller must hold the lock or be
// the capture goroutine.
func (w *SlidingWindow) readNormalized(offset int, out []float32) error {
	n := len(w.samples)
	if offset < 0 || offset+len(out) > n {
		return fmt.Errorf("%w: [%d, %d) outside [0, %d)", classifier.ErrOutOfRange, offset, offset+len(out), n)
	}
	start := (w.head*w.sliceLength + offset) % n
	first := min(len(out), n-start)
	Normalize(out[:first], w.samples[start:start+first])
	Normalize(out[first:], w.samples[:len(out)-first])
	return nil
}

// CopyTo copies the window in chronological order into dst and returns the
// number of samples copied. Same locking rules as readNormalized.
func (w *SlidingWindow) CopyTo(dst []int16) int {
	start := w.head * w.sliceLength
	c := copy(dst, w.samples[start:])
	c += copy(dst[c:], w.samples[:start])
	return c
}

// Snapshot copies the window under the read lock
func (w *SlidingWindow) Snapshot(dst []int16) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.CopyTo(dst)
}

// Read is readNormalized under the read lock
func (w *SlidingWindow) Read(offset int, out []float32) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.readNormalized(offset, out)
}

// Signal exposes the live window to an engine without locking.
// Only valid on the capture goroutine or while RLock is held.
func (w *SlidingWindow) Signal() classifier.Signal {
	return classifier.Signal{TotalLength: len(w.samples), GetData: w.readNormalized}
}

// SliceSignal exposes a chronological sample slice, such as a snapshot, to an engine
func SliceSignal(samples []int16) classifier.Signal {
	return classifier.Signal{
		TotalLength: len(samples),
		GetData: func(offset int, out []float32) error {
			if offset < 0 || offset+len(out) > len(samples) {
				return fmt.Errorf("%w: [%d, %d) outside [0, %d)",
					classifier.ErrOutOfRange, offset, offset+len(out), len(samples))
			}
			Normalize(out, samples[offset:offset+len(out)])
			return nil
		},
	}
}
