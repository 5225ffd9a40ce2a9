package myaudio

import (
	"time"

	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
)

// Cadence decides which READY ingests trigger a classification.
// It is owned by the capture goroutine and is not safe for concurrent use.
type Cadence struct {
	kind          string
	skip          int
	pending       int
	periodSamples int
	sliceLength   int
	since         int
	started       bool
}

// NewCadence builds a cadence policy. period is converted to samples at the
// effective sample rate so it stays exact when the device coerces the rate.
func NewCadence(kind string, skip int, period time.Duration, sampleRate uint32, sliceLength int) (*Cadence, error) {
	c := &Cadence{kind: kind, skip: skip, sliceLength: sliceLength}
	switch kind {
	case conf.CadenceEvery:
	case conf.CadenceSkip:
		if skip < 0 {
			return nil, errors.Newf("skip count must not be negative: %d", skip).
				Component("myaudio").
				Category(errors.CategoryValidation).
				Build()
		}
	case conf.CadencePeriod:
		c.periodSamples = int(int64(period) * int64(sampleRate) / int64(time.Second))
		if c.periodSamples <= 0 {
			return nil, errors.Newf("cadence period %s is shorter than one sample at %d Hz", period, sampleRate).
				Component("myaudio").
				Category(errors.CategoryValidation).
				Build()
		}
	default:
		return nil, errors.Newf("unknown cadence %q", kind).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Build()
	}
	return c, nil
}

// Next is called once per ingest after warm-up and reports whether this
// ingest should be classified. The first call always returns true.
func (c *Cadence) Next() bool {
	switch c.kind {
	case conf.CadenceSkip:
		if c.pending == 0 {
			c.pending = c.skip
			return true
		}
		c.pending--
		return false
	case conf.CadencePeriod:
		if !c.started {
			c.started = true
			return true
		}
		c.since += c.sliceLength
		if c.since >= c.periodSamples {
			c.since %= c.periodSamples
			return true
		}
		return false
	default:
		return true
	}
}

// PeriodSamples returns the number of samples between classifications when
// the cadence is regular, or 0 if it cannot be known in advance.
func (c *Cadence) PeriodSamples() int {
	switch c.kind {
	case conf.CadenceSkip:
		return (c.skip + 1) * c.sliceLength
	case conf.CadencePeriod:
		return max(c.periodSamples, c.sliceLength)
	default:
		return c.sliceLength
	}
}
