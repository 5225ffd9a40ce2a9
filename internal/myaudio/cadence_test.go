package myaudio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arribada/audiocontroller/internal/conf"
)

func pattern(c *Cadence, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = c.Next()
	}
	return out
}

func TestCadence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		kind       string
		skip       int
		period     time.Duration
		sampleRate uint32
		slice      int
		want       []bool
		perSamples int
	}{
		{
			name: "every", kind: conf.CadenceEvery, sampleRate: 16000, slice: 4000,
			want:       []bool{true, true, true, true},
			perSamples: 4000,
		},
		{
			name: "skip two", kind: conf.CadenceSkip, skip: 2, sampleRate: 16000, slice: 4000,
			want:       []bool{true, false, false, true, false, false, true},
			perSamples: 12000,
		},
		{
			name: "skip zero behaves like every", kind: conf.CadenceSkip, sampleRate: 16000, slice: 4000,
			want:       []bool{true, true, true},
			perSamples: 4000,
		},
		{
			name: "one second period with 250ms slices", kind: conf.CadencePeriod, period: time.Second,
			sampleRate: 16000, slice: 4000,
			want:       []bool{true, false, false, false, true, false, false, false, true},
			perSamples: 16000,
		},
		{
			name: "period follows the effective rate", kind: conf.CadencePeriod, period: time.Second,
			sampleRate: 8000, slice: 4000,
			want:       []bool{true, false, true, false, true},
			perSamples: 8000,
		},
		{
			name: "period shorter than a slice", kind: conf.CadencePeriod, period: 100 * time.Millisecond,
			sampleRate: 16000, slice: 4000,
			want:       []bool{true, true, true},
			perSamples: 4000,
		},
		{
			name: "period not a multiple of the slice", kind: conf.CadencePeriod, period: 600 * time.Millisecond,
			sampleRate: 10000, slice: 4000,
			// 6000 samples per period: accumulated 4000, 8000->2000, 6000->0, 4000, 8000->2000
			want:       []bool{true, false, true, true, false, true},
			perSamples: 6000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := NewCadence(tt.kind, tt.skip, tt.period, tt.sampleRate, tt.slice)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pattern(c, len(tt.want)))
			assert.Equal(t, tt.perSamples, c.PeriodSamples())
		})
	}
}

func TestCadenceValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCadence("sometimes", 0, 0, 16000, 4000)
	assert.Error(t, err)
	_, err = NewCadence(conf.CadenceSkip, -1, 0, 16000, 4000)
	assert.Error(t, err)
	_, err = NewCadence(conf.CadencePeriod, 0, 0, 16000, 4000)
	assert.Error(t, err)
	_, err = NewCadence(conf.CadencePeriod, 0, time.Nanosecond, 16000, 4000)
	assert.Error(t, err)
}
