package myaudio

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/conf"
)

var layouts = []string{conf.LayoutRolled, conf.LayoutRegister}

func randomSlice(r *rand.Rand, n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(r.IntN(math.MaxUint16+1) + math.MinInt16)
	}
	return s
}

func chronological(w *SlidingWindow) []int16 {
	out := make([]int16, w.Len())
	w.Snapshot(out)
	return out
}

func TestWindowHoldsLastSamplesInOrder(t *testing.T) {
	t.Parallel()

	shapes := []struct{ window, slice int }{
		{16, 4}, {12, 3}, {8, 8}, {10, 1}, {16000, 4000}, {30, 5},
	}

	for _, layout := range layouts {
		for _, shape := range shapes {
			r := rand.New(rand.NewPCG(uint64(shape.window), uint64(shape.slice)))
			w, err := NewSlidingWindow(shape.window, shape.slice, layout)
			require.NoError(t, err)

			var history []int16
			ingests := shape.window/shape.slice + 3
			for i := range ingests {
				slice := randomSlice(r, shape.slice)
				history = append(history, slice...)
				require.NoError(t, w.Ingest(slice))

				if uint64(i+1) >= w.WarmupThreshold() {
					want := history[len(history)-shape.window:]
					require.Equal(t, want, chronological(w),
						"layout %s window %d slice %d after %d ingests", layout, shape.window, shape.slice, i+1)
				}
			}
		}
	}
}

func TestSingleSliceWindowIsFullOverwrite(t *testing.T) {
	t.Parallel()

	for _, layout := range layouts {
		w, err := NewSlidingWindow(6, 6, layout)
		require.NoError(t, err)

		require.NoError(t, w.Ingest([]int16{1, 2, 3, 4, 5, 6}))
		require.NoError(t, w.Ingest([]int16{-1, -2, -3, -4, -5, -6}))
		assert.Equal(t, []int16{-1, -2, -3, -4, -5, -6}, chronological(w), layout)
		assert.True(t, w.Warmed())
	}
}

func TestIngestEdgeCases(t *testing.T) {
	t.Parallel()

	w, err := NewSlidingWindow(8, 4, conf.LayoutRolled)
	require.NoError(t, err)

	require.NoError(t, w.Ingest(nil))
	assert.Equal(t, uint64(0), w.Ingested(), "empty ingest is a no-op")

	err = w.Ingest([]int16{1, 2, 3})
	require.ErrorIs(t, err, ErrSliceLength)
	assert.Equal(t, uint64(0), w.Ingested())
	assert.Equal(t, make([]int16, 8), chronological(w))
}

func TestNewSlidingWindowValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSlidingWindow(16000, 3000, conf.LayoutRolled)
	assert.Error(t, err)
	_, err = NewSlidingWindow(0, 4, conf.LayoutRolled)
	assert.Error(t, err)
	_, err = NewSlidingWindow(16, 0, conf.LayoutRolled)
	assert.Error(t, err)
	_, err = NewSlidingWindow(16, 4, "ring")
	assert.Error(t, err)
}

func TestWarmupThreshold(t *testing.T) {
	t.Parallel()

	w, err := NewSlidingWindow(16000, 4000, conf.LayoutRegister)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), w.WarmupThreshold())

	slice := make([]int16, 4000)
	for range 3 {
		require.NoError(t, w.Ingest(slice))
		assert.False(t, w.Warmed())
	}
	require.NoError(t, w.Ingest(slice))
	assert.True(t, w.Warmed())
}

func TestNormalizeExact(t *testing.T) {
	t.Parallel()

	src := []int16{0, 1, -1, 16384, -16384, math.MaxInt16, math.MinInt16, 12345}
	dst := make([]float32, len(src))
	Normalize(dst, src)

	for i, s := range src {
		assert.Equal(t, float32(s)/32768.0, dst[i])
		assert.GreaterOrEqual(t, dst[i], float32(-1))
		assert.Less(t, dst[i], float32(1))
	}
	assert.Equal(t, float32(-1), dst[6])
	assert.Equal(t, float32(0.5), dst[3])

	again := make([]float32, len(src))
	Normalize(again, src)
	assert.Equal(t, dst, again)
}

func TestNormalizeShortDestination(t *testing.T) {
	t.Parallel()

	dst := make([]float32, 2)
	Normalize(dst, []int16{16384, 16384, 16384})
	assert.Equal(t, []float32{0.5, 0.5}, dst)
}

func TestSignalPullsSubRanges(t *testing.T) {
	t.Parallel()

	for _, layout := range layouts {
		w, err := NewSlidingWindow(8, 2, layout)
		require.NoError(t, err)
		for i := range 5 {
			v := int16((i + 1) * 1024)
			require.NoError(t, w.Ingest([]int16{v, v}))
		}
		// window now holds slices 2..5
		sig := w.Signal()
		require.Equal(t, 8, sig.TotalLength)

		out := make([]float32, 3)
		require.NoError(t, sig.Read(3, out))
		assert.Equal(t, []float32{3.0 / 32, 4.0 / 32, 4.0 / 32}, out, layout)

		err = sig.Read(6, make([]float32, 3))
		assert.ErrorIs(t, err, classifier.ErrOutOfRange)

		err = w.Read(-1, make([]float32, 1))
		assert.ErrorIs(t, err, classifier.ErrOutOfRange)
	}
}

func TestSliceSignal(t *testing.T) {
	t.Parallel()

	sig := SliceSignal([]int16{0, 8192, -8192, 16384})
	out := make([]float32, 2)
	require.NoError(t, sig.Read(1, out))
	assert.Equal(t, []float32{0.25, -0.25}, out)

	err := sig.GetData(3, make([]float32, 2))
	assert.ErrorIs(t, err, classifier.ErrOutOfRange)
}

func TestWindowStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "WARMING", StateWarming.String())
	assert.Equal(t, "READY", StateReady.String())
	assert.Equal(t, "CLASSIFYING", StateClassifying.String())
	assert.Equal(t, "WindowState(9)", WindowState(9).String())
}
