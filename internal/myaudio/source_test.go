package myaudio

import (
	"context"
	"encoding/hex"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
)

// fakeSource serves a fixed number of slices, then returns end
type fakeSource struct {
	slices int
	value  int16
	end    error
	served int
	delay  time.Duration
	cancel context.CancelFunc
}

func (f *fakeSource) ReadSlice(ctx context.Context, dst []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.served == f.slices {
		if f.cancel != nil {
			f.cancel()
			return ctx.Err()
		}
		return f.end
	}
	f.served++
	time.Sleep(f.delay)
	for i := range dst {
		dst[i] = f.value
	}
	return nil
}

func (f *fakeSource) SampleRate() uint32 { return 16000 }
func (f *fakeSource) Name() string       { return "fake" }
func (f *fakeSource) Close() error       { return nil }

func newCountingDispatcher(t *testing.T, calls *int) *Dispatcher {
	t.Helper()
	w, err := NewSlidingWindow(8, 4, conf.LayoutRolled)
	require.NoError(t, err)
	d, err := NewDispatcher(w, func(context.Context, *WindowJob) error {
		*calls++
		return nil
	}, syncConfig(), nil)
	require.NoError(t, err)
	return d
}

func TestCaptureEndOfStream(t *testing.T) {
	t.Parallel()

	var calls int
	d := newCountingDispatcher(t, &calls)
	src := &fakeSource{slices: 5, end: io.EOF}

	require.NoError(t, Capture(context.Background(), src, d, 4))
	assert.Equal(t, 5, src.served)
	assert.Equal(t, 4, calls)
}

func TestCaptureDeviceFailure(t *testing.T) {
	t.Parallel()

	var calls int
	d := newCountingDispatcher(t, &calls)
	src := &fakeSource{slices: 2, end: newCaptureError("read_slice", "fake", 16000, ErrDeviceStopped)}

	err := Capture(context.Background(), src, d, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
	assert.ErrorIs(t, err, ErrDeviceStopped)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioSource))

	var capErr *CaptureError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "read_slice", capErr.Op)
	assert.Equal(t, 1, calls)

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "myaudio", ee.GetComponent())
	assert.Equal(t, "fake", ee.GetContext()["device_id"])
	assert.Equal(t, uint32(16000), ee.GetContext()["sample_rate"])
	assert.Equal(t, "read_slice", ee.GetContext()["operation"])
}

func TestCaptureReportsReadTimeOnJob(t *testing.T) {
	t.Parallel()

	w, err := NewSlidingWindow(8, 4, conf.LayoutRolled)
	require.NoError(t, err)
	var jobs []WindowJob
	d, err := NewDispatcher(w, func(_ context.Context, job *WindowJob) error {
		jobs = append(jobs, *job)
		return nil
	}, syncConfig(), nil)
	require.NoError(t, err)

	src := &fakeSource{slices: 3, delay: 2 * time.Millisecond, end: io.EOF}
	require.NoError(t, Capture(context.Background(), src, d, 4))

	require.Len(t, jobs, 2)
	for i, job := range jobs {
		assert.Equal(t, uint64(i+1), job.Seq)
		assert.Equal(t, uint32(16000), job.SampleRate)
		assert.GreaterOrEqual(t, job.Capture, 2*time.Millisecond)
		assert.False(t, job.StartedAt.Before(job.QueuedAt))
		assert.GreaterOrEqual(t, job.QueueWait(), time.Duration(0))
	}
}

func TestCaptureCancellation(t *testing.T) {
	t.Parallel()

	var calls int
	d := newCountingDispatcher(t, &calls)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{slices: 3, cancel: cancel}

	require.NoError(t, Capture(ctx, src, d, 4))
	assert.Equal(t, 3, src.served)
}

func TestHexToASCII(t *testing.T) {
	t.Parallel()

	id := hex.EncodeToString([]byte("hw:1,0\x00\x00"))
	got, err := hexToASCII(id)
	require.NoError(t, err)
	assert.Equal(t, "hw:1,0", got)

	_, err = hexToASCII("zz")
	assert.Error(t, err)
}

func TestMatchesDevice(t *testing.T) {
	t.Parallel()

	assert.True(t, matchesDevice("hw:1,0", "USB Audio", false, "hw:1,0"))
	assert.True(t, matchesDevice("hw:1,0", "USB Audio Device", false, "USB Audio"))
	assert.False(t, matchesDevice("hw:1,0", "USB Audio", false, "hw:2,0"))
	assert.True(t, matchesDevice("hw:0,0", "Built-in", true, "default"))
	assert.False(t, matchesDevice("hw:1,0", "USB Audio", false, "default"))
}

func TestSelectBackend(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"alsa", "pulseaudio", "jack", "coreaudio", "wasapi", "null"} {
		backends, err := selectBackend(name)
		require.NoError(t, err, name)
		assert.Len(t, backends, 1, name)
	}

	_, err := selectBackend("oss")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestCalculateLevel(t *testing.T) {
	t.Parallel()

	silent := CalculateLevel(make([]int16, 100))
	assert.InDelta(t, silenceFloor, silent.RMS, 0)
	assert.InDelta(t, silenceFloor, silent.Peak, 0)
	assert.False(t, silent.Clipping)

	empty := CalculateLevel(nil)
	assert.InDelta(t, silenceFloor, empty.RMS, 0)

	half := CalculateLevel(filled(100, 16384))
	assert.InDelta(t, -6.0206, half.RMS, 1e-3)
	assert.InDelta(t, -6.0206, half.Peak, 1e-3)
	assert.False(t, half.Clipping)

	clipped := CalculateLevel([]int16{0, math.MinInt16, 0, 0})
	assert.True(t, clipped.Clipping)
	assert.InDelta(t, 0, clipped.Peak, 1e-9)
	assert.InDelta(t, -6.0206, clipped.RMS, 1e-3)
}

func TestInt16Pool(t *testing.T) {
	t.Parallel()

	_, err := NewInt16Pool(0)
	require.Error(t, err)

	p, err := NewInt16Pool(16)
	require.NoError(t, err)

	buf := p.Get()
	assert.Len(t, buf, 16)
	p.Put(buf)
	p.Put(make([]int16, 8))
	p.Put(nil)

	stats := p.GetStats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(2), stats.Discarded)
}
