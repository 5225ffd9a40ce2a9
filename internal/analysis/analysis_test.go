package analysis

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEngine reads the whole window and reports its mean as the "loud" label
type fakeEngine struct {
	inputLength int
	err         error
	calls       atomic.Int32
	last        atomic.Pointer[classifier.Result]
}

func (e *fakeEngine) Classify(_ context.Context, s classifier.Signal, _ bool) (*classifier.Result, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	buf := make([]float32, s.TotalLength)
	if err := s.Read(0, buf); err != nil {
		return nil, err
	}
	var sum float32
	for _, v := range buf {
		sum += v
	}
	r := &classifier.Result{Classifications: []classifier.Classification{
		{Label: "loud", Value: sum / float32(len(buf))},
	}}
	e.last.Store(r)
	return r, nil
}

func (e *fakeEngine) InputLength() int { return e.inputLength }
func (e *fakeEngine) Labels() []string { return []string{"loud"} }
func (e *fakeEngine) Close() error     { return nil }

// sliceSource yields n slices of a constant value, then io.EOF. With n < 0
// it blocks until the context is cancelled.
type sliceSource struct {
	n     int
	value int16
	read  int
}

func (s *sliceSource) ReadSlice(ctx context.Context, dst []int16) error {
	if s.n < 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.read >= s.n {
		return io.EOF
	}
	s.read++
	for i := range dst {
		dst[i] = s.value
	}
	return nil
}

func (s *sliceSource) SampleRate() uint32 { return 16000 }
func (s *sliceSource) Name() string       { return "fake" }
func (s *sliceSource) Close() error       { return nil }

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Audio.SampleRate = 16000
	s.Window = conf.WindowSettings{Length: 8, SliceLength: 4, Layout: conf.LayoutRolled}
	s.Dispatch = conf.DispatchSettings{
		Mode:            conf.ModeSync,
		Cadence:         conf.CadenceEvery,
		Workers:         1,
		QueueSize:       1,
		Overflow:        conf.OverflowDropOldest,
		Snapshot:        conf.SnapshotCopy,
		OnClassifyError: conf.OnErrorFatal,
	}
	s.Output.Format = conf.OutputClassic
	return s
}

func testDeps(t *testing.T, engine classifier.Engine, out io.Writer) Deps {
	t.Helper()
	m, err := observability.NewMetrics()
	require.NoError(t, err)
	return Deps{Engine: engine, Metrics: m, Output: out}
}

func TestRunSourceSyncClassifiesEveryWindow(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{inputLength: 8}
	out := &lockedBuffer{}
	deps := testDeps(t, engine, out)

	err := RunSource(context.Background(), testSettings(), &sliceSource{n: 6, value: 16384}, deps)
	require.NoError(t, err)

	// warm after two ingests, then one classification per slice
	assert.Equal(t, int32(5), engine.calls.Load())
	assert.Equal(t, 5, strings.Count(out.String(), "Begin output"))
	assert.Contains(t, out.String(), "[0.50000]")
	assert.InDelta(t, 6.0, testutil.ToFloat64(deps.Metrics.Pipeline.SlicesIngested), 0)
	assert.InDelta(t, 5.0, testutil.ToFloat64(deps.Metrics.Pipeline.WindowsDispatched), 0)

	last := engine.last.Load()
	require.NotNil(t, last)
	assert.Equal(t, uint64(5), last.Seq)
	assert.Equal(t, uint32(16000), last.SampleRate)
	assert.GreaterOrEqual(t, last.Timing.Queue, time.Duration(0))
}

func TestRunSourceWritesDebugWAV(t *testing.T) {
	t.Parallel()

	s := testSettings()
	s.DebugWAV.Enabled = true
	s.DebugWAV.Dir = filepath.Join(t.TempDir(), "debug")

	engine := &fakeEngine{inputLength: 8}
	require.NoError(t, RunSource(context.Background(), s, &sliceSource{n: 4, value: 100}, testDeps(t, engine, io.Discard)))

	entries, err := os.ReadDir(s.DebugWAV.Dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"window-000001.wav", "window-000002.wav", "window-000003.wav"}, names)
}

func TestRunSourceWindowMismatch(t *testing.T) {
	t.Parallel()

	err := RunSource(context.Background(), testSettings(), &sliceSource{n: 1}, testDeps(t, &fakeEngine{inputLength: 16}, io.Discard))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWindowMismatch)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestRunSourceClassifyErrorPolicy(t *testing.T) {
	t.Parallel()

	engineErr := classifier.NewClassificationError(3, errors.NewStd("invoke failed"))

	t.Run("fatal", func(t *testing.T) {
		t.Parallel()
		engine := &fakeEngine{inputLength: 8, err: engineErr}
		out := &lockedBuffer{}
		err := RunSource(context.Background(), testSettings(), &sliceSource{n: 6}, testDeps(t, engine, out))
		require.Error(t, err)
		assert.ErrorIs(t, err, classifier.ErrClassification)
		assert.Equal(t, int32(1), engine.calls.Load())
		assert.Contains(t, out.String(), "run_classifier returned: 3")
	})

	t.Run("continue", func(t *testing.T) {
		t.Parallel()
		s := testSettings()
		s.Dispatch.OnClassifyError = conf.OnErrorContinue
		engine := &fakeEngine{inputLength: 8, err: engineErr}
		deps := testDeps(t, engine, io.Discard)
		require.NoError(t, RunSource(context.Background(), s, &sliceSource{n: 6}, deps))
		assert.Equal(t, int32(5), engine.calls.Load())
	})
}

func TestRunSourceAsync(t *testing.T) {
	t.Parallel()

	s := testSettings()
	s.Dispatch.Mode = conf.ModeAsync
	s.Dispatch.QueueSize = 4
	s.Window.Layout = conf.LayoutRegister

	deps := testDeps(t, &fakeEngine{inputLength: 8}, io.Discard)
	require.NoError(t, RunSource(context.Background(), s, &sliceSource{n: 20, value: 1}, deps))
	assert.InDelta(t, 19.0, testutil.ToFloat64(deps.Metrics.Pipeline.WindowsDispatched), 0)
}

func TestRunSourceStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	deps := testDeps(t, &fakeEngine{inputLength: 8}, io.Discard)
	done := make(chan error, 1)
	go func() {
		done <- RunSource(ctx, testSettings(), &sliceSource{n: -1}, deps)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunSource did not return after cancellation")
	}
}
