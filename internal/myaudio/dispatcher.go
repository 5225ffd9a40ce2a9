package myaudio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/logger"
	"github.com/arribada/audiocontroller/internal/observability/metrics"
)

// WindowHandler classifies one window. In sync mode it runs on the capture
// goroutine; in async mode it runs on a worker.
type WindowHandler func(ctx context.Context, job *WindowJob) error

// WindowJob is one window selected for classification
type WindowJob struct {
	Seq        uint64        // classification sequence, starting at 1
	IngestSeq  uint64        // ingest count when the window was selected
	SampleRate uint32        // effective device rate
	Capture    time.Duration // time blocked on the source for the slice that completed the window
	QueuedAt   time.Time
	StartedAt  time.Time // when the handler was called

	signal  classifier.Signal
	samples []int16       // copy snapshot, nil otherwise
	window  *SlidingWindow // live window for sync and lock modes
}

// Signal returns the window as an engine data source
func (j *WindowJob) Signal() classifier.Signal { return j.signal }

// Len returns the number of samples in the window
func (j *WindowJob) Len() int { return j.signal.TotalLength }

// QueueWait is how long the job waited between selection and its handler
func (j *WindowJob) QueueWait() time.Duration {
	if j.StartedAt.IsZero() {
		return 0
	}
	return j.StartedAt.Sub(j.QueuedAt)
}

// Samples copies the window in chronological order into dst, growing it if needed
func (j *WindowJob) Samples(dst []int16) []int16 {
	n := j.Len()
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]
	if j.samples != nil {
		copy(dst, j.samples)
	} else {
		j.window.CopyTo(dst)
	}
	return dst
}

// DispatcherConfig configures scheduling and backpressure
type DispatcherConfig struct {
	Mode            string
	Cadence         string
	SkipCount       int
	Period          time.Duration
	Workers         int
	QueueSize       int
	Overflow        string
	Snapshot        string
	OnClassifyError string
	SampleRate      uint32 // effective rate
}

// NewDispatcherConfig takes the dispatch settings with the device's effective rate
func NewDispatcherConfig(settings *conf.Settings, sampleRate uint32) DispatcherConfig {
	d := settings.Dispatch
	return DispatcherConfig{
		Mode:            d.Mode,
		Cadence:         d.Cadence,
		SkipCount:       d.SkipCount,
		Period:          d.Period,
		Workers:         d.Workers,
		QueueSize:       d.QueueSize,
		Overflow:        d.Overflow,
		Snapshot:        d.Snapshot,
		OnClassifyError: d.OnClassifyError,
		SampleRate:      sampleRate,
	}
}

// Dispatcher gates the window on warm-up, applies the cadence and hands
// selected windows to the handler. Ingest must only be called from the
// capture goroutine.
type Dispatcher struct {
	cfg     DispatcherConfig
	window  *SlidingWindow
	handler WindowHandler
	cadence *Cadence
	metrics *metrics.PipelineMetrics
	log     logger.Logger

	seq   uint64
	ready bool

	// async only
	pool        *Int16Pool
	queue       chan *WindowJob
	stateMu     sync.Mutex // guards inflight and the window state gauge
	inflight    int
	dropped     atomic.Uint64
	dropLimiter *rate.Limiter
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewDispatcher creates a dispatcher for window. m may be nil.
func NewDispatcher(window *SlidingWindow, handler WindowHandler, cfg DispatcherConfig, m *metrics.PipelineMetrics) (*Dispatcher, error) {
	cadence, err := NewCadence(cfg.Cadence, cfg.SkipCount, cfg.Period, cfg.SampleRate, window.SliceLength())
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		cfg:     cfg,
		window:  window,
		handler: handler,
		cadence: cadence,
		metrics: m,
		log:     GetLogger().Module("dispatch"),
	}

	switch cfg.Mode {
	case conf.ModeSync:
		return d, nil
	case conf.ModeAsync:
	default:
		return nil, errors.Newf("unknown dispatch mode %q", cfg.Mode).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Build()
	}

	if cfg.Workers < 1 || cfg.QueueSize < 1 {
		return nil, errors.Newf("async dispatch needs at least one worker and one queue slot (workers=%d, queue=%d)",
			cfg.Workers, cfg.QueueSize).
			Component("myaudio").
			Category(errors.CategoryWorker).
			Build()
	}
	switch cfg.Overflow {
	case conf.OverflowDropOldest, conf.OverflowDropNewest:
	default:
		return nil, errors.Newf("unknown overflow policy %q", cfg.Overflow).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Build()
	}
	switch cfg.Snapshot {
	case conf.SnapshotLock:
	case conf.SnapshotCopy:
		if d.pool, err = NewInt16Pool(window.Len()); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Newf("unknown snapshot strategy %q", cfg.Snapshot).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Build()
	}

	d.queue = make(chan *WindowJob, cfg.QueueSize)
	d.dropLimiter = rate.NewLimiter(rate.Every(10*time.Second), 1)
	return d, nil
}

// Start launches the worker pool. It is a no-op in sync mode.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.cfg.Mode != conf.ModeAsync || d.started {
		return
	}
	d.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	for i := range d.cfg.Workers {
		d.wg.Go(func() { d.worker(workerCtx, i) })
	}
	d.log.Debug("dispatch workers started",
		logger.Int("workers", d.cfg.Workers),
		logger.Int("queue_size", d.cfg.QueueSize),
		logger.String("overflow", d.cfg.Overflow),
		logger.String("snapshot", d.cfg.Snapshot))
}

// Stop cancels the workers, waits for them and releases queued windows.
// In-flight handlers see a cancelled context and may be abandoned.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
	for {
		select {
		case job := <-d.queue:
			d.release(job)
		default:
			d.metrics.SetQueueDepth(0)
			return
		}
	}
}

// State returns the current window state
func (d *Dispatcher) State() WindowState {
	if !d.window.Warmed() {
		return StateWarming
	}
	if d.inFlight() > 0 {
		return StateClassifying
	}
	return StateReady
}

func (d *Dispatcher) inFlight() int {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.inflight
}

// addInFlight adjusts the in-flight count and the state gauge together
func (d *Dispatcher) addInFlight(delta int) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.inflight += delta
	if d.inflight > 0 {
		d.metrics.SetWindowState(int(StateClassifying))
	} else {
		d.metrics.SetWindowState(int(StateReady))
	}
}

// Dropped returns the number of windows discarded by the overflow policy
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// CadenceSamples returns the nominal number of samples between classifications
func (d *Dispatcher) CadenceSamples() int { return d.cadence.PeriodSamples() }

// Ingest rolls slice into the window and dispatches it if the window is ready
// and the cadence selects it. An empty slice is a no-op. In sync mode the
// returned error is the handler error when on_classify_error is fatal.
func (d *Dispatcher) Ingest(ctx context.Context, slice []int16) error {
	return d.IngestCaptured(ctx, slice, 0)
}

// IngestCaptured is Ingest with the time spent reading slice from the source,
// which is reported on the job when this ingest selects a window.
func (d *Dispatcher) IngestCaptured(ctx context.Context, slice []int16, captured time.Duration) error {
	if len(slice) == 0 {
		return nil
	}
	if err := d.window.Ingest(slice); err != nil {
		return errors.New(err).
			Component("myaudio").
			Category(errors.CategoryBuffer).
			Context("operation", "ingest").
			Build()
	}
	d.metrics.RecordIngest()

	if !d.window.Warmed() {
		return nil
	}
	if !d.ready {
		d.ready = true
		d.addInFlight(0)
		d.log.Info("window ready",
			logger.Uint64("ingests", d.window.Ingested()),
			logger.Int("window_length", d.window.Len()),
			logger.Int("slice_length", d.window.SliceLength()))
	}

	if !d.cadence.Next() {
		return nil
	}
	d.seq++
	d.metrics.RecordDispatch()

	job := &WindowJob{
		Seq:        d.seq,
		IngestSeq:  d.window.Ingested(),
		SampleRate: d.cfg.SampleRate,
		Capture:    captured,
		QueuedAt:   time.Now(),
	}

	if d.cfg.Mode == conf.ModeSync {
		job.window = d.window
		job.signal = d.window.Signal()
		return d.runSync(ctx, job)
	}

	if d.cfg.Snapshot == conf.SnapshotCopy {
		start := time.Now()
		job.samples = d.pool.Get()
		d.window.Snapshot(job.samples)
		job.signal = SliceSignal(job.samples)
		d.metrics.RecordSnapshot(time.Since(start).Seconds())
	} else {
		job.window = d.window
		job.signal = d.window.Signal()
	}
	d.enqueue(job)
	return nil
}

func (d *Dispatcher) runSync(ctx context.Context, job *WindowJob) error {
	job.StartedAt = time.Now()
	err := d.handler(ctx, job)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if d.cfg.OnClassifyError == conf.OnErrorContinue {
		d.log.Warn("classification failed, continuing",
			logger.Uint64("seq", job.Seq),
			logger.Error(err))
		return nil
	}
	return err
}

// enqueue hands job to the workers, applying the overflow policy on a full queue
func (d *Dispatcher) enqueue(job *WindowJob) {
	select {
	case d.queue <- job:
		d.metrics.SetQueueDepth(len(d.queue))
		return
	default:
	}

	if d.cfg.Overflow == conf.OverflowDropNewest {
		d.drop(job, metrics.DropNewest)
		return
	}

	// only this goroutine sends, so evicting one job always makes room
	select {
	case old := <-d.queue:
		d.drop(old, metrics.DropOldest)
	default:
	}
	select {
	case d.queue <- job:
		d.metrics.SetQueueDepth(len(d.queue))
	default:
		d.drop(job, metrics.DropNewest)
	}
}

func (d *Dispatcher) drop(job *WindowJob, policy string) {
	total := d.dropped.Add(1)
	d.metrics.RecordDrop(policy)
	if d.dropLimiter.Allow() {
		d.log.Warn("classification queue full, window dropped",
			logger.String("policy", policy),
			logger.Uint64("seq", job.Seq),
			logger.Uint64("dropped_total", total),
			logger.Int("in_flight", d.inFlight()))
	}
	d.release(job)
}

func (d *Dispatcher) release(job *WindowJob) {
	if job.samples != nil {
		d.pool.Put(job.samples)
		job.samples = nil
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.queue:
			d.metrics.SetQueueDepth(len(d.queue))
			d.process(ctx, id, job)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, id int, job *WindowJob) {
	d.addInFlight(1)
	defer func() {
		d.addInFlight(-1)
		d.release(job)
	}()

	if job.window != nil {
		job.window.RLock()
		defer job.window.RUnlock()
	}

	job.StartedAt = time.Now()
	if err := d.handler(ctx, job); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.log.Error("classification failed",
			logger.Int("worker", id),
			logger.Uint64("seq", job.Seq),
			logger.Error(err))
	}
}
