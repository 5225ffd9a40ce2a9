package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/arribada/audiocontroller/internal/analysis/processor"
	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/logger"
	"github.com/arribada/audiocontroller/internal/myaudio"
	"github.com/arribada/audiocontroller/internal/observability"
)

// pipeline holds the per-source objects: window, dispatcher, processor and
// the optional debug dumper. It is built and torn down by RunSource.
type pipeline struct {
	settings   *conf.Settings
	engine     classifier.Engine
	window     *myaudio.SlidingWindow
	dispatcher *myaudio.Dispatcher
	processor  *processor.Processor
	dumper     *myaudio.WAVDumper
	samples    *myaudio.Int16Pool
	metrics    *observability.Metrics
	log        logger.Logger
}

func newPipeline(settings *conf.Settings, src myaudio.Source, deps Deps) (*pipeline, error) {
	w := settings.Window
	if n := deps.Engine.InputLength(); n > 0 && n != w.Length {
		return nil, errors.New(fmt.Errorf("%w: window %d, model %d", ErrWindowMismatch, w.Length, n)).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Context("window_length", w.Length).
			Context("model_input_length", n).
			Build()
	}

	window, err := myaudio.NewSlidingWindow(w.Length, w.SliceLength, w.Layout)
	if err != nil {
		return nil, err
	}
	samples, err := myaudio.NewInt16Pool(w.Length)
	if err != nil {
		return nil, err
	}

	rate := src.SampleRate()
	p := &pipeline{
		settings: settings,
		engine:   deps.Engine,
		window:   window,
		samples:  samples,
		metrics:  deps.Metrics,
		log:      GetLogger().With(logger.String("source", src.Name())),
	}

	p.dispatcher, err = myaudio.NewDispatcher(window, p.handle, myaudio.NewDispatcherConfig(settings, rate), deps.Metrics.Pipeline)
	if err != nil {
		return nil, err
	}

	p.processor = processor.New(settings, processor.Options{
		Source:              src.Name(),
		Output:              deps.Output,
		CadencePeriod:       time.Duration(p.dispatcher.CadenceSamples()) * time.Second / time.Duration(rate),
		MQTT:                deps.MQTT,
		Notifier:            deps.Notifier,
		Metrics:             deps.Metrics.Pipeline,
		NotificationMetrics: deps.Metrics.Notification,
	})

	if settings.DebugWAV.Enabled {
		p.dumper = myaudio.NewWAVDumper(settings.DebugWAV.Dir, rate)
	}

	p.log.Info("pipeline ready",
		logger.Int("window_length", w.Length),
		logger.Int("slice_length", w.SliceLength),
		logger.String("layout", w.Layout),
		logger.String("mode", settings.Dispatch.Mode),
		logger.String("cadence", settings.Dispatch.Cadence),
		logger.Uint64("sample_rate", uint64(rate)))
	return p, nil
}

// handle classifies one window. It runs on the capture goroutine in sync
// mode and on a dispatch worker in async mode.
func (p *pipeline) handle(ctx context.Context, job *myaudio.WindowJob) error {
	var normalize time.Duration
	start := time.Now()
	result, err := p.engine.Classify(ctx, job.Signal().Timed(&normalize), p.settings.Classifier.Debug)
	p.metrics.Pipeline.RecordClassification(time.Since(start).Seconds(), err)
	if err != nil {
		code := -1
		var ce *classifier.ClassificationError
		if errors.As(err, &ce) {
			code = ce.Code
		}
		p.processor.ClassifyFailed(job.Seq, code, err)
		return err
	}

	result.Seq = job.Seq
	result.SampleRate = job.SampleRate
	result.Timing.Capture = job.Capture
	result.Timing.Queue = job.QueueWait()
	result.Timing.Normalize = normalize

	buf := job.Samples(p.samples.Get())
	defer p.samples.Put(buf)

	if p.dumper != nil {
		if path, err := p.dumper.Dump(buf); err != nil {
			p.log.Warn("debug WAV dump skipped", logger.Uint64("seq", job.Seq), logger.Error(err))
		} else {
			p.log.Debug("debug WAV written", logger.Uint64("seq", job.Seq), logger.String("path", path))
		}
	}

	p.processor.Process(ctx, job.Seq, result, myaudio.CalculateLevel(buf))
	return nil
}
