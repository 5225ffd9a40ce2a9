// Package processor turns engine results into output: console presentation,
// moving-average smoothing, threshold alerts with a per-label cooldown, and
// delivery of results to MQTT and push notification services.
package processor

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/arribada/audiocontroller/internal/analysis/jobqueue"
	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/diagnostics"
	"github.com/arribada/audiocontroller/internal/logger"
	"github.com/arribada/audiocontroller/internal/mqtt"
	"github.com/arribada/audiocontroller/internal/myaudio"
	"github.com/arribada/audiocontroller/internal/observability/metrics"
)

const (
	defaultJobQueueSize = 100
	overrunWarnInterval = time.Minute
)

// Options carries the processor's collaborators. Every field is optional.
type Options struct {
	Source              string        // device id or file name reported with results
	Output              io.Writer     // classic output sink, stdout when nil
	CadencePeriod       time.Duration // classification time above this is an overrun
	MQTT                mqtt.Client
	Notifier            Notifier
	Metrics             *metrics.PipelineMetrics
	NotificationMetrics *metrics.NotificationMetrics
}

// Processor handles classified windows
type Processor struct {
	settings  *conf.Settings
	opts      Options
	threshold float32

	mafMu sync.Mutex
	maf   *classifier.MAF // nil when smoothing is disabled; needs results in window order

	outMu sync.Mutex
	out   io.Writer

	cooldown *cache.Cache // nil when every crossing alerts
	JobQueue *jobqueue.JobQueue
	retry    jobqueue.RetryConfig

	overrunLimiter *rate.Limiter
	overruns       atomic.Uint64

	log logger.Logger
}

// New creates a processor. Start must be called before results are processed.
func New(settings *conf.Settings, opts Options) *Processor {
	p := &Processor{
		settings:       settings,
		opts:           opts,
		threshold:      float32(settings.Processor.Threshold),
		out:            opts.Output,
		JobQueue:       jobqueue.NewJobQueue(defaultJobQueueSize),
		retry:          jobqueue.GetDefaultRetryConfig(true),
		overrunLimiter: rate.NewLimiter(rate.Every(overrunWarnInterval), 1),
		log:            GetLogger().With(logger.String("source", opts.Source)),
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if settings.Processor.MAFSize > 0 {
		p.maf = classifier.NewMAF(settings.Processor.MAFSize)
	}
	// Labels are a fixed set, so expired entries are overwritten rather than
	// swept and no janitor goroutine is needed.
	if settings.Processor.Cooldown > 0 {
		p.cooldown = cache.New(settings.Processor.Cooldown, 0)
	}
	return p
}

// Start starts the action queue
func (p *Processor) Start(ctx context.Context) {
	p.JobQueue.Start(ctx)
}

// Stop stops the action queue, waiting up to timeout for deliveries in flight
func (p *Processor) Stop(timeout time.Duration) error {
	return p.JobQueue.Stop(timeout)
}

// Overruns returns how many results took longer than the cadence period
func (p *Processor) Overruns() uint64 { return p.overruns.Load() }

// Process presents one engine result and triggers alert actions. It is safe
// for concurrent use by dispatcher workers.
func (p *Processor) Process(ctx context.Context, seq uint64, result *classifier.Result, level myaudio.Level) {
	p.opts.Metrics.RecordLevel(level.RMS, level.Clipping)
	p.checkOverrun(ctx, seq, result.Timing)

	smoothed := result
	if p.maf != nil {
		p.mafMu.Lock()
		smoothed = p.maf.Update(result)
		p.mafMu.Unlock()
	}

	d := newDetection(p.opts.Source, seq, smoothed, level)
	p.present(d)

	triggers := p.evaluate(d)
	for i := range triggers {
		if p.opts.MQTT != nil {
			p.enqueue(&MqttAction{Client: p.opts.MQTT, Detection: d, Trigger: &triggers[i], RetryConfig: p.retry})
		}
		if p.opts.Notifier != nil {
			p.enqueue(&NotifyAction{Notifier: p.opts.Notifier, Detection: d, Trigger: triggers[i], RetryConfig: p.retry})
		}
	}
	if len(triggers) == 0 && p.opts.MQTT != nil && p.settings.MQTT.PublishAll {
		p.enqueue(&MqttAction{Client: p.opts.MQTT, Detection: d, RetryConfig: jobqueue.RetryConfig{}})
	}
}

// ClassifyFailed reports a failed classification in the configured output format
func (p *Processor) ClassifyFailed(seq uint64, code int, err error) {
	if p.settings.Output.Format != conf.OutputClassic {
		return
	}
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if werr := WriteClassic(p.out, code, nil); werr != nil {
		p.log.Warn("failed to write result", logger.Uint64("seq", seq), logger.Error(werr))
	}
}

func (p *Processor) present(d *Detection) {
	if p.settings.Output.Format != conf.OutputClassic {
		p.log.Info("classification", resultFields(d)...)
		return
	}
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if err := WriteClassic(p.out, 0, d.Result); err != nil {
		p.log.Warn("failed to write result", logger.Uint64("seq", d.Seq), logger.Error(err))
	}
}

// evaluate returns the labels that reached the threshold and are not cooling down
func (p *Processor) evaluate(d *Detection) []Trigger {
	if p.threshold <= 0 {
		return nil
	}
	var triggers []Trigger
	for _, c := range d.Result.Classifications {
		if c.Value < p.threshold {
			continue
		}
		p.opts.Metrics.RecordThresholdCrossing(c.Label)
		if p.cooldown != nil && p.cooldown.Add(c.Label, d.ID, cache.DefaultExpiration) != nil {
			p.opts.NotificationMetrics.RecordSuppressed(c.Label)
			p.log.Debug("alert suppressed by cooldown",
				logger.String("label", c.Label),
				logger.Float32("value", c.Value))
			continue
		}
		p.log.Info("threshold reached",
			logger.String("detection_id", d.ID),
			logger.String("label", c.Label),
			logger.Float32("value", c.Value),
			logger.Float32("threshold", p.threshold))
		triggers = append(triggers, Trigger{Label: c.Label, Value: c.Value, Threshold: p.threshold})
	}
	return triggers
}

func (p *Processor) enqueue(action jobqueue.Action) {
	var retry jobqueue.RetryConfig
	switch a := action.(type) {
	case *MqttAction:
		retry = a.RetryConfig
	case *NotifyAction:
		retry = a.RetryConfig
	}
	if _, err := p.JobQueue.Enqueue(action, nil, retry); err != nil {
		p.log.Warn("failed to enqueue action",
			logger.String("action", action.GetDescription()),
			logger.Error(err))
	}
}

func (p *Processor) checkOverrun(ctx context.Context, seq uint64, t classifier.Timing) {
	period := p.opts.CadencePeriod
	elapsed := t.DSP + t.Classification
	if period <= 0 || elapsed <= period {
		return
	}
	p.overruns.Add(1)
	if !p.overrunLimiter.Allow() {
		return
	}

	fields := []logger.Field{
		logger.Uint64("seq", seq),
		logger.Duration("elapsed", elapsed),
		logger.Duration("period", period),
		logger.Uint64("overruns", p.overruns.Load()),
	}
	fields = append(fields, diagnostics.Collect(ctx).Fields()...)
	p.log.Warn("classification slower than cadence period, windows will be dropped", fields...)
}
