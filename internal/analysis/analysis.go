// Package analysis supervises the capture and classification pipeline: it
// builds the engine, source, window and dispatcher, runs capture alongside
// the metrics endpoint and host monitor, and tears everything down in order.
package analysis

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arribada/audiocontroller/internal/analysis/processor"
	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/classifier/tflite"
	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/diagnostics"
	"github.com/arribada/audiocontroller/internal/logger"
	"github.com/arribada/audiocontroller/internal/mqtt"
	"github.com/arribada/audiocontroller/internal/myaudio"
	"github.com/arribada/audiocontroller/internal/notification"
	"github.com/arribada/audiocontroller/internal/observability"
)

const (
	systemMonitorInterval = 10 * time.Second
	processorStopTimeout  = 5 * time.Second
	maxMQTTConnectBackoff = 5 * time.Minute
)

// Deps are the collaborators RunSource does not own. Metrics and Engine are
// required; the rest are optional.
type Deps struct {
	Engine   classifier.Engine
	Metrics  *observability.Metrics
	MQTT     mqtt.Client
	Notifier processor.Notifier
	Output   io.Writer // classic output sink, stdout when nil
}

// Run captures from settings.Audio.Source until SIGINT, SIGTERM or a fatal error
func Run(ctx context.Context, settings *conf.Settings) error {
	return runWith(ctx, settings, func(m *observability.Metrics) (myaudio.Source, error) {
		return myaudio.OpenMalgoSource(myaudio.MalgoConfig{
			Device:      settings.Audio.Source,
			SampleRate:  settings.Audio.SampleRate,
			Backend:     settings.Audio.Backend,
			SliceLength: settings.Window.SliceLength,
			Debug:       settings.Debug,
			Metrics:     m.Pipeline,
		})
	})
}

// Replay runs the pipeline over a WAV file and returns at its end. Without
// realtime pacing windows are classified synchronously so none are dropped.
func Replay(ctx context.Context, settings *conf.Settings, path string, realtime bool) error {
	s := *settings
	if !realtime {
		s.Dispatch.Mode = conf.ModeSync
	}
	return runWith(ctx, &s, func(*observability.Metrics) (myaudio.Source, error) {
		return myaudio.OpenWAVSource(path, realtime)
	})
}

func runWith(ctx context.Context, settings *conf.Settings, open func(*observability.Metrics) (myaudio.Source, error)) error {
	log := GetLogger()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	engine, err := tflite.New(tflite.Config{
		ModelPath:  settings.Classifier.ModelPath,
		LabelsPath: settings.Classifier.LabelsPath,
		Threads:    settings.Classifier.Threads,
		PullChunk:  settings.Classifier.PullChunk,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("engine close failed", logger.Error(err))
		}
	}()

	deps := Deps{Engine: engine, Metrics: m}

	if settings.MQTT.Enabled {
		client, err := mqtt.NewClient(settings, m.MQTT)
		if err != nil {
			return err
		}
		defer client.Disconnect()
		deps.MQTT = client
	}

	if settings.Notify.Enabled {
		notifier, err := notification.NewDispatcher(&settings.Notify, m.Notification)
		if err != nil {
			return err
		}
		deps.Notifier = notifier
	}

	src, err := open(m)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn("source close failed", logger.Error(err))
		}
	}()

	return RunSource(ctx, settings, src, deps)
}

// RunSource runs the pipeline against src until ctx is cancelled, the source
// ends or a fatal error occurs. Workers and queued actions are stopped before
// it returns; closing src and the engine is left to the caller.
func RunSource(ctx context.Context, settings *conf.Settings, src myaudio.Source, deps Deps) error {
	log := GetLogger()

	p, err := newPipeline(settings, src, deps)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	p.processor.Start(gctx)
	p.dispatcher.Start(gctx)

	if settings.Observability.Enabled {
		endpoint, err := observability.NewEndpoint(settings, deps.Metrics)
		if err != nil {
			cancel()
			p.shutdown()
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	g.Go(func() error {
		diagnostics.Monitor(gctx, deps.Metrics.System, systemMonitorInterval)
		return nil
	})

	if deps.MQTT != nil {
		g.Go(func() error {
			connectMQTT(gctx, deps.MQTT)
			return nil
		})
	}

	g.Go(func() error {
		// the end of capture ends the run
		defer cancel()
		return myaudio.Capture(gctx, src, p.dispatcher, settings.Window.SliceLength)
	})

	err = g.Wait()
	p.shutdown()

	if err != nil {
		log.Error("pipeline stopped", logger.Error(err))
		return err
	}
	log.Info("pipeline stopped",
		logger.Uint64("ingested", p.window.Ingested()),
		logger.Uint64("dropped", p.dispatcher.Dropped()),
		logger.Uint64("overruns", p.processor.Overruns()))
	return nil
}

// shutdown drains the worker pool, then the action queue
func (p *pipeline) shutdown() {
	p.dispatcher.Stop()
	if err := p.processor.Stop(processorStopTimeout); err != nil {
		p.log.Warn("action queue did not drain", logger.Error(err))
	}
}

// connectMQTT retries the initial broker connection until it succeeds or ctx
// is done. Later disconnects are handled by the client itself.
func connectMQTT(ctx context.Context, c mqtt.Client) {
	log := GetLogger()
	backoff := mqtt.DefaultConfig().ReconnectCooldown
	for {
		err := c.Connect(ctx)
		if err == nil {
			return
		}
		log.Warn("MQTT connection failed", logger.Error(err), logger.Duration("retry_in", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, maxMQTTConnectBackoff)
	}
}
