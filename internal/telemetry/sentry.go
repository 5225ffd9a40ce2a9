// Package telemetry wires optional Sentry error reporting.
package telemetry

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/arribada/audiocontroller/internal/buildinfo"
	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/logger"
	"github.com/arribada/audiocontroller/internal/privacy"
)

var (
	initMu      sync.Mutex
	initialized bool
)

// Init initializes Sentry and installs the error reporter when sentry.enabled
// is set. It is a no-op otherwise. transport may be nil to use the default HTTP transport.
func Init(settings *conf.Settings, info *buildinfo.Context, transport sentry.Transport) error {
	if !settings.Sentry.Enabled {
		return nil
	}
	if settings.Sentry.DSN == "" {
		return errors.Newf("sentry is enabled but sentry.dsn is empty").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	initMu.Lock()
	defer initMu.Unlock()

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "", // no hostname
		Release:          fmt.Sprintf("%s@%s", conf.AppName, info.GetVersion()),
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("instance_id", info.GetInstanceID())
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("audio_backend", settings.Audio.Backend)
		scope.SetTag("dispatch_mode", settings.Dispatch.Mode)
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized = true

	GetLogger().Info("error telemetry enabled",
		logger.String("release", info.GetVersion()),
		logger.String("dsn_host", privacy.RedactURL(settings.Sentry.DSN)))
	return nil
}

// applyPrivacyFilters strips host identification and scrubs URLs from the event
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)

	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

// Flush waits up to timeout for buffered events to be sent
func Flush(timeout time.Duration) {
	initMu.Lock()
	enabled := initialized
	initMu.Unlock()
	if enabled {
		sentry.Flush(timeout)
	}
}

// GetLogger returns the telemetry module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
