// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	add := func(errs []string) {
		ve.Errors = append(ve.Errors, errs...)
	}

	add(validateAudioSettings(&settings.Audio))
	add(validateWindowSettings(&settings.Window))
	add(validateDispatchSettings(&settings.Dispatch))
	add(validateClassifierSettings(&settings.Classifier))
	add(validateOutputSettings(&settings.Output, &settings.Processor))
	add(validateIntegrationSettings(settings))

	// results from several workers arrive out of order and would smooth in that order
	if settings.Processor.MAFSize > 0 && settings.Dispatch.Mode == ModeAsync && settings.Dispatch.Workers > 1 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("processor.maf_size needs results in window order; set dispatch.workers to 1 (got %d)",
			settings.Dispatch.Workers))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(a *AudioSettings) []string {
	var errs []string
	if a.SampleRate == 0 {
		errs = append(errs, "audio.sample_rate must be positive")
	}
	switch a.Backend {
	case "", "alsa", "pulseaudio", "jack", "coreaudio", "wasapi", "null":
	default:
		errs = append(errs, fmt.Sprintf("audio.backend %q is not supported", a.Backend))
	}
	return errs
}

func validateWindowSettings(w *WindowSettings) []string {
	var errs []string
	if w.Length <= 0 {
		errs = append(errs, "window.length must be positive")
	}
	if w.SliceLength <= 0 {
		errs = append(errs, "window.slice_length must be positive")
	}
	if w.Length > 0 && w.SliceLength > 0 && w.Length%w.SliceLength != 0 {
		errs = append(errs, fmt.Sprintf("window.length (%d) must be a multiple of window.slice_length (%d)",
			w.Length, w.SliceLength))
	}
	switch w.Layout {
	case LayoutRolled, LayoutRegister:
	default:
		errs = append(errs, fmt.Sprintf("window.layout must be %q or %q", LayoutRolled, LayoutRegister))
	}
	return errs
}

func validateDispatchSettings(d *DispatchSettings) []string {
	var errs []string
	switch d.Mode {
	case ModeSync, ModeAsync:
	default:
		errs = append(errs, fmt.Sprintf("dispatch.mode must be %q or %q", ModeSync, ModeAsync))
	}
	switch d.Cadence {
	case CadenceEvery:
	case CadenceSkip:
		if d.SkipCount < 0 {
			errs = append(errs, "dispatch.skip_count must not be negative")
		}
	case CadencePeriod:
		if d.Period <= 0 {
			errs = append(errs, "dispatch.period must be positive when cadence is period")
		}
	default:
		errs = append(errs, fmt.Sprintf("dispatch.cadence must be one of %q, %q, %q",
			CadenceEvery, CadenceSkip, CadencePeriod))
	}
	if d.Mode == ModeAsync {
		if d.Workers < 1 {
			errs = append(errs, "dispatch.workers must be at least 1")
		}
		if d.QueueSize < 1 {
			errs = append(errs, "dispatch.queue_size must be at least 1")
		}
		switch d.Overflow {
		case OverflowDropOldest, OverflowDropNewest:
		default:
			errs = append(errs, fmt.Sprintf("dispatch.overflow must be %q or %q",
				OverflowDropOldest, OverflowDropNewest))
		}
		switch d.Snapshot {
		case SnapshotCopy, SnapshotLock:
		default:
			errs = append(errs, fmt.Sprintf("dispatch.snapshot must be %q or %q", SnapshotCopy, SnapshotLock))
		}
	}
	switch d.OnClassifyError {
	case OnErrorFatal, OnErrorContinue:
	default:
		errs = append(errs, fmt.Sprintf("dispatch.on_classify_error must be %q or %q",
			OnErrorFatal, OnErrorContinue))
	}
	return errs
}

func validateClassifierSettings(c *ClassifierSettings) []string {
	var errs []string
	if c.ModelPath == "" {
		errs = append(errs, "classifier.model_path is required")
	}
	if c.Threads < 0 {
		errs = append(errs, "classifier.threads must not be negative")
	}
	if c.PullChunk <= 0 {
		errs = append(errs, "classifier.pull_chunk must be positive")
	}
	return errs
}

func validateOutputSettings(o *OutputSettings, p *ProcessorSettings) []string {
	var errs []string
	switch o.Format {
	case OutputLog, OutputClassic:
	default:
		errs = append(errs, fmt.Sprintf("output.format must be %q or %q", OutputLog, OutputClassic))
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		errs = append(errs, "processor.threshold must be between 0 and 1")
	}
	if p.MAFSize < 0 {
		errs = append(errs, "processor.maf_size must not be negative")
	}
	if p.Cooldown < 0 {
		errs = append(errs, "processor.cooldown must not be negative")
	}
	return errs
}

func validateIntegrationSettings(s *Settings) []string {
	var errs []string
	if s.MQTT.Enabled {
		u, err := url.Parse(s.MQTT.Broker)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("mqtt.broker %q is not a valid broker URL", s.MQTT.Broker))
		}
		if s.MQTT.Topic == "" {
			errs = append(errs, "mqtt.topic is required when mqtt is enabled")
		}
	}
	if s.Notify.Enabled && len(s.Notify.URLs) == 0 {
		errs = append(errs, "notify.urls must contain at least one URL when notify is enabled")
	}
	if s.Observability.Enabled {
		if _, _, err := net.SplitHostPort(s.Observability.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("observability.listen %q: %v", s.Observability.Listen, err))
		}
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		errs = append(errs, "sentry.dsn is required when sentry is enabled")
	}
	if s.DebugWAV.Enabled && s.DebugWAV.Dir == "" {
		errs = append(errs, "debug_wav.dir is required when debug_wav is enabled")
	}
	return errs
}
