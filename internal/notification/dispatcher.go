package notification

import (
	"context"
	"time"

	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/logger"
	"github.com/arribada/audiocontroller/internal/observability/metrics"
	"github.com/arribada/audiocontroller/internal/privacy"
)

// Provider delivers notifications to one external service
type Provider interface {
	GetName() string
	Send(ctx context.Context, n *Notification) error
}

// Dispatcher fans a notification out to every configured provider
type Dispatcher struct {
	providers []Provider
	metrics   *metrics.NotificationMetrics
	log       logger.Logger
}

// NewDispatcher builds one provider per notify.urls entry. m may be nil.
func NewDispatcher(settings *conf.NotifySettings, m *metrics.NotificationMetrics) (*Dispatcher, error) {
	if len(settings.URLs) == 0 {
		return nil, errors.Newf("notifications enabled but notify.urls is empty").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	providers := make([]Provider, 0, len(settings.URLs))
	for _, url := range settings.URLs {
		p, err := NewShoutrrrProvider(url, settings.Timeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	d := NewDispatcherWithProviders(m, providers...)
	d.log.Info("push notifications configured",
		logger.Any("services", privacy.RedactURLs(settings.URLs)))
	return d, nil
}

// NewDispatcherWithProviders creates a dispatcher over explicit providers
func NewDispatcherWithProviders(m *metrics.NotificationMetrics, providers ...Provider) *Dispatcher {
	return &Dispatcher{
		providers: providers,
		metrics:   m,
		log:       GetLogger(),
	}
}

// Send delivers n to every provider. Every provider is attempted; the
// returned error joins the individual failures.
func (d *Dispatcher) Send(ctx context.Context, n *Notification) error {
	var errs []error
	for _, p := range d.providers {
		start := time.Now()
		err := p.Send(ctx, n)
		d.metrics.RecordDelivery(p.GetName(), time.Since(start).Seconds(), err)
		if err != nil {
			d.log.Warn("notification delivery failed",
				logger.String("service", p.GetName()),
				logger.String("notification_id", n.ID),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		d.log.Debug("notification delivered",
			logger.String("service", p.GetName()),
			logger.String("notification_id", n.ID))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.New(errors.Join(errs...)).
		Component("notification").
		Category(errors.CategoryNotification).
		Context("failed_providers", len(errs)).
		Build()
}

// ProviderCount returns the number of configured providers
func (d *Dispatcher) ProviderCount() int { return len(d.providers) }

// GetLogger returns the notification module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}
