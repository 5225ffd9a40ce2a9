package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arribada/audiocontroller/internal/analysis/jobqueue"
	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/logger"
	"github.com/arribada/audiocontroller/internal/mqtt"
	"github.com/arribada/audiocontroller/internal/notification"
)

// Notifier delivers an alert to the configured push services
type Notifier interface {
	Send(ctx context.Context, n *notification.Notification) error
}

// MqttAction publishes a detection as JSON
type MqttAction struct {
	Client      mqtt.Client
	Detection   *Detection
	Trigger     *Trigger // nil for untriggered results
	RetryConfig jobqueue.RetryConfig
	Description string
}

// NotifyAction sends a threshold alert through the notifier
type NotifyAction struct {
	Notifier    Notifier
	Detection   *Detection
	Trigger     Trigger
	RetryConfig jobqueue.RetryConfig
	Description string
}

// GetDescription returns a description of the action
func (a *MqttAction) GetDescription() string {
	if a.Description != "" {
		return a.Description
	}
	return "Publish result to MQTT"
}

// Execute publishes the detection. A disconnected client fails the attempt so
// the queue retries it once the client has reconnected.
func (a *MqttAction) Execute(ctx context.Context, _ any) error {
	if !a.Client.IsConnected() {
		return errors.Newf("MQTT client not connected").
			Component("analysis.processor").
			Category(errors.CategoryMQTTConnection).
			Context("operation", "mqtt_publish").
			Context("retryable", true).
			Build()
	}

	d := a.Detection
	dto := mqtt.NewResultDTO(d.ID, d.Time, d.Source, d.Seq, d.Result, d.Level)
	if a.Trigger != nil {
		dto.SetTrigger(a.Trigger.Label, a.Trigger.Value, a.Trigger.Threshold)
	}

	payload, err := json.Marshal(dto)
	if err != nil {
		return errors.New(err).
			Component("analysis.processor").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "json_marshal").
			Build()
	}

	if err := a.Client.Publish(ctx, "", string(payload)); err != nil {
		return err
	}
	GetLogger().Debug("result published",
		logger.String("detection_id", d.ID),
		logger.Uint64("seq", d.Seq))
	return nil
}

// GetDescription returns a description of the action
func (a *NotifyAction) GetDescription() string {
	if a.Description != "" {
		return a.Description
	}
	return "Send threshold notification"
}

// Execute sends the alert
func (a *NotifyAction) Execute(ctx context.Context, _ any) error {
	n := notification.NewNotification(
		notification.TypeAlert,
		notification.PriorityHigh,
		fmt.Sprintf("%s detected", a.Trigger.Label),
		alertMessage(a.Detection, a.Trigger),
	)
	n.ID = a.Detection.ID
	return a.Notifier.Send(ctx, n)
}

func alertMessage(d *Detection, t Trigger) string {
	return fmt.Sprintf("%s reached %.2f (threshold %.2f) on %s at %s",
		t.Label, t.Value, t.Threshold, d.Source, d.Time.Format("2006-01-02 15:04:05"))
}
