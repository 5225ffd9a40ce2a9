package mqtt

import (
	"time"

	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/myaudio"
)

// ResultDTO is the JSON payload published for a classified window.
//
// Field names are part of the published contract; consumers key on them.
type ResultDTO struct {
	ID              string              `json:"id"`
	Timestamp       string              `json:"timestamp"` // RFC3339 with milliseconds
	Source          string              `json:"source"`
	Seq             uint64              `json:"seq"`
	SampleRate      uint32              `json:"sample_rate"`
	Classifications []ClassificationDTO `json:"classification"`
	Anomaly         *float32            `json:"anomaly,omitempty"`
	LevelDBFS       float64             `json:"level_dbfs"`
	PeakDBFS        float64             `json:"peak_dbfs"`
	Clipping        bool                `json:"clipping"`
	CaptureMs       float64             `json:"capture_ms"`
	QueueMs         float64             `json:"queue_ms"`
	ProcessingMs    float64             `json:"processing_ms"`
	Trigger         *TriggerDTO         `json:"trigger,omitempty"`
}

// ClassificationDTO is one label and value
type ClassificationDTO struct {
	Label string  `json:"label"`
	Value float32 `json:"value"`
}

// TriggerDTO identifies the label that crossed the alert threshold
type TriggerDTO struct {
	Label     string  `json:"label"`
	Value     float32 `json:"value"`
	Threshold float32 `json:"threshold"`
}

// NewResultDTO creates a ResultDTO from an engine result
func NewResultDTO(id string, ts time.Time, source string, seq uint64, r *classifier.Result, level myaudio.Level) *ResultDTO {
	dto := &ResultDTO{
		ID:              id,
		Timestamp:       ts.Format("2006-01-02T15:04:05.000Z07:00"),
		Source:          source,
		Seq:             seq,
		SampleRate:      r.SampleRate,
		Classifications: make([]ClassificationDTO, len(r.Classifications)),
		LevelDBFS:       level.RMS,
		PeakDBFS:        level.Peak,
		Clipping:        level.Clipping,
		CaptureMs:       millis(r.Timing.Capture),
		QueueMs:         millis(r.Timing.Queue),
		ProcessingMs:    millis(r.Timing.Classification),
	}
	for i, c := range r.Classifications {
		dto.Classifications[i] = ClassificationDTO{Label: c.Label, Value: c.Value}
	}
	if r.HasAnomaly {
		anomaly := r.Anomaly
		dto.Anomaly = &anomaly
	}
	return dto
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// SetTrigger marks the DTO as a threshold alert
func (dto *ResultDTO) SetTrigger(label string, value, threshold float32) {
	dto.Trigger = &TriggerDTO{Label: label, Value: value, Threshold: threshold}
}
