package processor

import (
	"time"

	"github.com/google/uuid"

	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/myaudio"
)

// Detection is a processed window result handed to actions
type Detection struct {
	ID         string
	Time       time.Time
	Source     string
	Seq        uint64
	SampleRate uint32
	Result     *classifier.Result // smoothed when the moving average is enabled
	Level      myaudio.Level
}

// Trigger is a label whose value reached the alert threshold
type Trigger struct {
	Label     string
	Value     float32
	Threshold float32
}

func newDetection(source string, seq uint64, r *classifier.Result, level myaudio.Level) *Detection {
	return &Detection{
		ID:         uuid.NewString(),
		Time:       time.Now(),
		Source:     source,
		Seq:        seq,
		SampleRate: r.SampleRate,
		Result:     r,
		Level:      level,
	}
}
