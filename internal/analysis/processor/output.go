package processor

import (
	"fmt"
	"io"
	"strings"

	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/logger"
)

// WriteClassic writes a result in the line-oriented block form consumed by
// existing log scrapers. A nil result prints an empty value list.
func WriteClassic(w io.Writer, code int, r *classifier.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "run_classifier returned: %d\n", code)
	b.WriteString("Begin output\n")
	b.WriteByte('[')
	if r != nil {
		for i, c := range r.Classifications {
			fmt.Fprintf(&b, "%.5f", c.Value)
			if r.HasAnomaly || i != len(r.Classifications)-1 {
				b.WriteString(", ")
			}
		}
		if r.HasAnomaly {
			fmt.Fprintf(&b, "%.3f", r.Anomaly)
		}
	}
	b.WriteString("]\n")
	b.WriteString("End output\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// resultFields renders a detection as structured log fields
func resultFields(d *Detection) []logger.Field {
	r := d.Result
	fields := make([]logger.Field, 0, len(r.Classifications)+12)
	fields = append(fields,
		logger.Uint64("seq", d.Seq),
		logger.String("source", d.Source),
		logger.Uint64("sample_rate", uint64(d.SampleRate)))
	for _, c := range r.Classifications {
		fields = append(fields, logger.Float32(c.Label, c.Value))
	}
	if r.HasAnomaly {
		fields = append(fields, logger.Float32("anomaly", r.Anomaly))
	}
	fields = append(fields,
		logger.Float64("level_dbfs", d.Level.RMS),
		logger.Bool("clipping", d.Level.Clipping),
		logger.Duration("capture", r.Timing.Capture),
		logger.Duration("queue", r.Timing.Queue),
		logger.Duration("normalize", r.Timing.Normalize),
		logger.Duration("dsp", r.Timing.DSP),
		logger.Duration("classification", r.Timing.Classification))
	return fields
}
