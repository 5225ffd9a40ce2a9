package myaudio

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"github.com/arribada/audiocontroller/internal/logger"
)

// Source delivers fixed-size slices of mono 16-bit samples.
type Source interface {
	// ReadSlice blocks until exactly len(dst) samples are available. A short
	// read is a CaptureError. io.EOF marks a clean end of a finite source.
	ReadSlice(ctx context.Context, dst []int16) error
	// SampleRate is the effective rate, which may differ from the requested one
	SampleRate() uint32
	Name() string
	Close() error
}

// Capture reads slices from src and feeds them to d until ctx is cancelled,
// the source ends or an error occurs. It returns nil on cancellation and on a
// clean end of stream. The slice buffer is reused; the window copies it.
func Capture(ctx context.Context, src Source, d *Dispatcher, sliceLength int) error {
	log := GetLogger().With(logger.String("source", src.Name()))
	slice := make([]int16, sliceLength)

	log.Info("capture started",
		logger.Uint64("sample_rate", uint64(src.SampleRate())),
		logger.Int("slice_length", sliceLength))

	for {
		start := time.Now()
		if err := src.ReadSlice(ctx, slice); err != nil {
			switch {
			case ctx.Err() != nil:
				log.Info("capture stopped")
				return nil
			case stderrors.Is(err, io.EOF):
				log.Info("end of stream")
				return nil
			default:
				return err
			}
		}
		if err := d.IngestCaptured(ctx, slice, time.Since(start)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
