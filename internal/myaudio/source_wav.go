package myaudio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
)

// WAVSource replays a mono 16-bit WAV file slice by slice
type WAVSource struct {
	file       *os.File
	decoder    *wav.Decoder
	buf        *audio.IntBuffer
	pending    []int
	eof        bool
	name       string
	sampleRate uint32

	// realtime pacing
	realtime bool
	next     time.Time
}

// OpenWAVSource opens path for replay. With realtime set, ReadSlice paces
// slices at the file's sample rate instead of returning as fast as possible.
func OpenWAVSource(path string, realtime bool) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Context("operation", "open_wav").
			Build()
	}

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		_ = f.Close()
		return nil, newCaptureError("open", path, decoder.SampleRate, fmt.Errorf("invalid WAV file format"))
	}
	if decoder.NumChans != conf.NumChannels || decoder.BitDepth != conf.BitDepth {
		_ = f.Close()
		return nil, newCaptureError("open", path, decoder.SampleRate,
			fmt.Errorf("unsupported WAV format: %d channels, %d bit; want mono 16 bit", decoder.NumChans, decoder.BitDepth))
	}

	return &WAVSource{
		file:    f,
		decoder: decoder,
		buf: &audio.IntBuffer{
			Data:   make([]int, 4096),
			Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: conf.NumChannels},
		},
		name:       filepath.Base(path),
		sampleRate: decoder.SampleRate,
		realtime:   realtime,
	}, nil
}

// ReadSlice implements Source. A file that ends on a slice boundary returns
// io.EOF; a partial final slice is a short read.
func (s *WAVSource) ReadSlice(ctx context.Context, dst []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	need := len(dst)
	for len(s.pending) < need && !s.eof {
		n, err := s.decoder.PCMBuffer(s.buf)
		if err != nil {
			return newCaptureError("read_slice", s.name, s.sampleRate, err)
		}
		if n == 0 {
			s.eof = true
			break
		}
		s.pending = append(s.pending, s.buf.Data[:n]...)
	}

	if len(s.pending) == 0 && s.eof {
		return io.EOF
	}
	if len(s.pending) < need {
		got := len(s.pending)
		s.pending = s.pending[:0]
		return newCaptureError("read_slice", s.name, s.sampleRate,
			fmt.Errorf("short read: %d of %d samples: %w", got, need, io.ErrUnexpectedEOF))
	}

	for i := range dst {
		dst[i] = int16(s.pending[i])
	}
	s.pending = s.pending[:copy(s.pending, s.pending[need:])]

	if s.realtime {
		return s.pace(ctx, need)
	}
	return nil
}

// pace sleeps until the wall clock catches up with the samples delivered so far
func (s *WAVSource) pace(ctx context.Context, samples int) error {
	now := time.Now()
	if s.next.IsZero() {
		s.next = now
	}
	s.next = s.next.Add(time.Duration(samples) * time.Second / time.Duration(s.sampleRate))
	wait := s.next.Sub(now)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SampleRate implements Source
func (s *WAVSource) SampleRate() uint32 { return s.sampleRate }

// Name implements Source
func (s *WAVSource) Name() string { return s.name }

// Close closes the file
func (s *WAVSource) Close() error { return s.file.Close() }
