package myaudio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
)

// WAVDumper writes classified windows as numbered WAV files for debugging
type WAVDumper struct {
	dir        string
	sampleRate uint32
	seq        atomic.Uint64
}

// NewWAVDumper creates a dumper writing to dir at the effective sample rate
func NewWAVDumper(dir string, sampleRate uint32) *WAVDumper {
	return &WAVDumper{dir: dir, sampleRate: sampleRate}
}

// Dump writes samples to the next window-NNNNNN.wav file and returns its path.
// Every call consumes a sequence number, so a failed dump leaves a gap.
func (d *WAVDumper) Dump(samples []int16) (string, error) {
	n := d.seq.Add(1)
	path := filepath.Join(d.dir, fmt.Sprintf("window-%06d.wav", n))

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", d.wrap(err, path, "create_dir")
	}

	f, err := os.Create(path)
	if err != nil {
		return "", d.wrap(err, path, "create_file")
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, int(d.sampleRate), conf.BitDepth, conf.NumChannels, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: int(d.sampleRate), NumChannels: conf.NumChannels},
		SourceBitDepth: conf.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return "", d.wrap(err, path, "encode")
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return "", d.wrap(err, path, "finalize")
	}
	if err := f.Close(); err != nil {
		return "", d.wrap(err, path, "close")
	}
	return path, nil
}

func (d *WAVDumper) wrap(err error, path, op string) error {
	return errors.New(fmt.Errorf("%w: %w", ErrDebugArtifact, err)).
		Component("myaudio").
		Category(errors.CategoryDebugArtifact).
		FileContext(path).
		Context("operation", op).
		Build()
}
