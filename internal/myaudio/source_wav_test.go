package myaudio

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arribada/audiocontroller/internal/errors"
)

func ramp(n int, start int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = start + int16(i)
	}
	return s
}

func TestDumpAndReplay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dumper := NewWAVDumper(dir, 16000)

	samples := append(ramp(4000, -2000), ramp(4000, 100)...)
	path, err := dumper.Dump(samples)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "window-000001.wav"), path)

	src, err := OpenWAVSource(path, false)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, uint32(16000), src.SampleRate())
	assert.Equal(t, "window-000001.wav", src.Name())

	ctx := context.Background()
	slice := make([]int16, 4000)
	require.NoError(t, src.ReadSlice(ctx, slice))
	assert.Equal(t, samples[:4000], slice)
	require.NoError(t, src.ReadSlice(ctx, slice))
	assert.Equal(t, samples[4000:], slice)

	assert.ErrorIs(t, src.ReadSlice(ctx, slice), io.EOF)
}

func TestReplayShortRead(t *testing.T) {
	t.Parallel()

	path, err := NewWAVDumper(t.TempDir(), 8000).Dump(ramp(6000, 0))
	require.NoError(t, err)

	src, err := OpenWAVSource(path, false)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, uint32(8000), src.SampleRate())

	slice := make([]int16, 4000)
	require.NoError(t, src.ReadSlice(context.Background(), slice))

	err = src.ReadSlice(context.Background(), slice)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, ErrDevice)
	assert.NotErrorIs(t, err, io.EOF)

	assert.ErrorIs(t, src.ReadSlice(context.Background(), slice), io.EOF)
}

func TestReplayHonoursCancellation(t *testing.T) {
	t.Parallel()

	path, err := NewWAVDumper(t.TempDir(), 16000).Dump(ramp(8000, 0))
	require.NoError(t, err)

	src, err := OpenWAVSource(path, true)
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, src.ReadSlice(ctx, make([]int16, 4000)), context.Canceled)
}

func TestOpenWAVSourceErrors(t *testing.T) {
	t.Parallel()

	_, err := OpenWAVSource(filepath.Join(t.TempDir(), "missing.wav"), false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	junk := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("this is not a wav file at all"), 0o600))
	_, err = OpenWAVSource(junk, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
}

func TestDumpNumbering(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "dumps")
	dumper := NewWAVDumper(dir, 16000)

	for i := range 3 {
		path, err := dumper.Dump(make([]int16, 16))
		require.NoError(t, err)
		assert.FileExists(t, path)
		assert.Equal(t, []string{"window-000001.wav", "window-000002.wav", "window-000003.wav"}[i], filepath.Base(path))
	}
}

func TestDumpFailureIsDebugArtifactError(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	dumper := NewWAVDumper(blocker, 16000)
	_, err := dumper.Dump(make([]int16, 16))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDebugArtifact)
	assert.True(t, errors.IsCategory(err, errors.CategoryDebugArtifact))
}
