package tflite

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/errors"
)

func TestDetermineThreadCount(t *testing.T) {
	t.Parallel()

	available := runtime.NumCPU()

	assert.Equal(t, 1, determineThreadCount(1))
	assert.Equal(t, available, determineThreadCount(available+8), "configured count is capped")

	auto := determineThreadCount(0)
	assert.GreaterOrEqual(t, auto, 1)
	assert.LessOrEqual(t, auto, available)
}

func TestNewMissingModel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	labels := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(labels, []byte("noise\nidle\n"), 0o600))

	_, err := New(Config{ModelPath: filepath.Join(dir, "missing.tflite"), LabelsPath: labels, PullChunk: 256})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
}

func TestNewMissingLabels(t *testing.T) {
	t.Parallel()

	_, err := New(Config{ModelPath: "model.tflite", LabelsPath: filepath.Join(t.TempDir(), "none.txt")})
	require.Error(t, err)
}

func TestClassifyRejectsLengthMismatch(t *testing.T) {
	t.Parallel()

	e := &Engine{inputLength: 16000, pullChunk: 1024}
	_, err := e.Classify(context.Background(), classifier.Signal{TotalLength: 8000}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, classifier.ErrClassification)
}

func TestClassifyAfterClose(t *testing.T) {
	t.Parallel()

	e := &Engine{inputLength: 4, pullChunk: 2}
	require.NoError(t, e.Close())

	signal := classifier.Signal{TotalLength: 4, GetData: func(int, []float32) error { return nil }}
	_, err := e.Classify(context.Background(), signal, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, classifier.ErrClassification)
}
