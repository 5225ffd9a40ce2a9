package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arribada/audiocontroller/internal/buildinfo"
)

// run executes the command line; these tests share viper state and must not run in parallel
func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errb bytes.Buffer
	code = Execute(context.Background(), buildinfo.NewContext("1.2.3", "2026-01-01"), args, &out, &errb)
	return code, out.String(), errb.String()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing device", nil, "accepts 1 arg(s), received 0"},
		{"extra argument", []string{"hw:1,0", "hw:2,0"}, "accepts 1 arg(s), received 2"},
		{"empty device", []string{""}, "argument 1 is empty"},
		{"unknown flag", []string{"--bogus", "hw:1,0"}, "unknown flag: --bogus"},
		{"replay without file", []string{"replay"}, "accepts 1 arg(s), received 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := run(t, tt.args...)
			assert.Equal(t, ExitUsage, code)
			assert.Contains(t, stdout, tt.want)
			assert.Contains(t, stdout, "Usage:")
			assert.Empty(t, stderr)
		})
	}
}

func TestVersion(t *testing.T) {
	code, stdout, _ := run(t, "--version")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "1.2.3")
}

func TestConfigCommandMasksSecrets(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  password: hunter2\nwindow:\n  length: 8000\n")

	code, stdout, stderr := run(t, "config", "--config", path)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "length: 8000")
	assert.Contains(t, stdout, "slice_length: 4000")
	assert.Contains(t, stdout, "********")
	assert.NotContains(t, stdout, "hunter2")
}

func TestConfigCommandWrite(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  password: hunter2\n")
	out := filepath.Join(t.TempDir(), "effective.yaml")

	code, stdout, stderr := run(t, "config", "--config", path, "--write", out)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "configuration written to")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hunter2")
}

func TestInvalidConfigIsError(t *testing.T) {
	path := writeConfig(t, "window:\n  length: 15000\n  slice_length: 4000\n")

	code, _, stderr := run(t, "config", "--config", path)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "validating settings")
}
