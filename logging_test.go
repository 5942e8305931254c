// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A valid YAML file configures level, format, and output.
func TestNewLoggerFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.yaml")
	output := filepath.Join(dir, "proxy.log")
	document := "level: debug\nformat: json\noutput: " + output + "\n"
	require.NoError(t, os.WriteFile(path, []byte(document), 0o600))

	logger := NewLoggerFromFile(path)
	require.NotNil(t, logger)

	logger.Debug("probe")
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"probe"`)
}

// A missing or invalid file falls back to stdout at info level rather than
// failing startup.
func TestNewLoggerFromFileFallback(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// setup prepares the logging config path.
		setup func(t *testing.T, path string)
	}{
		{
			name:  "missing file",
			setup: func(t *testing.T, path string) {},
		},

		{
			name: "invalid YAML",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("{invalid"), 0o600))
			},
		},

		{
			name: "unknown level",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("level: loud"), 0o600))
			},
		},

		{
			name: "unknown format",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("format: xml"), 0o600))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "log.yaml")
			tt.setup(t, path)

			logger := NewLoggerFromFile(path)

			require.NotNil(t, logger)
			logger.Info("still alive")
		})
	}
}

// NewLogger validates levels and formats and defaults the empty values.
func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{})
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger, err = NewLogger(LoggingConfig{Level: "warn", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewLogger(LoggingConfig{Level: "loud"})
	require.Error(t, err)

	_, err = NewLogger(LoggingConfig{Format: "xml"})
	require.Error(t, err)
}
