// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoggingConfig is the YAML logging configuration document.
//
// All fields are optional:
//
//	level: debug | info | warn | error     (default info)
//	format: text | json                    (default text)
//	output: stdout | stderr | <file path>  (default stdout)
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// NewLoggerFromFile builds a [*slog.Logger] from the YAML file at path.
//
// When the file is missing or invalid, it falls back to a text logger on
// stdout at [slog.LevelInfo] and emits a warning through it, so a broken
// logging configuration never prevents startup.
func NewLoggerFromFile(path string) *slog.Logger {
	logger, err := loadLogger(path)
	if err != nil {
		fallback := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		fallback.Warn("no usable logging configuration; using the default one",
			slog.String("path", path), slog.Any("err", err))
		return fallback
	}
	return logger
}

// loadLogger reads, parses, and applies the logging configuration.
func loadLogger(path string) (*slog.Logger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config LoggingConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return NewLogger(config)
}

// NewLogger builds a [*slog.Logger] from an in-memory [LoggingConfig].
func NewLogger(config LoggingConfig) (*slog.Logger, error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	output, err := openOutput(config.Output)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(config.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(output, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(output, opts)), nil
	default:
		return nil, fmt.Errorf("unknown logging format %q", config.Format)
	}
}

// parseLevel maps a level name to its [slog.Level].
func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown logging level %q", name)
	}
}

// openOutput resolves the output destination.
func openOutput(name string) (io.Writer, error) {
	switch name {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}
