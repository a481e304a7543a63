// Package logging configures zerolog for the tap. Logs go to stderr because
// stdout carries the Singer message stream.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a minimum severity name as it appears in config files.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var levels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// ParseLevel normalizes a configured level name. An empty name means info.
func ParseLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return LevelInfo, nil
	}
	lvl, ok := levels[name]
	if !ok {
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
	return LogLevel(lvl.String()), nil
}

// Zerolog maps the level onto zerolog. Unknown names fall back to info.
func (l LogLevel) Zerolog() zerolog.Level {
	if lvl, ok := levels[strings.ToLower(string(l))]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console format.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// Setup installs the process-wide logger and returns it. Packages that
// fall back to the global logger pick it up through log.Logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.Zerolog())

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// NewLogger derives a logger tagged with the emitting component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines
//
// Debug: SOAP envelopes (security code redacted), phase transitions,
// state flushes, rate limiter waits.
//
// Info: stream start and completion, token progression per page, empty
// page or no-progress stops, metrics server lifecycle.
//
// Warn: retry attempts, items whose token does not exceed the requested
// cursor, failed Sherpa calls before retry, manual cursor overrides.
//
// Error: requests failed after retries, state flush failures, aborted runs.
//
// Common fields: component, stream, service, cursor, next_cursor,
// batch_size, attempt, error_class.
