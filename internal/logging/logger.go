// Package logging builds the slog loggers used by svcinstall.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/conn-castle/service-install/internal/messages"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Output receives log records; nil discards them.
	Output io.Writer
	// Color forces level colouring in console output.
	Color bool
}

// New constructs a slog logger from opts.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Output == nil {
		return NewNop(), nil
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	addSource := level <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", FormatConsole:
		return slog.New(newConsoleHandler(opts.Output, levelVar, addSource, opts.Color)), nil
	case FormatJSON:
		return slog.New(newJSONHandler(opts.Output, levelVar, addSource)), nil
	default:
		return nil, fmt.Errorf(messages.LoggingUnsupportedFormatFmt, opts.Format)
	}
}

// NewNop returns a logger that drops every record.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf(messages.LoggingUnsupportedLevelFmt, level)
	}
}
