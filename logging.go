package amplitude

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log formats accepted by [NewLogger].
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatPretty  = "pretty"
)

// NewLogger creates a zerolog logger writing to w (stderr when nil) at the
// given level. format is "json" (default), "console" or "pretty".
func NewLogger(level, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case LogFormatConsole, LogFormatPretty:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("service", "amplitude-experiment-bridge").
		Logger()
}

// ParseLevel converts a level string to a [zerolog.Level].
// Accepted values (case-insensitive): "debug", "info", "warn", "error",
// "disabled". Returns [zerolog.InfoLevel] for unrecognised values.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
