// Package logger builds the structured loggers used across the service.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options controls how New configures the logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json, logfmt
	Debug  bool   // adds caller and timestamps
	Prefix string
}

// New returns a logger writing to stderr.
func New(opts Options) *log.Logger {
	return NewWithWriter(os.Stderr, opts)
}

func NewWithWriter(w io.Writer, opts Options) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    opts.Debug,
		Prefix:          opts.Prefix,
		Formatter:       formatter(opts.Format),
	})

	level := log.InfoLevel
	if parsed, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level))); err == nil {
		level = parsed
	}
	if opts.Debug {
		level = log.DebugLevel
	}
	l.SetLevel(level)
	return l
}

// Nop discards everything. Used by tests and as a nil fallback.
func Nop() *log.Logger {
	return log.New(io.Discard)
}

func formatter(format string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
