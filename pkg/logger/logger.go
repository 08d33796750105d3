// Package logger holds the process-wide structured logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Log is shared by every package. Replace it with [New] in tests to capture output.
var Log = New(nil)

// New creates a [log.Logger] writing to w with timestamps enabled.
//
// The writer defaults to [os.Stderr]
func New(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true, Prefix: "otto"})
}

// SetLevel parses a level name ("debug", "info", "warn", "error") and applies it
// to [Log]. Unknown names leave the level unchanged.
func SetLevel(name string) {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		Log.Warn("unknown log level, keeping current", "level", name)
		return
	}
	Log.SetLevel(lvl)
}

// With returns a child logger carrying the key-value pairs on every entry.
func With(kv ...any) *log.Logger {
	return Log.With(kv...)
}
