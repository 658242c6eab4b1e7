// package shared defines shared helpers
package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true, Prefix: "iasync"}
	return log.NewWithOptions(w, opts)
}

// ComponentLogger returns a child of l tagged with the component name.
//
// A nil l yields a logger that discards everything, which keeps constructors usable in tests.
func ComponentLogger(l *log.Logger, component string) *log.Logger {
	if l == nil {
		l = log.NewWithOptions(io.Discard, log.Options{})
	}
	return l.With("component", component)
}

// SetVerbose switches l between info and debug levels.
func SetVerbose(l *log.Logger, verbose bool) {
	if verbose {
		l.SetLevel(log.DebugLevel)
		return
	}
	l.SetLevel(log.InfoLevel)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}
