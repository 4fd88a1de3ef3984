// Package monitoring holds the process-wide diagnostic surfaces of the
// track-trigger core: the package logger and the firmware-violation
// counters described in spec §9 ("Global firmware-violation counters").
// Neither is read on the hot path; both are meant for end-of-job
// reporting.
package monitoring

import (
	"fmt"
	"log"
)

// Level tags the severity of a diagnostic line, making the component-tag
// convention the teacher embeds by hand in its own Logf call sites
// ("[BackgroundManager] ...") a first-class parameter instead of a
// string callers have to remember to prefix themselves.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Sink is the shape of the package-wide diagnostic logger: level,
// reporting component (e.g. "ingest", "htrphi"), and a printf-style
// format/args pair.
type Sink func(level Level, component, format string, v ...interface{})

// sink is the active diagnostic logger. It defaults to defaultSink but
// may be replaced wholesale by SetSink.
var sink Sink = defaultSink

func defaultSink(level Level, component, format string, v ...interface{}) {
	log.Printf("[%s] %s: %s", level, component, fmt.Sprintf(format, v...))
}

// SetSink replaces the package-wide diagnostic logger. Passing nil
// restores a no-op sink, muting every component's output.
func SetSink(s Sink) {
	if s == nil {
		sink = func(Level, string, string, ...interface{}) {}
		return
	}
	sink = s
}

// Log reports one diagnostic line through the active sink, tagged with
// level and component. Never called on the hot path (per-event); this is
// reserved for job-start/job-end diagnostics and fatal configuration
// errors (spec §SF.1).
func Log(level Level, component, format string, v ...interface{}) {
	sink(level, component, format, v...)
}

// Info reports an informational diagnostic for component.
func Info(component, format string, v ...interface{}) {
	Log(LevelInfo, component, format, v...)
}

// Warn reports a warning diagnostic for component.
func Warn(component, format string, v ...interface{}) {
	Log(LevelWarn, component, format, v...)
}

// Error reports an error diagnostic for component.
func Error(component, format string, v ...interface{}) {
	Log(LevelError, component, format, v...)
}
