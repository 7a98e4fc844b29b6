// Package mxlog is a minimal leveled logger for the muxing pipeline's
// verbosity-gated trace output: packet ingestion, split decisions, and
// reference-GC passes all log through it, gated on an operator-chosen
// verbosity level.
package mxlog

import (
	"fmt"
	"log"
	"os"
)

// Logger gates Verbosef calls on a configured verbosity level.
type Logger struct {
	level  int
	stdlog *log.Logger
}

// New constructs a Logger writing to os.Stderr, gated at level.
func New(level int) *Logger {
	return &Logger{level: level, stdlog: log.New(os.Stderr, "", log.LstdFlags)}
}

// Verbosef logs format/args only if level is at or below the logger's
// configured verbosity. It is safe to call on a nil logger.
func (l *Logger) Verbosef(level int, format string, args ...interface{}) {
	if l == nil || level > l.level {
		return
	}
	l.stdlog.Output(2, fmt.Sprintf(format, args...))
}

// Infof logs unconditionally. It is safe to call on a nil logger.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.stdlog.Output(2, fmt.Sprintf(format, args...))
}

// SetLevel changes the gating verbosity at runtime.
func (l *Logger) SetLevel(level int) { l.level = level }
