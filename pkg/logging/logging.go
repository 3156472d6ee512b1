// Package logging builds the structured loggers shared by the lucy packages.
package logging

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// New returns a logger writing to w at the given level. Format "json" emits
// one JSON object per line, anything else a colored console layout.
func New(level, format string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	logger := &log.Logger{
		Level:      log.ParseLevel(level),
		TimeFormat: "15:04:05",
	}

	if format == "json" {
		logger.TimeFormat = ""
		logger.Writer = &log.IOWriter{Writer: w}
		return logger
	}

	logger.Writer = &log.ConsoleWriter{
		Writer:         w,
		ColorOutput:    w == os.Stderr || w == os.Stdout,
		EndWithMessage: true,
	}
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
