package logger

import (
	"io"
	"os"
)

// StdLogger writes to stdout or stderr
type StdLogger struct {
	NullLogger
	writer io.Writer
}

// NewStdoutLogger create a StdLogger writing to stdout
func NewStdoutLogger() *StdLogger {
	return &StdLogger{writer: os.Stdout}
}

// NewStderrLogger create a StdLogger writing to stderr
func NewStderrLogger() *StdLogger {
	return &StdLogger{writer: os.Stderr}
}

// Write implements io.Writer
func (l *StdLogger) Write(p []byte) (int, error) {
	return l.writer.Write(p)
}
