package logger

import (
	"github.com/ochinchina/stackpanel/faults"
)

// NullLogger discards everything
type NullLogger struct{}

// NewNullLogger creates a NullLogger
func NewNullLogger() *NullLogger {
	return &NullLogger{}
}

// Write implements io.Writer
func (l *NullLogger) Write(p []byte) (int, error) {
	return len(p), nil
}

// Close implements io.Closer
func (l *NullLogger) Close() error {
	return nil
}

// ReadTail always fails, nothing is kept
func (l *NullLogger) ReadTail(length int64) (string, error) {
	return "", faults.NewFault(faults.IO, "audit log is not kept in a file")
}
