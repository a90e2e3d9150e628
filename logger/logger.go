// Package logger writes the audit trail of privileged commands.
package logger

import (
	"io"

	"github.com/spf13/afero"
)

// Logger is a log sink that can return the tail of what it wrote
type Logger interface {
	io.WriteCloser
	// ReadTail returns at most length bytes from the end of the current log
	ReadTail(length int64) (string, error)
}

// NewLogger creates the sink for target: "/dev/stdout", "/dev/stderr",
// "/dev/null", "" (discard) or a file path rotated at maxBytes
func NewLogger(fs afero.Fs, target string, maxBytes int64, backups int) (Logger, error) {
	switch target {
	case "/dev/stdout":
		return NewStdoutLogger(), nil
	case "/dev/stderr":
		return NewStderrLogger(), nil
	case "", "/dev/null":
		return NewNullLogger(), nil
	}
	return NewFileLogger(fs, target, maxBytes, backups)
}
