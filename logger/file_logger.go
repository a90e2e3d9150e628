package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ochinchina/stackpanel/faults"
	"github.com/spf13/afero"
)

// FileLogger appends to a file and rotates it into name.1 .. name.<backups>
// once it reaches maxSize bytes
type FileLogger struct {
	fs       afero.Fs
	name     string
	maxSize  int64
	backups  int
	fileSize int64
	file     afero.File
	lock     sync.Mutex
}

// NewFileLogger opens name for appending
func NewFileLogger(fs afero.Fs, name string, maxSize int64, backups int) (*FileLogger, error) {
	l := &FileLogger{
		fs:      fs,
		name:    name,
		maxSize: maxSize,
		backups: backups,
	}
	if err := fs.MkdirAll(filepath.Dir(name), 0o750); err != nil {
		return nil, faults.IOError(err, "create log dir for %s", name)
	}
	if err := l.openFile(false); err != nil {
		return nil, err
	}
	return l, nil
}

// open the file and truncate the file if trunc is true
func (l *FileLogger) openFile(trunc bool) error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if trunc {
		flags |= os.O_TRUNC
	}
	f, err := l.fs.OpenFile(l.name, flags, 0o640)
	if err != nil {
		return faults.IOError(err, "open log file %s", l.name)
	}
	l.file = f
	l.fileSize = 0
	if info, err := f.Stat(); err == nil {
		l.fileSize = info.Size()
	}
	return nil
}

func (l *FileLogger) backupFiles() {
	for i := l.backups - 1; i > 0; i-- {
		src := fmt.Sprintf("%s.%d", l.name, i)
		dest := fmt.Sprintf("%s.%d", l.name, i+1)
		if _, err := l.fs.Stat(src); err == nil {
			l.fs.Rename(src, dest)
		}
	}
	if l.backups > 0 {
		l.fs.Rename(l.name, l.name+".1")
	}
}

// Write appends p and rotates when the size limit is reached
func (l *FileLogger) Write(p []byte) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.file == nil {
		if err := l.openFile(false); err != nil {
			return 0, err
		}
	}
	n, err := l.file.Write(p)
	if err != nil {
		return n, err
	}
	l.fileSize += int64(n)
	if l.maxSize > 0 && l.fileSize >= l.maxSize {
		l.file.Close()
		l.file = nil
		l.backupFiles()
		if err := l.openFile(true); err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadTail returns at most length bytes from the end of the current file
func (l *FileLogger) ReadTail(length int64) (string, error) {
	if length < 0 {
		return "", faults.ValidationError("invalid length %d", length)
	}
	l.lock.Lock()
	defer l.lock.Unlock()

	f, err := l.fs.Open(l.name)
	if err != nil {
		return "", faults.IOError(err, "open log file %s", l.name)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", faults.IOError(err, "stat log file %s", l.name)
	}
	offset := info.Size() - length
	if length == 0 || offset < 0 {
		offset = 0
	}
	b := make([]byte, info.Size()-offset)
	n, err := f.ReadAt(b, offset)
	if err != nil && n < len(b) {
		return "", faults.IOError(err, "read log file %s", l.name)
	}
	return string(b[:n]), nil
}

// Close closes the current file
func (l *FileLogger) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
