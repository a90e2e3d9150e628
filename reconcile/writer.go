package reconcile

import (
	"bytes"
	"crypto/sha256"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ochinchina/stackpanel/faults"
	"github.com/spf13/afero"
)

// FileWriter writes generated files, skipping the write when the content on
// disk already hashes to the same value.
type FileWriter struct {
	fs   afero.Afero
	hash hash.Hash
	mu   sync.Mutex
}

// OptionFn customizes a FileWriter
type OptionFn func(w *FileWriter)

// WithHasher replaces the default sha256 hasher
func WithHasher(h hash.Hash) OptionFn {
	return func(w *FileWriter) {
		w.hash = h
	}
}

// NewFileWriter creates a FileWriter on fs
func NewFileWriter(fs afero.Fs, opts ...OptionFn) *FileWriter {
	w := &FileWriter{fs: afero.Afero{Fs: fs}}
	for _, opt := range opts {
		opt(w)
	}
	if w.hash == nil {
		w.hash = sha256.New()
	}
	return w
}

// Write stores content at path and reports whether the bytes on disk changed
func (w *FileWriter) Write(path, content string, perm os.FileMode) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(path)
	if ok, err := w.fs.DirExists(dir); err != nil {
		return false, faults.IOError(err, "stat %s", dir)
	} else if !ok {
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return false, faults.IOError(err, "create dir %s", dir)
		}
	}

	var dstHash []byte
	if f, err := w.fs.Open(path); err == nil {
		w.hash.Reset()
		_, _ = io.Copy(w.hash, f)
		f.Close()
		dstHash = w.hash.Sum(nil)
	} else if !os.IsNotExist(err) {
		return false, faults.IOError(err, "open %s", path)
	}

	w.hash.Reset()
	_, _ = io.Copy(w.hash, strings.NewReader(content))
	if dstHash != nil && bytes.Equal(w.hash.Sum(nil), dstHash) {
		return false, nil
	}

	tmp, err := w.fs.TempFile(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return false, faults.IOError(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	_, err = tmp.WriteString(content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = w.fs.Chmod(tmpName, perm)
	}
	if err == nil {
		err = w.fs.Rename(tmpName, path)
	}
	if err != nil {
		_ = w.fs.Remove(tmpName)
		return false, faults.IOError(err, "write %s", path)
	}
	return true, nil
}
