package envfile

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/ochinchina/stackpanel/faults"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const defaultMode os.FileMode = 0o640

// Store reads and writes one environment file. It keeps no copy of the
// content between calls: the file is the single source of truth.
type Store struct {
	fs   afero.Afero
	path string
}

// NewStore creates a Store for the file at path
func NewStore(fs afero.Fs, path string) *Store {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Store{fs: afero.Afero{Fs: fs}, path: path}
}

// Path returns the absolute path of the environment file
func (s *Store) Path() string {
	return s.path
}

// Load reads the environment file. A missing file yields empty entries.
func (s *Store) Load() (Entries, error) {
	b, err := s.fs.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(Entries, 0), nil
		}
		return nil, faults.IOError(err, "read %s", s.path)
	}
	entries, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, faults.IOError(err, "read %s", s.path)
	}
	return entries, nil
}

// Raw returns the file content, "" if the file does not exist
func (s *Store) Raw() (string, error) {
	b, err := s.fs.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", faults.IOError(err, "read %s", s.path)
	}
	return string(b), nil
}

// Save replaces the whole file with entries
func (s *Store) Save(entries Entries) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	return s.write(entries)
}

// Update runs load, fn and save as one critical section so concurrent updates
// of the same file serialize instead of interleaving. Nothing is written if fn
// returns an error.
func (s *Store) Update(fn func(Entries) (Entries, error)) (Entries, error) {
	var entries Entries
	err := s.Exclusive(func(tx Session) error {
		var err error
		entries, err = tx.Update(fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Upsert stores pairs with a single rewrite of the file
func (s *Store) Upsert(pairs ...Pair) (Entries, error) {
	return s.Update(upsertFn(pairs))
}

// Replace overwrites the file with raw content supplied by the operator
func (s *Store) Replace(raw string) (Entries, error) {
	return s.Update(replaceFn(raw))
}

// Exclusive runs fn inside the critical section of the file. Work that must
// stay consistent with the file content, such as generating files derived
// from it, goes into fn through the Session.
func (s *Store) Exclusive(fn func(tx Session) error) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	return fn(Session{store: s})
}

// Session is the view of a Store held by Exclusive. Its methods must not be
// used after fn returned.
type Session struct {
	store *Store
}

// Load reads the file
func (tx Session) Load() (Entries, error) {
	return tx.store.Load()
}

// Update is Store.Update without taking the lock again
func (tx Session) Update(fn func(Entries) (Entries, error)) (Entries, error) {
	current, err := tx.store.Load()
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := tx.store.write(next); err != nil {
		return nil, err
	}
	return next.Normalize(), nil
}

// Upsert is Store.Upsert without taking the lock again
func (tx Session) Upsert(pairs ...Pair) (Entries, error) {
	return tx.Update(upsertFn(pairs))
}

// Replace is Store.Replace without taking the lock again
func (tx Session) Replace(raw string) (Entries, error) {
	return tx.Update(replaceFn(raw))
}

func upsertFn(pairs []Pair) func(Entries) (Entries, error) {
	return func(e Entries) (Entries, error) {
		return e.Upsert(pairs...)
	}
}

func replaceFn(raw string) func(Entries) (Entries, error) {
	return func(Entries) (Entries, error) {
		return ParseString(raw), nil
	}
}

// write the entries to a temporary file in the same directory and rename it
// over the target so readers never see a partial file
func (s *Store) write(entries Entries) error {
	dir := filepath.Dir(s.path)
	if ok, err := s.fs.DirExists(dir); err != nil {
		return faults.IOError(err, "stat %s", dir)
	} else if !ok {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return faults.IOError(err, "create dir %s", dir)
		}
	}

	mode := defaultMode
	if fi, err := s.fs.Stat(s.path); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := s.fs.TempFile(dir, "."+filepath.Base(s.path)+".tmp-")
	if err != nil {
		return faults.IOError(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(entries.Normalize().Bytes())
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = s.fs.Chmod(tmpName, mode)
	}
	if err == nil {
		err = s.fs.Rename(tmpName, s.path)
	}
	if err != nil {
		_ = s.fs.Remove(tmpName)
		return faults.IOError(err, "write %s", s.path)
	}
	log.WithFields(log.Fields{"file": s.path, "lines": len(entries)}).Info("environment file saved")
	return nil
}
