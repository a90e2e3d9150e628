package envfile

import (
	"sync"

	"github.com/spf13/afero"
)

// per-path mutexes serializing writers inside this process
var pathLocks sync.Map

func pathMutex(path string) *sync.Mutex {
	m, _ := pathLocks.LoadOrStore(path, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// lock enters the critical section for the store's file. On the real file
// system an advisory lock on <path>.lock is taken as well so that the CLI and
// the daemon serialize too.
func (s *Store) lock() (func(), error) {
	mu := pathMutex(s.path)
	mu.Lock()

	if _, ok := s.fs.Fs.(*afero.OsFs); !ok {
		return mu.Unlock, nil
	}
	release, err := lockFile(s.path + ".lock")
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	return func() {
		release()
		mu.Unlock()
	}, nil
}
