//go:build !windows

package envfile

import (
	"os"
	"path/filepath"

	"github.com/ochinchina/stackpanel/faults"
	"golang.org/x/sys/unix"
)

func lockFile(name string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, faults.IOError(err, "create dir for %s", name)
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, faults.IOError(err, "open lock %s", name)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, faults.IOError(err, "lock %s", name)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
