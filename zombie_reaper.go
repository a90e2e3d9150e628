//go:build !windows

package main

import (
	reaper "github.com/ochinchina/go-reaper"
)

// ReapZombie reaps orphaned children when the panel runs as PID 1 in a
// container, e.g. processes left behind by a killed docker compose
func ReapZombie() {
	go reaper.Reap()
}
