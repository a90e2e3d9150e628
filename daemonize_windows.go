//go:build windows

package main

// Daemonize runs proc in the foreground, windows has no fork
func Daemonize(proc func()) {
	proc()
}
