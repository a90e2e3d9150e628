//go:build windows

package main

// ReapZombie does nothing on windows
func ReapZombie() {
}
