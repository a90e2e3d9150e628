//go:build !windows

package main

import (
	"github.com/ochinchina/go-daemon"
	log "github.com/sirupsen/logrus"
)

// Daemonize runs proc in a detached child process
func Daemonize(proc func()) {
	context := new(daemon.Context)

	child, err := context.Reborn()
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Fatal("Unable to run")
	}
	if child != nil {
		return
	}
	defer context.Release()

	log.Info("daemon started")

	proc()
}
