// Package sigs provides the OS signal channels cmd/httpxd waits on for
// graceful shutdown and config reload.
package sigs

import (
	"os"
	"os/signal"
	"syscall"
)

// Terminate returns a channel fired on SIGINT/SIGTERM.
func Terminate() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}

// Reload returns a channel fired on SIGHUP.
func Reload() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	return ch
}
