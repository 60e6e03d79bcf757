//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"

	"tickjob/internal/app"
)

// watchPauseSignals maps SIGUSR1 to pause and SIGUSR2 to resume.
func watchPauseSignals(a *app.App) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-ch:
				a.SetPaused(sig == syscall.SIGUSR1)
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
