//go:build !unix

package main

import "tickjob/internal/app"

func watchPauseSignals(*app.App) (stop func()) { return func() {} }
