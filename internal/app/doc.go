// Package app wires the tickd daemon: config manager, logging, host loop,
// metrics, event journal and diagnostics, all run under one supervisor.
package app
