// Package storage provides the diagnostics journal: an append-only record of
// host snapshots and countdown lifecycle events.
//
// It never stores job state; restarting the daemon always starts from an
// empty scheduler.
package storage
