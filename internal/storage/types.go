package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("journal disabled")
	ErrClosed   = errors.New("journal closed")
)

// Config configures the journal.
//
// Driver values:
//   - "file": JSON Lines file, no dependencies
//   - "sqlite": SQLite database file (build tag sqlite)
//
// If Driver is empty, "none", "off" or "disabled", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retention   time.Duration // sqlite only; 0 keeps everything
}

// Entry kinds.
const (
	KindSnapshot = "snapshot"
	KindEvent    = "event"
)

// Entry is one journal record. Keep it compact and schema-stable.
type Entry struct {
	At               time.Time `json:"at"`
	Kind             string    `json:"kind"`
	Name             string    `json:"name,omitempty"`
	Detail           string    `json:"detail,omitempty"`
	Frames           uint64    `json:"frames,omitempty"`
	ActiveJobs       int       `json:"active_jobs,omitempty"`
	ActiveCountdowns int       `json:"active_countdowns,omitempty"`
}

// Journal is the persistence API used by the app.
type Journal interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to n entries, oldest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	Close() error
}
