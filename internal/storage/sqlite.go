//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "tickjob/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteJournal struct {
	db  *sql.DB
	log logx.Logger

	retention  time.Duration
	appends    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Journal, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("journal.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	log.Debug("journal opened", logx.String("driver", "sqlite"), logx.String("path", path))
	return &sqliteJournal{db: db, log: log, retention: cfg.Retention, pruneEvery: 500}, nil
}

func (s *sqliteJournal) Append(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal(at, kind, name, detail, frames, active_jobs, active_countdowns)
		 VALUES(?,?,?,?,?,?,?)`,
		e.At.UnixMilli(), e.Kind, nullStr(e.Name), nullStr(e.Detail),
		int64(e.Frames), e.ActiveJobs, e.ActiveCountdowns,
	)
	if err == nil && s.retention > 0 && s.appends.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		if perr := s.prune(pctx, time.Now().Add(-s.retention)); perr != nil {
			s.log.Debug("journal prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteJournal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, kind, COALESCE(name, ''), COALESCE(detail, ''), frames, active_jobs, active_countdowns
		 FROM (SELECT * FROM journal ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, n)
	for rows.Next() {
		var (
			e      Entry
			at     int64
			frames int64
		)
		if err := rows.Scan(&at, &e.Kind, &e.Name, &e.Detail, &frames, &e.ActiveJobs, &e.ActiveCountdowns); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(at)
		e.Frames = uint64(frames)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteJournal) prune(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM journal WHERE at < ?`, before.UnixMilli())
	return err
}

func (s *sqliteJournal) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
