package app

import (
	"context"
	"time"

	"tickjob/internal/eventbus"
	"tickjob/internal/storage"
	logx "tickjob/pkg/logx"
)

const journalWriteTimeout = 2 * time.Second

// writeJournal appends every bus event and a loop snapshot every flushEvery.
// Write failures are logged and never stop the daemon.
func (a *App) writeJournal(ctx context.Context, events <-chan eventbus.Event) error {
	t := time.NewTicker(a.flushEvery)
	defer t.Stop()

	warn := logx.NewLimited(a.log.With(logx.String("comp", "journal")), 10*time.Second, 1)
	write := func(e storage.Entry) {
		wctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		defer cancel()
		if err := a.journal.Append(wctx, e); err != nil {
			warn.Warn("journal append failed", logx.String("kind", e.Kind), logx.Err(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			// Keep whatever is already queued, then one last snapshot.
			drainEvents(events, func(e eventbus.Event) { write(eventEntry(e)) })
			write(a.snapshotEntry(time.Now()))
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			write(eventEntry(e))
		case now := <-t.C:
			write(a.snapshotEntry(now))
		}
	}
}

func drainEvents(events <-chan eventbus.Event, fn func(eventbus.Event)) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			fn(e)
		default:
			return
		}
	}
}

func eventEntry(e eventbus.Event) storage.Entry {
	detail := e.Type
	if e.Detail != "" {
		detail += "." + e.Detail
	}
	return storage.Entry{At: e.Time, Kind: storage.KindEvent, Name: e.Name, Detail: detail}
}

func (a *App) snapshotEntry(now time.Time) storage.Entry {
	s := a.loop.Snapshot()
	return storage.Entry{
		At:               now,
		Kind:             storage.KindSnapshot,
		Frames:           s.Frames,
		ActiveJobs:       s.ActiveJobs,
		ActiveCountdowns: s.ActiveCountdowns,
	}
}
