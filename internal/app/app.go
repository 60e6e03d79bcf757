package app

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tickjob/internal/config"
	"tickjob/internal/eventbus"
	"tickjob/internal/host"
	"tickjob/internal/metrics"
	"tickjob/internal/observability/diag"
	"tickjob/internal/runtime/supervisor"
	"tickjob/internal/storage"
	logx "tickjob/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	metrics *metrics.Collector
	loop    *host.Loop
	diag    *diag.Service

	journal    storage.Journal
	flushEvery time.Duration
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	opts, cds, err := mapHostOptions(cfg)
	if err != nil {
		return nil, err
	}
	diagCfg, err := mapDiagConfig(cfg)
	if err != nil {
		return nil, err
	}
	jc, flushEvery, journalOn, err := mapJournalConfig(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	mc := metrics.New(prometheus.NewRegistry())

	var journal storage.Journal
	if journalOn {
		journal, err = storage.Open(jc, log.With(logx.String("comp", "journal")))
		if err != nil {
			return nil, err
		}
		log.Info("journal enabled", logx.String("driver", jc.Driver), logx.Duration("flush_every", flushEvery))
	}

	opts.Log = log.With(logx.String("comp", "host"))
	opts.Metrics = mc
	opts.Events = bus
	loop := host.New(opts)
	loop.Apply(opts.Loop, cds)

	mc.ObserveDropped("eventbus_dropped_total", "Events dropped by slow event bus subscribers.", bus.Dropped)
	mc.ObserveDropped("posts_dropped_total", "Work posted to the tick goroutine and dropped on a full queue.",
		func() uint64 { return loop.Snapshot().PostsDropped })

	a := &App{
		cfgm:       cfgm,
		log:        log.With(logx.String("comp", "app")),
		logs:       logSvc,
		bus:        bus,
		metrics:    mc,
		loop:       loop,
		journal:    journal,
		flushEvery: flushEvery,
	}
	a.diag = diag.New(diagCfg, diag.Sources{
		Metrics:    mc.Handler(),
		Loop:       func() any { return loop.Snapshot() },
		Supervisor: a.supervisorStats,
	}, log.With(logx.String("comp", "diag")))
	return a, nil
}

// Loop exposes the host loop, mainly for tests and embedding.
func (a *App) Loop() *host.Loop { return a.loop }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) supervisorStats() any {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app: already started")
	}
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	// Subscribe before the loop starts so host.started reaches the journal.
	if a.journal != nil {
		events, unsub := a.bus.Subscribe(256)
		a.sup.Go("journal.writer", func(c context.Context) error {
			defer unsub()
			return a.writeJournal(c, events)
		})
	}

	a.sup.GoRestart("host.loop", a.loop.Run,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
		supervisor.WithMaxRestarts(5),
	)

	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, time.Minute),
	)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})

	if cfg := a.cfgm.Get(); cfg.Diag.Enabled {
		dc, err := mapDiagConfig(cfg)
		if err != nil {
			return err
		}
		// Diagnostics are optional: log and keep running.
		if err := a.diag.Reconfigure(a.sup.Context(), dc); err != nil {
			a.log.Warn("diag not started", logx.Err(err))
		}
	}

	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// Stop cancels every goroutine and waits for them, bounded by ctx, then
// closes the journal and log sinks.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	err := a.sup.Stop(ctx)
	a.diag.Stop(ctx)

	if a.journal != nil {
		if jerr := a.journal.Close(); jerr != nil {
			a.log.Warn("journal close failed", logx.Err(jerr))
		}
	}
	a.log.Info("app stopped", logx.Err(err))
	_ = a.logs.Close()
	return err
}

// SetPaused switches the loop's paused mode from any goroutine. It reports
// whether the request was queued.
func (a *App) SetPaused(p bool) bool {
	return a.loop.Post(func() { a.loop.SetPaused(p) })
}
