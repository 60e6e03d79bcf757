package app

import (
	"strings"
	"time"

	"tickjob/internal/config"
	"tickjob/internal/host"
	"tickjob/internal/observability/diag"
	"tickjob/internal/storage"
	logx "tickjob/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapDiagConfig(cfg *config.Config) (diag.Config, error) {
	d := cfg.Diag
	rt, err := config.ParseDurationField("diag.read_timeout", d.ReadTimeout)
	if err != nil {
		return diag.Config{}, err
	}
	wt, err := config.ParseDurationField("diag.write_timeout", d.WriteTimeout)
	if err != nil {
		return diag.Config{}, err
	}
	it, err := config.ParseDurationField("diag.idle_timeout", d.IdleTimeout)
	if err != nil {
		return diag.Config{}, err
	}
	return diag.Config{
		Enabled:              d.Enabled,
		Addr:                 d.Addr,
		Prefix:               d.Prefix,
		Token:                d.Token,
		AllowInsecure:        d.AllowInsecure,
		ReadTimeout:          rt,
		WriteTimeout:         wt,
		IdleTimeout:          it,
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
		MemProfileRate:       d.MemProfileRate,
	}, nil
}

// mapJournalConfig returns the storage config, the snapshot interval and
// whether the journal is enabled at all.
func mapJournalConfig(cfg *config.Config) (storage.Config, time.Duration, bool, error) {
	j := cfg.Journal
	if j == nil {
		return storage.Config{}, 0, false, nil
	}
	switch strings.ToLower(strings.TrimSpace(j.Driver)) {
	case "", "none", "off", "disabled":
		return storage.Config{}, 0, false, nil
	}
	busy, err := config.ParseDurationField("journal.busy_timeout", j.BusyTimeout)
	if err != nil {
		return storage.Config{}, 0, false, err
	}
	retention, err := config.ParseDurationField("journal.retention", j.Retention)
	if err != nil {
		return storage.Config{}, 0, false, err
	}
	flush, err := config.ParseDurationOrDefault("journal.flush_every", j.FlushEvery, config.DefaultFlushEvery)
	if err != nil {
		return storage.Config{}, 0, false, err
	}
	return storage.Config{
		Driver:      j.Driver,
		Path:        j.Path,
		BusyTimeout: busy,
		Retention:   retention,
	}, flush, true, nil
}

func mapHostOptions(cfg *config.Config) (host.Options, []config.Countdown, error) {
	lc, err := cfg.ResolveLoop()
	if err != nil {
		return host.Options{}, nil, err
	}
	budget, err := cfg.SchedulerBudget()
	if err != nil {
		return host.Options{}, nil, err
	}
	cds, err := cfg.ResolveCountdowns()
	if err != nil {
		return host.Options{}, nil, err
	}
	return host.Options{
		Loop:     lc,
		Prewarm:  cfg.Scheduler.Prewarm,
		Budget:   budget,
		Notify:   cfg.Systemd.Notify,
		Watchdog: cfg.Systemd.Watchdog,
	}, cds, nil
}
