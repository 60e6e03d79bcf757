package app

import (
	"context"
	"reflect"
	"strings"

	"tickjob/internal/config"
	logx "tickjob/pkg/logx"
)

// reloadLoop applies every committed config until ctx is done. Bursts are
// coalesced so only the latest config is applied.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
		coalesce:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break coalesce
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes a validated config into the running components.
// Sections that are fixed at startup only log a warning.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	if newCfg == nil {
		return
	}
	sections, attrs, countdowns := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config change summary", fields...)
	if len(countdowns) > 0 {
		a.log.Debug("countdown config changes detected", logx.Any("countdowns", countdowns))
	}

	a.logs.Apply(mapLogConfig(newCfg))

	// The manager validated the config, so these resolve cleanly.
	opts, cds, err := mapHostOptions(newCfg)
	if err != nil {
		a.log.Error("config apply failed", logx.String("section", "loop"), logx.Err(err))
		return
	}
	if !a.loop.Post(func() { a.loop.Apply(opts.Loop, cds) }) {
		a.log.Warn("loop did not accept config; queue full or stopped")
	}

	if dc, err := mapDiagConfig(newCfg); err != nil {
		a.log.Error("config apply failed", logx.String("section", "diag"), logx.Err(err))
	} else if err := a.diag.Reconfigure(ctx, dc); err != nil {
		a.log.Warn("diag reconfigure failed", logx.Err(err))
	}

	if oldCfg != nil {
		for _, s := range restartOnly(oldCfg, newCfg) {
			a.log.Warn("config section changed; restart required to apply", logx.String("section", s))
		}
	}
}

// restartOnly lists changed sections that only take effect at startup.
func restartOnly(oldCfg, newCfg *config.Config) []string {
	var out []string
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		out = append(out, "scheduler")
	}
	if !reflect.DeepEqual(oldCfg.Journal, newCfg.Journal) {
		out = append(out, "journal")
	}
	if oldCfg.Systemd != newCfg.Systemd {
		out = append(out, "systemd")
	}
	return out
}
