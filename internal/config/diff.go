package config

import (
	"reflect"
	"sort"
	"strings"

	logx "tickjob/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the names of countdowns that were added, removed or changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Loop, newCfg.Loop) {
		changed = append(changed, "loop")
		attrs = append(attrs,
			logx.Int("loop.frame_rate", newCfg.Loop.FrameRate),
			logx.Int("loop.fixed_rate", newCfg.Loop.FixedRate),
			logx.String("loop.max_delta", strings.TrimSpace(newCfg.Loop.MaxDelta)),
			logx.String("loop.timezone", strings.TrimSpace(newCfg.Loop.Timezone)),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.prewarm", newCfg.Scheduler.Prewarm),
			logx.String("scheduler.budget", strings.TrimSpace(newCfg.Scheduler.Budget)),
		)
	}

	countdowns := diffCountdowns(oldCfg.Countdowns, newCfg.Countdowns)
	if len(countdowns) > 0 {
		changed = append(changed, "countdowns")
		attrs = append(attrs,
			logx.Int("countdowns.changed_count", len(countdowns)),
			logx.Int("countdowns.total", len(newCfg.Countdowns)),
		)
	}

	// Diag (never log token)
	od, nd := oldCfg.Diag, newCfg.Diag
	od.Token, nd.Token = tokenMarker(od.Token), tokenMarker(nd.Token)
	if od != nd {
		changed = append(changed, "diag")
		attrs = append(attrs,
			logx.Bool("diag.enabled", newCfg.Diag.Enabled),
			logx.String("diag.addr", strings.TrimSpace(newCfg.Diag.Addr)),
			logx.String("diag.prefix", strings.TrimSpace(newCfg.Diag.Prefix)),
			logx.Bool("diag.token_set", nd.Token != ""),
			logx.Bool("diag.allow_insecure", newCfg.Diag.AllowInsecure),
		)
	}

	// Journal: nil means disabled.
	oj, nj := derefJournal(oldCfg.Journal), derefJournal(newCfg.Journal)
	if (oldCfg.Journal != nil) != (newCfg.Journal != nil) || oj != nj {
		changed = append(changed, "journal")
		attrs = append(attrs,
			logx.String("journal.driver", strings.TrimSpace(nj.Driver)),
			logx.Bool("journal.path_set", strings.TrimSpace(nj.Path) != ""),
			logx.String("journal.flush_every", strings.TrimSpace(nj.FlushEvery)),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	sort.Strings(changed)
	return changed, attrs, countdowns
}

func tokenMarker(tok string) string {
	if strings.TrimSpace(tok) == "" {
		return ""
	}
	return "set"
}

func derefJournal(j *JournalConfig) JournalConfig {
	if j == nil {
		return JournalConfig{}
	}
	return *j
}

func diffCountdowns(oldL, newL []CountdownConfig) []string {
	index := func(l []CountdownConfig) map[string]CountdownConfig {
		m := make(map[string]CountdownConfig, len(l))
		for _, c := range l {
			m[strings.TrimSpace(c.Name)] = c
		}
		return m
	}
	oldM, newM := index(oldL), index(newL)

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, inOld := oldM[name]
		n, inNew := newM[name]
		if inOld != inNew || o != n {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
