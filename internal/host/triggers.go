package host

import (
	"time"

	"github.com/robfig/cron/v3"

	"tickjob/internal/config"
	"tickjob/internal/countdown"
	"tickjob/internal/eventbus"
	logx "tickjob/pkg/logx"
)

// trigger is a configured, named countdown plus its optional cron entry.
type trigger struct {
	cd    *countdown.Countdown
	spec  config.Countdown
	entry cron.EntryID
	cron  string // spec the entry was scheduled with
}

// Apply reconciles the loop with a (re)loaded config: loop timing, then the
// named countdowns. Countdowns are matched by name; existing ones keep their
// state and pick up a new duration or modifiers on their next restart.
// Countdowns no longer declared are cancelled and released.
func (l *Loop) Apply(lc config.Loop, specs []config.Countdown) {
	startPaused := l.cfg.StartPaused
	l.cfg = lc
	l.cfg.StartPaused = startPaused
	l.setLocation(lc.Location)

	seen := make(map[string]struct{}, len(specs))
	order := make([]string, 0, len(specs))
	for _, spec := range specs {
		seen[spec.Name] = struct{}{}
		order = append(order, spec.Name)

		t := l.triggers[spec.Name]
		if t != nil && t.spec.RunWhilePaused != spec.RunWhilePaused {
			// The tick mode is fixed at creation.
			l.drop(t)
			t = nil
		}
		fresh := t == nil
		if fresh {
			opts := []countdown.Option{countdown.Named(spec.Name)}
			if spec.RunWhilePaused {
				opts = append(opts, countdown.RunWhileInactive())
			}
			t = &trigger{cd: l.cds.Create(spec.Duration, opts...)}
			l.triggers[spec.Name] = t
		}

		cd := t.cd
		cd.SetDuration(spec.Duration)
		cd.ClearModifiers()
		if spec.Scale > 0 && spec.Scale != 1 {
			cd.AddModifier(countdown.Scale(spec.Scale))
		}
		if spec.Offset != 0 {
			cd.AddModifier(countdown.Offset(spec.Offset))
		}
		t.spec = spec
		l.schedule(t)

		if fresh && spec.Autostart {
			cd.Start()
		}
	}

	for name, t := range l.triggers {
		if _, ok := seen[name]; !ok {
			l.drop(t)
			delete(l.triggers, name)
		}
	}
	l.order = order
	l.publish(eventbus.Event{Type: eventbus.TypeConfig, Data: len(specs)})
	l.publishSnapshot()
}

// fire restarts the named countdown, starting it if inactive.
func (l *Loop) fire(name string) {
	t := l.triggers[name]
	if t == nil {
		return
	}
	t.cd.Restart(true)
}

func (l *Loop) schedule(t *trigger) {
	want := t.spec.ScheduleSpec
	if t.cron == want && (want == "" || t.entry != 0) {
		return
	}
	if t.entry != 0 {
		l.cron.Remove(t.entry)
		t.entry = 0
	}
	t.cron = want
	if want == "" || t.spec.Schedule == nil {
		return
	}
	name := t.spec.Name
	t.entry = l.cron.Schedule(t.spec.Schedule, cron.FuncJob(func() {
		if !l.Post(func() { l.fire(name) }) {
			l.log.Warn("countdown trigger dropped", logx.String("name", name))
		}
	}))
}

func (l *Loop) drop(t *trigger) {
	if t.entry != 0 {
		l.cron.Remove(t.entry)
		t.entry = 0
	}
	l.cds.Release(t.cd)
}

// setLocation (re)creates the cron scheduler when the schedule time zone changes.
func (l *Loop) setLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	if l.cron != nil && l.loc != nil && l.loc.String() == loc.String() {
		return
	}
	if l.cron != nil {
		l.cron.Stop()
	}
	l.loc = loc
	l.cron = cron.New(
		cron.WithParser(config.CronParser),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{l.log.With(logx.String("comp", "cron"))}),
	)
	for _, t := range l.triggers {
		t.entry = 0
		t.cron = ""
		l.schedule(t)
	}
	if l.running.Load() {
		l.cron.Start()
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
