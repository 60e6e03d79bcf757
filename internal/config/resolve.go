package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "tickjob/pkg/logx"
)

const (
	DefaultFrameRate     = 60
	DefaultFixedRate     = 50
	DefaultMaxFixedSteps = 5
	DefaultMaxDelta      = 250 * time.Millisecond
	DefaultFlushEvery    = 10 * time.Second

	maxRate = 1000
)

// CronParser parses countdown schedules. The seconds field is optional.
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Loop is the resolved form of LoopConfig.
type Loop struct {
	FrameInterval time.Duration
	FixedStep     time.Duration // 0 disables the fixed lane
	MaxFixedSteps int
	MaxDelta      time.Duration
	StartPaused   bool
	Location      *time.Location
}

// Countdown is the resolved form of CountdownConfig.
type Countdown struct {
	Name           string
	Duration       time.Duration
	Scale          float64
	Offset         time.Duration
	RunWhilePaused bool
	Schedule       cron.Schedule
	ScheduleSpec   string
	Autostart      bool
}

// ResolveLoop applies defaults and parses durations.
func (c *Config) ResolveLoop() (Loop, error) {
	lc := c.Loop
	out := Loop{StartPaused: lc.StartPaused, Location: time.Local}

	rate := lc.FrameRate
	if rate == 0 {
		rate = DefaultFrameRate
	}
	if rate < 0 || rate > maxRate {
		return Loop{}, fmt.Errorf("loop.frame_rate: must be in 1..%d", maxRate)
	}
	out.FrameInterval = time.Second / time.Duration(rate)

	switch fixed := lc.FixedRate; {
	case fixed < 0:
		out.FixedStep = 0
	case fixed > maxRate:
		return Loop{}, fmt.Errorf("loop.fixed_rate: must be <= %d", maxRate)
	case fixed == 0:
		out.FixedStep = time.Second / DefaultFixedRate
	default:
		out.FixedStep = time.Second / time.Duration(fixed)
	}

	out.MaxFixedSteps = lc.MaxFixedSteps
	if out.MaxFixedSteps < 0 {
		return Loop{}, errors.New("loop.max_fixed_steps: must be >= 0")
	}
	if out.MaxFixedSteps == 0 {
		out.MaxFixedSteps = DefaultMaxFixedSteps
	}

	d, err := ParseDurationOrDefault("loop.max_delta", lc.MaxDelta, DefaultMaxDelta)
	if err != nil {
		return Loop{}, err
	}
	out.MaxDelta = d

	if tz := strings.TrimSpace(lc.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Loop{}, fmt.Errorf("loop.timezone: %w", err)
		}
		out.Location = loc
	}
	return out, nil
}

// ResolveCountdowns parses every countdown declaration. Names must be unique
// and non-empty.
func (c *Config) ResolveCountdowns() ([]Countdown, error) {
	out := make([]Countdown, 0, len(c.Countdowns))
	seen := make(map[string]struct{}, len(c.Countdowns))
	for i, cc := range c.Countdowns {
		path := fmt.Sprintf("countdowns[%d]", i)
		name := strings.TrimSpace(cc.Name)
		if name == "" {
			return nil, fmt.Errorf("%s.name: required", path)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%s.name: duplicate %q", path, name)
		}
		seen[name] = struct{}{}

		d, err := ParseDurationField(path+".duration", cc.Duration)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s.duration: must be > 0", path)
		}
		if cc.Scale < 0 || math.IsNaN(cc.Scale) || math.IsInf(cc.Scale, 0) {
			return nil, fmt.Errorf("%s.scale: must be a finite value >= 0", path)
		}
		off, err := parseSignedDuration(path+".offset", cc.Offset)
		if err != nil {
			return nil, err
		}

		rc := Countdown{
			Name:           name,
			Duration:       d,
			Scale:          cc.Scale,
			Offset:         off,
			RunWhilePaused: cc.RunWhilePaused,
			ScheduleSpec:   strings.TrimSpace(cc.Schedule),
			Autostart:      cc.Autostart,
		}
		if rc.ScheduleSpec != "" {
			sched, err := CronParser.Parse(rc.ScheduleSpec)
			if err != nil {
				return nil, fmt.Errorf("%s.schedule: %w", path, err)
			}
			rc.Schedule = sched
		}
		out = append(out, rc)
	}
	return out, nil
}

// SchedulerBudget returns the parsed scheduler.budget (0 when disabled).
func (c *Config) SchedulerBudget() (time.Duration, error) {
	return ParseDurationField("scheduler.budget", c.Scheduler.Budget)
}

// Validate checks every section and reports all problems at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if !logx.ValidLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if _, err := cfg.ResolveLoop(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Scheduler.Prewarm < 0 {
		errs = append(errs, errors.New("scheduler.prewarm: must be >= 0"))
	}
	if _, err := cfg.SchedulerBudget(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.ResolveCountdowns(); err != nil {
		errs = append(errs, err)
	}
	if err := validateDiag(cfg.Diag); err != nil {
		errs = append(errs, err)
	}
	if err := validateJournal(cfg.Journal); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateDiag(d DiagConfig) error {
	for _, f := range []struct{ path, raw string }{
		{"diag.read_timeout", d.ReadTimeout},
		{"diag.write_timeout", d.WriteTimeout},
		{"diag.idle_timeout", d.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if p := strings.TrimSpace(d.Prefix); p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("diag.prefix: must start with /")
	}
	return nil
}

func validateJournal(j *JournalConfig) error {
	if j == nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(j.Driver)) {
	case "", "none", "disabled", "off", "file", "sqlite":
	default:
		return fmt.Errorf("journal.driver: unknown driver %q", j.Driver)
	}
	for _, f := range []struct{ path, raw string }{
		{"journal.busy_timeout", j.BusyTimeout},
		{"journal.flush_every", j.FlushEvery},
		{"journal.retention", j.Retention},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

func parseSignedDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	return d, nil
}
