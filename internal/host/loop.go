package host

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"tickjob/internal/config"
	"tickjob/internal/countdown"
	"tickjob/internal/eventbus"
	"tickjob/internal/job"
	logx "tickjob/pkg/logx"
)

// ErrRunning is returned by Run when the loop is already running.
var ErrRunning = errors.New("host: loop already running")

const defaultPostBuffer = 256

// Metrics receives scheduler, countdown and frame measurements.
type Metrics interface {
	job.Observer
	countdown.Observer
	FrameDone(fixedSteps int, overrun bool, activeCountdowns int)
}

// Options configures a Loop.
type Options struct {
	Log     logx.Logger
	Loop    config.Loop
	Prewarm int
	Budget  time.Duration

	Metrics Metrics      // optional
	Events  eventbus.Bus // optional

	// Notify sends READY and STOPPING to systemd; Watchdog also pings
	// WATCHDOG from the tick goroutine.
	Notify   bool
	Watchdog bool

	PostBuffer int
}

// Snapshot is a point-in-time copy of the loop's counters, safe to read from
// any goroutine.
type Snapshot struct {
	Frames           uint64           `json:"frames"`
	FixedSteps       uint64           `json:"fixed_steps"`
	Overruns         uint64           `json:"overruns"`
	LastFrame        time.Duration    `json:"last_frame_ns"`
	ActiveJobs       int              `json:"active_jobs"`
	ActiveCountdowns int              `json:"active_countdowns"`
	Paused           bool             `json:"paused"`
	PostsDropped     uint64           `json:"posts_dropped"`
	Countdowns       []CountdownState `json:"countdowns,omitempty"`
}

// CountdownState describes one configured countdown.
type CountdownState struct {
	Name      string        `json:"name"`
	State     string        `json:"state"`
	Remaining time.Duration `json:"remaining_ns"`
	Fraction  float64       `json:"fraction"`
}

// Loop is the tick source. Apart from Post, Snapshot and Run, its methods
// must be called on the tick goroutine (from a Post callback, a job or
// countdown callback) or before Run starts.
type Loop struct {
	log     logx.Logger
	metrics Metrics
	events  eventbus.Bus
	notify  func(state string) (bool, error)

	sched *job.Scheduler
	cds   *countdown.Registry

	cfg    config.Loop
	paused bool
	acc    time.Duration

	frames, fixedSteps, overruns uint64
	lastFrame                    time.Duration

	posts        chan func()
	postsDropped atomic.Uint64
	running      atomic.Bool
	closed       atomic.Bool
	snap         atomic.Pointer[Snapshot]

	watchdog bool
	triggers map[string]*trigger
	order    []string
	cron     *cron.Cron
	loc      *time.Location
}

func New(opts Options) *Loop {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.PostBuffer <= 0 {
		opts.PostBuffer = defaultPostBuffer
	}
	l := &Loop{
		log:      opts.Log,
		metrics:  opts.Metrics,
		events:   opts.Events,
		cfg:      opts.Loop,
		paused:   opts.Loop.StartPaused,
		posts:    make(chan func(), opts.PostBuffer),
		watchdog: opts.Watchdog,
		triggers: map[string]*trigger{},
	}
	if opts.Notify {
		l.notify = func(state string) (bool, error) { return daemon.SdNotify(false, state) }
	}

	schedOpts := []job.SchedulerOption{
		job.WithLogger(opts.Log.With(logx.String("comp", "scheduler"))),
		job.WithPrewarm(opts.Prewarm),
		job.WithBudget(opts.Budget),
	}
	if opts.Metrics != nil {
		schedOpts = append(schedOpts, job.WithObserver(opts.Metrics))
	}
	l.sched = job.New(schedOpts...)
	l.cds = countdown.New(
		countdown.WithLogger(opts.Log.With(logx.String("comp", "countdown"))),
		countdown.WithObserver(l),
	)
	l.setLocation(opts.Loop.Location)
	l.publishSnapshot()
	return l
}

// Scheduler returns the job scheduler. Tick goroutine only.
func (l *Loop) Scheduler() *job.Scheduler { return l.sched }

// Countdowns returns the countdown registry. Tick goroutine only.
func (l *Loop) Countdowns() *countdown.Registry { return l.cds }

// Countdown returns the configured countdown called name, or nil. Tick goroutine only.
func (l *Loop) Countdown(name string) *countdown.Countdown {
	if t := l.triggers[name]; t != nil {
		return t.cd
	}
	return nil
}

// Post queues fn to run on the tick goroutine at the start of the next frame.
// It never blocks; it returns false when the queue is full or the loop has
// shut down.
func (l *Loop) Post(fn func()) bool {
	if fn == nil || l.closed.Load() {
		return false
	}
	select {
	case l.posts <- fn:
		return true
	default:
		l.postsDropped.Add(1)
		return false
	}
}

// Snapshot returns the counters published at the end of the last frame.
func (l *Loop) Snapshot() Snapshot { return *l.snap.Load() }

// Paused reports whether the loop is in paused mode. Tick goroutine only.
func (l *Loop) Paused() bool { return l.paused }

// SetPaused switches paused mode. While paused, jobs do not advance and only
// countdowns created with RunWhileInactive do.
func (l *Loop) SetPaused(p bool) {
	if l.paused == p {
		return
	}
	l.paused = p
	l.acc = 0
	typ := eventbus.TypeHostResumed
	if p {
		typ = eventbus.TypeHostPaused
	}
	l.publish(eventbus.Event{Type: typ})
	l.log.Info("loop paused state changed", logx.Bool("paused", p))
}

// Run drives frames until ctx is done, then cancels every job and countdown.
// Job and countdown callback panics propagate out of Run.
func (l *Loop) Run(ctx context.Context) error {
	if l.closed.Load() {
		return errors.New("host: loop shut down")
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	l.cron.Start()
	defer func() { l.cron.Stop() }()

	l.sdNotify(daemon.SdNotifyReady)
	wdEvery := l.watchdogInterval()
	l.publish(eventbus.Event{Type: eventbus.TypeHostStarted})
	l.log.Info("loop started",
		logx.Duration("frame", l.cfg.FrameInterval),
		logx.Duration("fixed_step", l.cfg.FixedStep),
		logx.Bool("paused", l.paused),
		logx.Int("countdowns", len(l.triggers)),
	)

	interval := l.cfg.FrameInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	lastPing := last
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			start := time.Now()
			steps := l.frame(dt)
			took := time.Since(start)
			l.record(steps, took, took > interval)

			if wdEvery > 0 && now.Sub(lastPing) >= wdEvery {
				l.sdNotify(daemon.SdNotifyWatchdog)
				lastPing = now
			}
			if l.cfg.FrameInterval != interval && l.cfg.FrameInterval > 0 {
				interval = l.cfg.FrameInterval
				ticker.Reset(interval)
			}
		}
	}
}

// Step runs one frame with the given delta. Tests and tools drive the loop
// with it instead of Run.
func (l *Loop) Step(dt time.Duration) {
	start := time.Now()
	steps := l.frame(dt)
	l.record(steps, time.Since(start), false)
}

// frame drains posted work, then advances jobs and countdowns by dt. It
// returns the number of fixed steps run.
func (l *Loop) frame(dt time.Duration) int {
	l.drainPosts()

	if dt < 0 {
		dt = 0
	}
	if limit := l.cfg.MaxDelta; limit > 0 && dt > limit {
		dt = limit
	}

	if l.paused {
		l.cds.TickInactive(dt)
		return 0
	}

	l.sched.Tick(dt)
	l.cds.Tick(dt)

	step := l.cfg.FixedStep
	if step <= 0 {
		return 0
	}
	l.acc += dt
	steps := 0
	for l.acc >= step && steps < l.cfg.MaxFixedSteps {
		l.sched.FixedTick(step)
		l.acc -= step
		steps++
	}
	if l.acc >= step {
		// Too far behind: drop the backlog instead of spiralling.
		l.acc %= step
	}
	return steps
}

func (l *Loop) drainPosts() {
	for n := len(l.posts); n > 0; n-- {
		select {
		case fn := <-l.posts:
			fn()
		default:
			return
		}
	}
}

func (l *Loop) record(steps int, took time.Duration, overrun bool) {
	l.frames++
	l.fixedSteps += uint64(steps)
	l.lastFrame = took
	if overrun {
		l.overruns++
	}
	if l.metrics != nil {
		l.metrics.FrameDone(steps, overrun, l.cds.Len())
	}
	l.publishSnapshot()
}

func (l *Loop) publishSnapshot() {
	s := &Snapshot{
		Frames:           l.frames,
		FixedSteps:       l.fixedSteps,
		Overruns:         l.overruns,
		LastFrame:        l.lastFrame,
		ActiveJobs:       l.sched.Len(),
		ActiveCountdowns: l.cds.Len(),
		Paused:           l.paused,
		PostsDropped:     l.postsDropped.Load(),
	}
	if len(l.order) > 0 {
		s.Countdowns = make([]CountdownState, 0, len(l.order))
		for _, name := range l.order {
			cd := l.triggers[name].cd
			s.Countdowns = append(s.Countdowns, CountdownState{
				Name:      name,
				State:     cd.State().String(),
				Remaining: cd.Remaining(),
				Fraction:  cd.Fraction(),
			})
		}
	}
	l.snap.Store(s)
}

func (l *Loop) shutdown() {
	l.closed.Store(true)
	l.sdNotify(daemon.SdNotifyStopping)
	l.drainPosts()
	l.sched.Shutdown()
	l.cds.Shutdown()
	l.publishSnapshot()
	l.publish(eventbus.Event{Type: eventbus.TypeHostStopped})
	l.log.Info("loop stopped", logx.Uint64("frames", l.frames), logx.Uint64("overruns", l.overruns))
}

// CountdownEvent implements countdown.Observer: it forwards every transition
// to metrics and the event bus.
func (l *Loop) CountdownEvent(k countdown.EventKind, ev countdown.Event) {
	if l.metrics != nil {
		l.metrics.CountdownEvent(k, ev)
	}
	name := ev.Countdown.Name()
	if name == "" {
		return
	}
	l.log.Debug("countdown event", logx.String("name", name), logx.String("event", k.String()))
	e := eventbus.Event{Type: eventbus.TypeCountdown, Name: name, Detail: k.String()}
	if k == countdown.EventReduced {
		e.Data = ev.Amount
	}
	l.publish(e)
}

func (l *Loop) publish(e eventbus.Event) {
	if l.events != nil {
		l.events.Publish(e)
	}
}

func (l *Loop) sdNotify(state string) {
	if l.notify == nil {
		return
	}
	if _, err := l.notify(state); err != nil {
		l.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
	}
}

// watchdogInterval returns half the systemd watchdog timeout, or 0.
func (l *Loop) watchdogInterval() time.Duration {
	if !l.watchdog || l.notify == nil {
		return 0
	}
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		l.log.Warn("systemd watchdog check failed", logx.Err(err))
		return 0
	}
	return d / 2
}
