package job

import (
	"time"

	"tickjob/internal/tick"
	logx "tickjob/pkg/logx"
)

const budgetWarnEvery = 5 * time.Second

// Scheduler owns the per-kind arenas and the active-job lanes.
//
// Each Tick visits the jobs registered on the frame lane when the tick
// starts, newest first, at most once. Jobs may start, stop or complete any job
// (including themselves) from inside their callbacks.
type Scheduler struct {
	log    logx.Logger
	slow   *logx.Limited
	obs    Observer
	budget time.Duration

	lanes [numLanes]tick.Registry

	waits   pool[waitJob, *waitJob]
	frames  pool[frameJob, *frameJob]
	timeds  pool[timedJob, *timedJob]
	updates pool[updateJob, *updateJob]

	ticks  [numLanes]uint64
	closed bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(log logx.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

// WithObserver installs lifecycle hooks (metrics).
func WithObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) { s.obs = o }
}

// WithBudget logs a rate-limited warning whenever one lane dispatch takes longer than d.
func WithBudget(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.budget = d }
}

// WithPrewarm pre-allocates n records of every kind.
func WithPrewarm(n int) SchedulerOption {
	return func(s *Scheduler) {
		for _, k := range Kinds() {
			s.Prewarm(k, n)
		}
	}
}

// New creates an empty scheduler.
func New(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{}
	s.waits.kind = KindWait
	s.frames.kind = KindFrame
	s.timeds.kind = KindTimed
	s.updates.kind = KindUpdate
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.slow = logx.NewLimited(s.log, budgetWarnEvery, 1)
	return s
}

// Tick advances every frame-lane job by dt.
//
// Callback panics propagate to the caller. Calling Tick from inside a job
// callback panics.
func (s *Scheduler) Tick(dt time.Duration) { s.dispatch(LaneFrame, dt) }

// FixedTick advances every fixed-lane job by dt.
func (s *Scheduler) FixedTick(dt time.Duration) { s.dispatch(LaneFixed, dt) }

func (s *Scheduler) dispatch(l Lane, dt time.Duration) {
	dt = clampDelta(dt)
	s.ticks[l]++
	reg := &s.lanes[l]
	if s.obs == nil && s.budget <= 0 {
		reg.Dispatch(dt)
		return
	}

	start := time.Now()
	reg.Dispatch(dt)
	took := time.Since(start)

	if s.obs != nil {
		s.obs.TickDone(l, took, reg.Len())
	}
	if s.budget > 0 && took > s.budget {
		s.slow.Warn("tick over budget",
			logx.String("lane", l.String()),
			logx.Duration("took", took),
			logx.Duration("budget", s.budget),
			logx.Int("active", reg.Len()),
		)
	}
}

// Active returns the number of jobs registered on lane l.
func (s *Scheduler) Active(l Lane) int {
	if l >= numLanes {
		return 0
	}
	return s.lanes[l].Len()
}

// Len returns the number of active jobs across both lanes.
func (s *Scheduler) Len() int {
	n := 0
	for i := range s.lanes {
		n += s.lanes[i].Len()
	}
	return n
}

// Ticks returns how many times lane l has been dispatched.
func (s *Scheduler) Ticks(l Lane) uint64 {
	if l >= numLanes {
		return 0
	}
	return s.ticks[l]
}

// Prewarm allocates records of kind k until at least n exist, so the next n
// concurrent runs of that kind do not allocate.
func (s *Scheduler) Prewarm(k Kind, n int) {
	switch k {
	case KindWait:
		s.waits.prewarm(s, n)
	case KindFrame:
		s.frames.prewarm(s, n)
	case KindTimed:
		s.timeds.prewarm(s, n)
	case KindUpdate:
		s.updates.prewarm(s, n)
	default:
		return
	}
	for i := range s.lanes {
		s.lanes[i].Grow(n)
	}
}

// Stats returns one entry per kind.
func (s *Scheduler) Stats() []Stats {
	return []Stats{s.waits.stats(), s.frames.stats(), s.timeds.stats(), s.updates.stats()}
}

// Shutdown cancels every active job (their OnStop callbacks see Cancelled)
// and closes the scheduler. Starting a job afterwards panics with ErrClosed.
// Shutdown is idempotent.
func (s *Scheduler) Shutdown() {
	if s.closed {
		return
	}
	s.closed = true

	var pending []record
	for i := range s.lanes {
		s.lanes[i].Each(func(e tick.Entry) { pending = append(pending, e.(record)) })
	}
	cancelled := 0
	for _, r := range pending {
		if r.core().active {
			r.cancel()
			cancelled++
		}
	}
	s.log.Debug("scheduler shut down", logx.Int("cancelled", cancelled))
}

// Closed reports whether Shutdown has been called.
func (s *Scheduler) Closed() bool { return s.closed }

func (s *Scheduler) mustBeOpen() {
	if s.closed {
		panic(ErrClosed)
	}
}

func (s *Scheduler) lookup(k Kind, index int32) record {
	// Each branch checks for nil before converting, so a missing slot never
	// becomes a non-nil interface holding a nil pointer.
	switch k {
	case KindWait:
		if r := s.waits.at(index); r != nil {
			return r
		}
	case KindFrame:
		if r := s.frames.at(index); r != nil {
			return r
		}
	case KindTimed:
		if r := s.timeds.at(index); r != nil {
			return r
		}
	case KindUpdate:
		if r := s.updates.at(index); r != nil {
			return r
		}
	}
	return nil
}

func (s *Scheduler) start(r record, opts []Option) Handle {
	b := r.core()
	var o runOptions
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&o)
		}
	}
	if o.lane >= numLanes {
		o.lane = LaneFrame
	}
	b.lane = o.lane
	b.onStop = o.onStop
	b.active = true
	s.lanes[b.lane].Register(r)

	if s.obs != nil {
		s.obs.JobStarted(b.kind)
	}
	return Handle{s: s, gen: b.gen, index: b.index, kind: b.kind}
}

// end deactivates r, returns it to its arena and then runs its OnStop callback.
func (s *Scheduler) end(r record, reason StopReason) {
	b := r.core()
	if !b.active {
		return
	}
	onStop := b.onStop
	b.onStop = nil
	b.active = false
	s.lanes[b.lane].Unregister(r)
	s.release(r)

	if s.obs != nil {
		s.obs.JobEnded(b.kind, reason)
	}
	if onStop != nil {
		onStop(reason)
	}
}

func (s *Scheduler) release(r record) {
	switch j := r.(type) {
	case *waitJob:
		s.waits.put(j)
	case *frameJob:
		s.frames.put(j)
	case *timedJob:
		s.timeds.put(j)
	case *updateJob:
		s.updates.put(j)
	}
}
