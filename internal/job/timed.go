package job

import "time"

// Control lets a per-tick callback steer its own run. It is only meaningful
// during the callback that received it; afterwards it refers to a generation
// that may no longer be live and its methods become no-ops.
type Control struct {
	r   record
	gen uint64
}

// SetCompleted ends the run as completed once the callback returns control.
func (c Control) SetCompleted() bool {
	if c.r == nil || !c.r.core().live(c.gen) {
		return false
	}
	c.r.complete()
	return true
}

// SoftReset zeroes the run's accumulated time without ending it.
func (c Control) SoftReset() bool {
	if c.r == nil || !c.r.core().live(c.gen) {
		return false
	}
	c.r.softReset()
	return true
}

// TimedStep is passed to Timed callbacks.
type TimedStep struct {
	Control

	Delta    time.Duration
	Elapsed  time.Duration
	Progress float64 // elapsed/duration, clamped to [0, 1]
}

type timedJob struct {
	base

	cb       func(TimedStep)
	duration time.Duration
	elapsed  time.Duration
}

// Timed runs cb every tick until the accumulated delta reaches d, reporting
// normalized progress. The run ends after the tick on which progress reaches 1.
func (s *Scheduler) Timed(cb func(TimedStep), d time.Duration, opts ...Option) Handle {
	if cb == nil {
		panic(errNilCallback)
	}
	s.mustBeOpen()
	j := s.timeds.get(s)
	j.cb = cb
	j.duration = d
	j.elapsed = 0
	return s.start(j, opts)
}

func progress(elapsed, d time.Duration) float64 {
	if d <= 0 {
		return 1
	}
	p := float64(elapsed) / float64(d)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func (j *timedJob) Tick(dt time.Duration) {
	dt = clampDelta(dt)
	j.elapsed += dt
	gen := j.gen
	j.cb(TimedStep{
		Control:  Control{r: j, gen: gen},
		Delta:    dt,
		Elapsed:  j.elapsed,
		Progress: progress(j.elapsed, j.duration),
	})
	if j.live(gen) && progress(j.elapsed, j.duration) >= 1 {
		j.end(Completed)
	}
}

func (j *timedJob) cancel()    { j.end(Cancelled) }
func (j *timedJob) complete()  { j.end(Completed) }
func (j *timedJob) softReset() { j.elapsed = 0 }

func (j *timedJob) end(reason StopReason) {
	j.cb = nil
	j.duration = 0
	j.elapsed = 0
	j.sched.end(j, reason)
}
