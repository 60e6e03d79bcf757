package job

import "time"

type waitJob struct {
	base

	cb      func()
	target  time.Duration
	elapsed time.Duration
	firing  bool
}

// Wait runs cb once, on the first tick where the accumulated delta exceeds d.
// A d <= 0 fires on the first tick.
func (s *Scheduler) Wait(cb func(), d time.Duration, opts ...Option) Handle {
	if cb == nil {
		panic(errNilCallback)
	}
	s.mustBeOpen()
	j := s.waits.get(s)
	j.cb = cb
	j.target = d
	j.elapsed = 0
	return s.start(j, opts)
}

func (j *waitJob) Tick(dt time.Duration) {
	j.elapsed += clampDelta(dt)
	if j.target > 0 && j.elapsed <= j.target {
		return
	}
	j.fire()
}

// fire invokes the callback and then ends the run, unless the callback
// already ended it.
func (j *waitJob) fire() {
	gen := j.gen
	j.firing = true
	defer func() {
		// A panicking callback leaves the run active and not firing.
		if j.live(gen) {
			j.firing = false
		}
	}()
	j.cb()
	if j.live(gen) {
		j.end(Completed)
	}
}

func (j *waitJob) cancel()    { j.end(Cancelled) }
func (j *waitJob) softReset() { j.elapsed = 0 }

// complete from inside the callback must not invoke it a second time.
func (j *waitJob) complete() {
	if j.firing {
		j.end(Completed)
		return
	}
	j.fire()
}

func (j *waitJob) end(reason StopReason) {
	j.cb = nil
	j.target = 0
	j.elapsed = 0
	j.firing = false
	j.sched.end(j, reason)
}
