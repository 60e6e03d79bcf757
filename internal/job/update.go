package job

import "time"

// UpdateStep is passed to Update callbacks.
type UpdateStep struct {
	Control

	Delta   time.Duration
	Runtime time.Duration // accumulated since start or the last SoftReset
}

type updateJob struct {
	base

	cb      func(UpdateStep)
	runtime time.Duration
}

// Update runs cb every tick until the run is stopped through its handle or
// its Control.
func (s *Scheduler) Update(cb func(UpdateStep), opts ...Option) Handle {
	if cb == nil {
		panic(errNilCallback)
	}
	s.mustBeOpen()
	j := s.updates.get(s)
	j.cb = cb
	j.runtime = 0
	return s.start(j, opts)
}

func (j *updateJob) Tick(dt time.Duration) {
	dt = clampDelta(dt)
	j.runtime += dt
	j.cb(UpdateStep{
		Control: Control{r: j, gen: j.gen},
		Delta:   dt,
		Runtime: j.runtime,
	})
}

func (j *updateJob) cancel()    { j.end(Cancelled) }
func (j *updateJob) complete()  { j.end(Completed) }
func (j *updateJob) softReset() { j.runtime = 0 }

func (j *updateJob) end(reason StopReason) {
	j.cb = nil
	j.runtime = 0
	j.sched.end(j, reason)
}
