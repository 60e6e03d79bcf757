package job

import "time"

type frameJob struct {
	base

	cb     func(frame int)
	target int
	frames int
}

// Frame runs cb on each of the next n ticks, passing the 1-based frame number.
// A n <= 0 runs cb once, on the first tick.
func (s *Scheduler) Frame(cb func(frame int), n int, opts ...Option) Handle {
	if cb == nil {
		panic(errNilCallback)
	}
	s.mustBeOpen()
	j := s.frames.get(s)
	j.cb = cb
	j.target = n
	j.frames = 0
	return s.start(j, opts)
}

func (j *frameJob) Tick(time.Duration) {
	j.frames++
	gen := j.gen
	j.cb(j.frames)
	if j.live(gen) && j.frames >= j.target {
		j.end(Completed)
	}
}

func (j *frameJob) cancel()    { j.end(Cancelled) }
func (j *frameJob) complete()  { j.end(Completed) }
func (j *frameJob) softReset() { j.frames = 0 }

func (j *frameJob) end(reason StopReason) {
	j.cb = nil
	j.target = 0
	j.frames = 0
	j.sched.end(j, reason)
}
