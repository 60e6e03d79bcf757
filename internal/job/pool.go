package job

import (
	"time"

	"tickjob/internal/tick"
)

// record is what every job kind implements on top of its embedded base.
type record interface {
	tick.Entry
	core() *base
	cancel()
	complete()
	softReset()
}

// base is the state every record shares.
type base struct {
	slot  tick.Slot
	sched *Scheduler

	index  int32
	kind   Kind
	lane   Lane
	active bool
	gen    uint64

	onStop func(StopReason)
}

func (b *base) TickSlot() *tick.Slot { return &b.slot }
func (b *base) core() *base          { return b }

// live reports whether the record is still running the generation gen.
func (b *base) live(gen uint64) bool { return b.active && b.gen == gen }

// pool is a per-kind arena. Slots are stable for the life of the scheduler;
// free slots are reused LIFO.
type pool[T any, P interface {
	*T
	record
}] struct {
	kind  Kind
	slots []P
	free  []int32
}

// get returns an inactive record with a fresh generation.
func (p *pool[T, P]) get(s *Scheduler) P {
	var r P
	if n := len(p.free); n > 0 {
		r = p.slots[p.free[n-1]]
		p.free = p.free[:n-1]
	} else {
		r = P(new(T))
		b := r.core()
		b.index = int32(len(p.slots))
		b.kind = p.kind
		b.sched = s
		p.slots = append(p.slots, r)
	}
	b := r.core()
	if b.active {
		panic(errActiveReused)
	}
	b.gen++
	return r
}

func (p *pool[T, P]) put(r P) {
	p.free = append(p.free, r.core().index)
}

func (p *pool[T, P]) at(index int32) P {
	if index < 0 || int(index) >= len(p.slots) {
		return nil
	}
	return p.slots[index]
}

// prewarm allocates records until at least n exist, leaving them free.
func (p *pool[T, P]) prewarm(s *Scheduler, n int) {
	if n <= len(p.slots) {
		return
	}
	if cap(p.free) < n {
		grown := make([]int32, len(p.free), n)
		copy(grown, p.free)
		p.free = grown
	}
	for len(p.slots) < n {
		r := P(new(T))
		b := r.core()
		b.index = int32(len(p.slots))
		b.kind = p.kind
		b.sched = s
		p.slots = append(p.slots, r)
		p.free = append(p.free, b.index)
	}
}

func (p *pool[T, P]) stats() Stats {
	return Stats{
		Kind:      p.kind,
		Allocated: len(p.slots),
		Free:      len(p.free),
		Active:    len(p.slots) - len(p.free),
	}
}

// clampDelta keeps a negative delta from rewinding accumulators.
func clampDelta(dt time.Duration) time.Duration {
	if dt < 0 {
		return 0
	}
	return dt
}
