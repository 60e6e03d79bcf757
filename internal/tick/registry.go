package tick

import "time"

// Slot records where an entry lives inside a Registry. Entries embed one and
// hand it out through TickSlot; the zero value means "not registered".
type Slot struct {
	pos int // index+1
	reg *Registry
}

// Registered reports whether the owning entry is currently registered.
func (s *Slot) Registered() bool { return s.pos != 0 }

// Entry is something a Registry can drive.
type Entry interface {
	Tick(dt time.Duration)
	TickSlot() *Slot
}

// Registry is an ordered set of entries driven by Dispatch.
// It is not safe for concurrent use.
type Registry struct {
	entries     []Entry
	live        int
	holes       int
	dispatching bool
}

// Len returns the number of registered entries.
func (r *Registry) Len() int { return r.live }

// Dispatching reports whether a Dispatch is in progress.
func (r *Registry) Dispatching() bool { return r.dispatching }

// Grow makes room for n more entries without reallocating during ticks.
func (r *Registry) Grow(n int) {
	if n <= 0 {
		return
	}
	if cap(r.entries)-len(r.entries) < n {
		grown := make([]Entry, len(r.entries), len(r.entries)+n)
		copy(grown, r.entries)
		r.entries = grown
	}
}

// Register appends e. It returns false if e is already registered here.
// Registering an entry that belongs to another registry panics.
func (r *Registry) Register(e Entry) bool {
	s := e.TickSlot()
	if s.pos != 0 {
		if s.reg != r {
			panic("tick: entry registered with another registry")
		}
		return false
	}
	r.entries = append(r.entries, e)
	s.pos = len(r.entries)
	s.reg = r
	r.live++
	return true
}

// Unregister removes e. It returns false if e was not registered here.
func (r *Registry) Unregister(e Entry) bool {
	s := e.TickSlot()
	if s.pos == 0 || s.reg != r {
		return false
	}
	i := s.pos - 1
	s.pos = 0
	s.reg = nil
	r.live--
	if r.dispatching {
		r.entries[i] = nil
		r.holes++
		return true
	}
	r.removeAt(i)
	return true
}

// Dispatch calls Tick(dt) on every entry registered when it starts, newest
// first. A panicking entry aborts the dispatch; the registry stays consistent.
func (r *Registry) Dispatch(dt time.Duration) {
	if r.dispatching {
		panic("tick: reentrant dispatch")
	}
	r.dispatching = true
	defer r.endDispatch()

	for i := len(r.entries) - 1; i >= 0; i-- {
		if e := r.entries[i]; e != nil {
			e.Tick(dt)
		}
	}
}

// Each calls fn for every registered entry in registration order.
// fn must not register or unregister entries.
func (r *Registry) Each(fn func(Entry)) {
	for _, e := range r.entries {
		if e != nil {
			fn(e)
		}
	}
}

func (r *Registry) endDispatch() {
	r.dispatching = false
	if r.holes > 0 {
		r.compact()
	}
}

func (r *Registry) removeAt(i int) {
	copy(r.entries[i:], r.entries[i+1:])
	last := len(r.entries) - 1
	r.entries[last] = nil
	r.entries = r.entries[:last]
	for j := i; j < last; j++ {
		if e := r.entries[j]; e != nil {
			e.TickSlot().pos = j + 1
		}
	}
}

func (r *Registry) compact() {
	w := 0
	for _, e := range r.entries {
		if e == nil {
			continue
		}
		r.entries[w] = e
		e.TickSlot().pos = w + 1
		w++
	}
	for j := w; j < len(r.entries); j++ {
		r.entries[j] = nil
	}
	r.entries = r.entries[:w]
	r.holes = 0
}
