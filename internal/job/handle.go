package job

// Handle is the caller's reference to a run it started.
//
// A handle is valid while the run it was issued for is active. Once the run
// ends, and especially once its record has been recycled for another run,
// every operation through the handle is a no-op that returns false. The zero
// Handle is never valid.
type Handle struct {
	s     *Scheduler
	gen   uint64
	index int32
	kind  Kind
}

// Kind returns the kind of job the handle was issued for.
func (h Handle) Kind() Kind { return h.kind }

// Generation returns the record generation captured when the handle was issued.
func (h Handle) Generation() uint64 { return h.gen }

func (h Handle) resolve() record {
	if h.s == nil || h.gen == 0 {
		return nil
	}
	r := h.s.lookup(h.kind, h.index)
	if r == nil || !r.core().live(h.gen) {
		return nil
	}
	return r
}

// Valid reports whether the run is still active.
func (h Handle) Valid() bool { return h.resolve() != nil }

// Stop ends the run without invoking its callback. OnStop sees Cancelled.
func (h Handle) Stop() bool {
	r := h.resolve()
	if r == nil {
		return false
	}
	r.cancel()
	return true
}

// Cancel is an alias for Stop.
func (h Handle) Cancel() bool { return h.Stop() }

// Complete ends the run as completed. For Wait jobs the callback is invoked
// first ("skip the wait"); other kinds end without a further callback.
func (h Handle) Complete() bool {
	r := h.resolve()
	if r == nil {
		return false
	}
	r.complete()
	return true
}
