package countdown

import (
	"errors"
	"time"

	"tickjob/internal/tick"
	logx "tickjob/pkg/logx"
)

// ErrClosed is the panic value for Create after Shutdown.
var ErrClosed = errors.New("countdown: registry is shut down")

// Option configures a countdown at creation.
type Option func(*Countdown)

// Named labels the countdown for logs, metrics and journal entries.
func Named(name string) Option { return func(c *Countdown) { c.name = name } }

// RunWhileInactive makes the countdown advance on TickInactive as well as
// Tick, so it keeps running while the host simulation is paused.
func RunWhileInactive() Option { return func(c *Countdown) { c.whileInactive = true } }

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

func WithLogger(log logx.Logger) RegistryOption { return func(r *Registry) { r.log = log } }

// WithObserver installs a registry-wide transition hook.
func WithObserver(o Observer) RegistryOption { return func(r *Registry) { r.obs = o } }

// Stats describes the registry's pool.
type Stats struct {
	Allocated int
	Free      int
	Active    int
}

// Registry creates, pools and ticks countdowns. It is not safe for concurrent use.
type Registry struct {
	log logx.Logger
	obs Observer

	active       tick.Registry
	inactiveOnly bool // set while TickInactive dispatches

	allocated int
	free      []*Countdown
	closed    bool
}

func New(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r
}

// Create returns an inactive countdown with nominal duration d, reusing a
// released one when possible.
//
// Records are recycled: a pointer kept past Release may be handed out again
// by a later Create and would then drive that countdown. Holders that can
// outlive a Release keep Generation alongside the pointer and check it.
func (r *Registry) Create(d time.Duration, opts ...Option) *Countdown {
	if r.closed {
		panic(ErrClosed)
	}
	var c *Countdown
	if n := len(r.free); n > 0 {
		c = r.free[n-1]
		r.free[n-1] = nil
		r.free = r.free[:n-1]
		c.released = false
	} else {
		c = &Countdown{reg: r}
		r.allocated++
	}
	c.gen++
	c.duration = d
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}

// Release cancels c if it is active, drops its listeners and modifiers and
// returns it to the pool. c must not be used afterwards; see Create. Releasing twice or
// releasing a countdown from another registry returns false.
func (r *Registry) Release(c *Countdown) bool {
	if c == nil || c.reg != r || c.released {
		return false
	}
	c.Cancel()
	c.Events.clear()
	c.ClearModifiers()
	c.name = ""
	c.whileInactive = false
	c.duration, c.effective, c.remaining, c.inv = 0, 0, 0, 0
	c.released = true
	r.free = append(r.free, c)
	return true
}

// Tick advances every running countdown by dt, newest first. Countdowns
// started during the tick wait for the next one.
func (r *Registry) Tick(dt time.Duration) { r.active.Dispatch(dt) }

// TickInactive advances only countdowns created with RunWhileInactive.
func (r *Registry) TickInactive(dt time.Duration) {
	if r.active.Dispatching() {
		panic("countdown: TickInactive during Tick")
	}
	r.inactiveOnly = true
	defer func() { r.inactiveOnly = false }()
	r.active.Dispatch(dt)
}

// Len returns the number of active countdowns.
func (r *Registry) Len() int { return r.active.Len() }

func (r *Registry) Stats() Stats {
	return Stats{Allocated: r.allocated, Free: len(r.free), Active: r.Len()}
}

// Shutdown cancels every active countdown and closes the registry.
func (r *Registry) Shutdown() {
	if r.closed {
		return
	}
	r.closed = true

	var active []*Countdown
	r.active.Each(func(e tick.Entry) { active = append(active, e.(*Countdown)) })
	cancelled := 0
	for _, c := range active {
		if c.Cancel() {
			cancelled++
		}
	}
	r.log.Debug("countdown registry shut down", logx.Int("cancelled", cancelled))
}

func (r *Registry) Closed() bool { return r.closed }

func (r *Registry) activate(c *Countdown)   { r.active.Register(c) }
func (r *Registry) deactivate(c *Countdown) { r.active.Unregister(c) }
