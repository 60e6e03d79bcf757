package countdown

import (
	"time"

	"tickjob/internal/tick"
)

// State is a countdown's lifecycle state.
type State uint8

const (
	Inactive State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "inactive"
	}
}

// Countdown counts an effective duration down to zero.
//
// The effective duration is the nominal duration run through the modifiers,
// computed on Start and Restart. Transition methods report whether they took
// effect; a transition that does not apply is a no-op and raises nothing.
type Countdown struct {
	slot tick.Slot
	reg  *Registry

	name          string
	whileInactive bool
	released      bool
	gen           uint64 // bumped by every Create that hands this record out

	state     State
	duration  time.Duration
	effective time.Duration
	remaining time.Duration
	inv       float64 // 1/effective, cached at Start and Restart

	modifiers []Modifier

	// Events is raised synchronously on the tick goroutine. Listeners may
	// drive this or any other countdown.
	Events Events
}

func (c *Countdown) TickSlot() *tick.Slot { return &c.slot }

// Tick advances a running countdown. Registries call it; callers do not.
// A zero-length countdown completes on its first tick whatever dt is.
func (c *Countdown) Tick(dt time.Duration) {
	if c.state != Running {
		return
	}
	if c.reg.inactiveOnly && !c.whileInactive {
		return
	}
	if dt > 0 {
		c.remaining -= dt
	}
	if c.remaining <= 0 {
		c.Complete()
	}
}

// Generation identifies this use of the record. Records are pooled, so a
// holder that may outlive a Release compares it with the value seen at
// Create to tell whether the pointer now belongs to someone else.
func (c *Countdown) Generation() uint64 { return c.gen }

// Name returns the name given at creation.
func (c *Countdown) Name() string { return c.name }

func (c *Countdown) State() State  { return c.state }
func (c *Countdown) Running() bool { return c.state == Running }
func (c *Countdown) Paused() bool  { return c.state == Paused }
func (c *Countdown) Active() bool  { return c.state != Inactive }

// Duration returns the nominal duration.
func (c *Countdown) Duration() time.Duration { return c.duration }

// SetDuration changes the nominal duration. A running countdown picks it up
// on its next Restart.
func (c *Countdown) SetDuration(d time.Duration) { c.duration = d }

// Effective returns the duration computed by the last Start or Restart.
func (c *Countdown) Effective() time.Duration { return c.effective }

func (c *Countdown) Remaining() time.Duration { return c.remaining }

// Elapsed returns effective minus remaining.
func (c *Countdown) Elapsed() time.Duration { return c.effective - c.remaining }

// Fraction returns the elapsed share of the effective duration, or 0 when the
// effective duration is not positive.
func (c *Countdown) Fraction() float64 { return float64(c.Elapsed()) * c.inv }

// AddModifier appends m. It applies from the next Start or Restart.
func (c *Countdown) AddModifier(m Modifier) {
	if m == nil {
		return
	}
	c.modifiers = append(c.modifiers, m)
}

// RemoveModifier drops the first modifier equal to m. Modifiers of
// non-comparable types never match.
func (c *Countdown) RemoveModifier(m Modifier) bool {
	for i, cur := range c.modifiers {
		if sameModifier(cur, m) {
			copy(c.modifiers[i:], c.modifiers[i+1:])
			c.modifiers[len(c.modifiers)-1] = nil
			c.modifiers = c.modifiers[:len(c.modifiers)-1]
			return true
		}
	}
	return false
}

func (c *Countdown) ClearModifiers() {
	clear(c.modifiers)
	c.modifiers = c.modifiers[:0]
}

// Modifiers returns the number of installed modifiers.
func (c *Countdown) Modifiers() int { return len(c.modifiers) }

// Start moves an inactive countdown to Running.
func (c *Countdown) Start() bool {
	if c.state != Inactive || c.released || c.reg.closed {
		return false
	}
	c.reset()
	c.state = Running
	c.reg.activate(c)
	c.raise(EventStarted, 0)
	return true
}

// Pause moves a running countdown to Paused.
func (c *Countdown) Pause() bool {
	if c.state != Running {
		return false
	}
	c.state = Paused
	c.raise(EventPaused, 0)
	return true
}

// Resume moves a paused countdown back to Running.
func (c *Countdown) Resume() bool {
	if c.state != Paused {
		return false
	}
	c.state = Running
	c.raise(EventResumed, 0)
	return true
}

// Reduce subtracts d from the remaining time of an active countdown, running
// or paused. Reduced is raised with d even when the reduction completes the
// countdown, in which case Completed follows it. Non-positive amounts are
// ignored.
func (c *Countdown) Reduce(d time.Duration) bool {
	if c.state == Inactive || d <= 0 {
		return false
	}
	c.remaining -= d
	if c.remaining < 0 {
		c.remaining = 0
	}
	c.raise(EventReduced, d)
	// A Reduced listener may have restarted or cancelled it.
	if c.state != Inactive && c.remaining <= 0 {
		c.Complete()
	}
	return true
}

// Restart recomputes the effective duration and refills the remaining time
// without touching the running/paused sub-state. An inactive countdown is
// started when startIfInactive is set and left alone otherwise.
func (c *Countdown) Restart(startIfInactive bool) bool {
	if c.state == Inactive {
		if startIfInactive {
			return c.Start()
		}
		return false
	}
	c.reset()
	c.raise(EventRestarted, 0)
	return true
}

// Complete ends an active countdown as completed.
func (c *Countdown) Complete() bool {
	if c.state == Inactive {
		return false
	}
	c.remaining = 0
	c.deactivate()
	c.raise(EventCompleted, 0)
	return true
}

// Cancel ends an active countdown without completing it. The remaining time
// is kept for inspection.
func (c *Countdown) Cancel() bool {
	if c.state == Inactive {
		return false
	}
	c.deactivate()
	c.raise(EventCancelled, 0)
	return true
}

func (c *Countdown) reset() {
	c.effective = applyModifiers(c.duration, c.modifiers)
	c.remaining = c.effective
	c.inv = 0
	if c.effective > 0 {
		c.inv = 1 / float64(c.effective)
	}
}

func (c *Countdown) deactivate() {
	c.state = Inactive
	c.reg.deactivate(c)
}

func (c *Countdown) raise(k EventKind, amount time.Duration) {
	ev := Event{Countdown: c, Amount: amount}
	if c.reg.obs != nil {
		c.reg.obs.CountdownEvent(k, ev)
	}
	c.Events.Bus(k).Raise(ev)
}
