package countdown

import (
	"time"

	"tickjob/internal/broadcast"
)

// EventKind names a countdown transition.
type EventKind uint8

const (
	EventStarted EventKind = iota
	EventPaused
	EventResumed
	EventRestarted
	EventReduced
	EventCompleted
	EventCancelled
)

var eventNames = [...]string{"started", "paused", "resumed", "restarted", "reduced", "completed", "cancelled"}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// EventKinds lists every transition, in declaration order.
func EventKinds() []EventKind {
	return []EventKind{EventStarted, EventPaused, EventResumed, EventRestarted, EventReduced, EventCompleted, EventCancelled}
}

// Event is raised on every transition. Amount is only set for Reduced.
type Event struct {
	Countdown *Countdown
	Amount    time.Duration
}

// Events holds one bus per transition.
type Events struct {
	Started   broadcast.Bus[Event]
	Paused    broadcast.Bus[Event]
	Resumed   broadcast.Bus[Event]
	Restarted broadcast.Bus[Event]
	Reduced   broadcast.Bus[Event]
	Completed broadcast.Bus[Event]
	Cancelled broadcast.Bus[Event]
}

// Bus returns the bus for k, or nil.
func (e *Events) Bus(k EventKind) *broadcast.Bus[Event] {
	switch k {
	case EventStarted:
		return &e.Started
	case EventPaused:
		return &e.Paused
	case EventResumed:
		return &e.Resumed
	case EventRestarted:
		return &e.Restarted
	case EventReduced:
		return &e.Reduced
	case EventCompleted:
		return &e.Completed
	case EventCancelled:
		return &e.Cancelled
	}
	return nil
}

func (e *Events) clear() {
	for _, k := range EventKinds() {
		e.Bus(k).Clear()
	}
}

// Observer sees every transition of every countdown in a registry, before the
// countdown's own listeners do.
type Observer interface {
	CountdownEvent(kind EventKind, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(kind EventKind, ev Event)

func (f ObserverFunc) CountdownEvent(kind EventKind, ev Event) { f(kind, ev) }
