package job

import (
	"errors"
	"time"
)

var (
	// ErrClosed is the panic value for runs started after Shutdown.
	ErrClosed = errors.New("job: scheduler is shut down")

	errNilCallback  = errors.New("job: nil callback")
	errActiveReused = errors.New("job: pool handed out an active record")
)

// Kind identifies a job kind.
type Kind uint8

const (
	KindWait Kind = iota
	KindFrame
	KindTimed
	KindUpdate

	numKinds = 4
)

func (k Kind) String() string {
	switch k {
	case KindWait:
		return "wait"
	case KindFrame:
		return "frame"
	case KindTimed:
		return "timed"
	case KindUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Kinds lists every job kind, in declaration order.
func Kinds() []Kind { return []Kind{KindWait, KindFrame, KindTimed, KindUpdate} }

// Lane selects which tick drives a job.
type Lane uint8

const (
	// LaneFrame jobs advance on Scheduler.Tick.
	LaneFrame Lane = iota
	// LaneFixed jobs advance on Scheduler.FixedTick.
	LaneFixed

	numLanes = 2
)

func (l Lane) String() string {
	if l == LaneFixed {
		return "fixed"
	}
	return "frame"
}

// StopReason tells an OnStop callback how a run ended.
type StopReason uint8

const (
	// Completed: the job reached its terminal condition or was completed explicitly.
	Completed StopReason = iota
	// Cancelled: the job was stopped before completing.
	Cancelled
)

func (r StopReason) String() string {
	if r == Cancelled {
		return "cancelled"
	}
	return "completed"
}

// Observer receives scheduler lifecycle notifications on the tick goroutine.
type Observer interface {
	JobStarted(k Kind)
	JobEnded(k Kind, reason StopReason)
	TickDone(l Lane, took time.Duration, active int)
}

// Option configures a single run.
//
// Options are small interface values so passing them does not allocate.
type Option interface {
	apply(o *runOptions)
}

type runOptions struct {
	onStop func(StopReason)
	lane   Lane
}

type onStopOption func(StopReason)

func (f onStopOption) apply(o *runOptions) { o.onStop = f }

type laneOption Lane

func (l laneOption) apply(o *runOptions) { o.lane = Lane(l) }

// OnStop registers fn to run once when the run ends, after the record has
// been recycled. fn may start new jobs.
func OnStop(fn func(StopReason)) Option { return onStopOption(fn) }

// OnFixed drives the job from FixedTick instead of Tick.
func OnFixed() Option { return laneOption(LaneFixed) }

// Stats describes one kind's arena.
type Stats struct {
	Kind      Kind
	Allocated int
	Free      int
	Active    int
}
