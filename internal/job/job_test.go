package job

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tickjob/pkg/logx"
)

const half = 500 * time.Millisecond

func TestWaitFiresOnceAfterDurationExceeded(t *testing.T) {
	s := New()
	calls := 0
	h := s.Wait(func() { calls++ }, time.Second)

	s.Tick(half)
	s.Tick(half) // elapsed == target: not yet exceeded
	assert.Zero(t, calls)
	assert.True(t, h.Valid())

	s.Tick(half)
	assert.Equal(t, 1, calls)
	assert.False(t, h.Valid())
	assert.Zero(t, s.Len())

	s.Tick(half)
	assert.Equal(t, 1, calls)
}

func TestFrameRunsForCountTicks(t *testing.T) {
	s := New()
	var frames []int
	h := s.Frame(func(n int) { frames = append(frames, n) }, 3)

	for i := 0; i < 5; i++ {
		s.Tick(time.Millisecond)
	}
	assert.Equal(t, []int{1, 2, 3}, frames)
	assert.False(t, h.Valid())
}

func TestTimedReportsProgress(t *testing.T) {
	s := New()
	var got []float64
	h := s.Timed(func(st TimedStep) { got = append(got, st.Progress) }, 2*time.Second)

	s.Tick(time.Second)
	assert.True(t, h.Valid())
	s.Tick(time.Second)
	assert.False(t, h.Valid())
	assert.Equal(t, []float64{0.5, 1.0}, got)
}

func TestTimedProgressIsClamped(t *testing.T) {
	s := New()
	var got float64
	s.Timed(func(st TimedStep) { got = st.Progress }, time.Second)
	s.Tick(3 * time.Second)
	assert.Equal(t, 1.0, got)
	assert.Zero(t, s.Len())
}

func TestTimedSoftResetKeepsRunning(t *testing.T) {
	s := New()
	resets := 0
	h := s.Timed(func(st TimedStep) {
		if st.Progress >= 1 && resets == 0 {
			resets++
			assert.True(t, st.SoftReset())
		}
	}, time.Second)

	s.Tick(time.Second)
	assert.True(t, h.Valid(), "soft reset on the final tick keeps the run alive")
	s.Tick(half)
	assert.True(t, h.Valid())
	s.Tick(half)
	assert.False(t, h.Valid())
}

func TestUpdateRunsUntilStopped(t *testing.T) {
	s := New()
	var runtimes []time.Duration
	h := s.Update(func(st UpdateStep) { runtimes = append(runtimes, st.Runtime) })

	for i := 0; i < 3; i++ {
		s.Tick(time.Second)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, runtimes)
	require.True(t, h.Stop())
	s.Tick(time.Second)
	assert.Len(t, runtimes, 3)
}

func TestUpdateSoftResetAndSetCompleted(t *testing.T) {
	s := New()
	var runtimes []time.Duration
	h := s.Update(func(st UpdateStep) {
		runtimes = append(runtimes, st.Runtime)
		switch len(runtimes) {
		case 2:
			st.SoftReset()
		case 3:
			st.SetCompleted()
		}
	})
	for i := 0; i < 5; i++ {
		s.Tick(time.Second)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second}, runtimes)
	assert.False(t, h.Valid())
}

func TestStopIsIdempotentForEveryKind(t *testing.T) {
	s := New()
	handles := map[Kind]Handle{
		KindWait:   s.Wait(func() {}, time.Hour),
		KindFrame:  s.Frame(func(int) {}, 100),
		KindTimed:  s.Timed(func(TimedStep) {}, time.Hour),
		KindUpdate: s.Update(func(UpdateStep) {}),
	}
	for k, h := range handles {
		assert.Equal(t, k, h.Kind())
		assert.True(t, h.Stop(), k.String())
		assert.False(t, h.Stop(), k.String())
		assert.False(t, h.Cancel(), k.String())
		assert.False(t, h.Complete(), k.String())
	}
	assert.Zero(t, s.Len())
}

func TestStoppedJobIsNeverTickedAgain(t *testing.T) {
	s := New()
	calls := 0
	h := s.Update(func(UpdateStep) { calls++ })
	s.Tick(time.Millisecond)
	h.Cancel()
	for i := 0; i < 3; i++ {
		s.Tick(time.Millisecond)
	}
	assert.Equal(t, 1, calls)
}

func TestStaleHandleAfterRecycle(t *testing.T) {
	s := New()
	first := s.Wait(func() {}, 0)
	s.Tick(time.Millisecond)
	require.False(t, first.Valid())

	secondCalls := 0
	second := s.Wait(func() { secondCalls++ }, time.Hour)
	// LIFO reuse hands back the same slot with a new generation.
	require.Equal(t, first.index, second.index)
	require.NotEqual(t, first.Generation(), second.Generation())

	assert.False(t, first.Valid())
	assert.False(t, first.Stop())
	assert.False(t, first.Complete())
	assert.True(t, second.Valid())
	assert.Zero(t, secondCalls)
}

func TestWaitCompleteForcesCallback(t *testing.T) {
	s := New()
	calls := 0
	var reason StopReason = 99
	h := s.Wait(func() { calls++ }, time.Hour, OnStop(func(r StopReason) { reason = r }))

	require.True(t, h.Complete())
	assert.Equal(t, 1, calls)
	assert.Equal(t, Completed, reason)
	assert.False(t, h.Valid())
}

func TestWaitCancelSkipsCallback(t *testing.T) {
	s := New()
	calls := 0
	var reason StopReason = 99
	h := s.Wait(func() { calls++ }, time.Hour, OnStop(func(r StopReason) { reason = r }))

	require.True(t, h.Cancel())
	assert.Zero(t, calls)
	assert.Equal(t, Cancelled, reason)
}

func TestWaitCompletingItselfFromCallbackRunsOnce(t *testing.T) {
	s := New()
	calls := 0
	var h Handle
	h = s.Wait(func() {
		calls++
		h.Complete()
	}, 0)
	s.Tick(time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.False(t, h.Valid())
}

func TestNonPositiveTargetsCompleteOnFirstTick(t *testing.T) {
	s := New()
	waits, frames, timed := 0, 0, 0
	s.Wait(func() { waits++ }, -time.Second)
	s.Wait(func() { waits++ }, 0)
	s.Frame(func(int) { frames++ }, 0)
	s.Frame(func(int) { frames++ }, -3)
	s.Timed(func(st TimedStep) {
		timed++
		assert.Equal(t, 1.0, st.Progress)
	}, 0)

	s.Tick(0)
	assert.Equal(t, 2, waits)
	assert.Equal(t, 2, frames)
	assert.Equal(t, 1, timed)
	assert.Zero(t, s.Len())
}

func TestSetCompletedInsideCallbackIsNotTickedAgain(t *testing.T) {
	s := New()
	calls := 0
	var ctl Control
	s.Timed(func(st TimedStep) {
		calls++
		ctl = st.Control
		st.SetCompleted()
	}, time.Hour)

	s.Tick(time.Millisecond)
	s.Tick(time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.False(t, ctl.SetCompleted(), "control outlives its generation")
	assert.False(t, ctl.SoftReset())
}

func TestCallbackRestartingIntoSameSlot(t *testing.T) {
	s := New()
	var order []string
	var next Handle
	s.Timed(func(st TimedStep) {
		order = append(order, "old")
		st.SetCompleted()
		// The freed slot is reused immediately.
		next = s.Timed(func(TimedStep) { order = append(order, "new") }, time.Hour)
	}, time.Hour)

	s.Tick(time.Millisecond)
	assert.Equal(t, []string{"old"}, order)
	require.True(t, next.Valid())

	s.Tick(time.Millisecond)
	assert.Equal(t, []string{"old", "new"}, order)
}

func TestReverseRegistrationOrder(t *testing.T) {
	s := New()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.Frame(func(int) { order = append(order, i) }, 1)
	}
	s.Tick(time.Millisecond)
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestJobStartedDuringTickWaitsForNextTick(t *testing.T) {
	s := New()
	childCalls := 0
	s.Frame(func(int) {
		s.Frame(func(int) { childCalls++ }, 1)
	}, 1)

	s.Tick(time.Millisecond)
	assert.Zero(t, childCalls)
	s.Tick(time.Millisecond)
	assert.Equal(t, 1, childCalls)
}

func TestStoppingUnvisitedJobDuringTick(t *testing.T) {
	s := New()
	victimCalls := 0
	victim := s.Update(func(UpdateStep) { victimCalls++ })
	s.Frame(func(int) { victim.Stop() }, 1)

	s.Tick(time.Millisecond)
	assert.Zero(t, victimCalls)
	assert.Zero(t, s.Len())
}

func TestOnStopMayStartJobs(t *testing.T) {
	s := New()
	chained := 0
	s.Wait(func() {}, 0, OnStop(func(StopReason) {
		s.Wait(func() { chained++ }, 0)
	}))
	s.Tick(time.Millisecond)
	assert.Equal(t, 1, s.Len())
	s.Tick(time.Millisecond)
	assert.Equal(t, 1, chained)
}

func TestFixedLane(t *testing.T) {
	s := New()
	frameCalls, fixedCalls := 0, 0
	s.Update(func(UpdateStep) { frameCalls++ })
	s.Update(func(UpdateStep) { fixedCalls++ }, OnFixed())

	s.Tick(time.Millisecond)
	s.FixedTick(time.Millisecond)
	s.FixedTick(time.Millisecond)

	assert.Equal(t, 1, frameCalls)
	assert.Equal(t, 2, fixedCalls)
	assert.Equal(t, 1, s.Active(LaneFrame))
	assert.Equal(t, 1, s.Active(LaneFixed))
	assert.Equal(t, uint64(2), s.Ticks(LaneFixed))
}

func TestCallbackPanicPropagates(t *testing.T) {
	s := New()
	h := s.Frame(func(int) { panic("job exploded") }, 5)
	assert.PanicsWithValue(t, "job exploded", func() { s.Tick(time.Millisecond) })

	// The scheduler is still usable afterwards.
	require.True(t, h.Stop())
	calls := 0
	s.Wait(func() { calls++ }, 0)
	s.Tick(time.Millisecond)
	assert.Equal(t, 1, calls)
}

func TestWaitCompleteAfterCallbackPanicRunsCallback(t *testing.T) {
	s := New()
	calls := 0
	h := s.Wait(func() {
		calls++
		if calls == 1 {
			panic("first call fails")
		}
	}, 0)
	assert.PanicsWithValue(t, "first call fails", func() { s.Tick(time.Millisecond) })
	require.True(t, h.Valid(), "a panicking callback leaves the run active")

	require.True(t, h.Complete())
	assert.Equal(t, 2, calls, "Complete forces the callback again")
	assert.False(t, h.Valid())
}

func TestNilCallbackPanics(t *testing.T) {
	s := New()
	assert.Panics(t, func() { s.Wait(nil, time.Second) })
	assert.Panics(t, func() { s.Frame(nil, 1) })
	assert.Panics(t, func() { s.Timed(nil, time.Second) })
	assert.Panics(t, func() { s.Update(nil) })
	assert.Zero(t, s.Len())
}

func TestReentrantTickPanics(t *testing.T) {
	s := New()
	s.Frame(func(int) { s.Tick(0) }, 1)
	assert.Panics(t, func() { s.Tick(time.Millisecond) })
}

func TestShutdownCancelsEverything(t *testing.T) {
	s := New()
	var reasons []StopReason
	for i := 0; i < 3; i++ {
		s.Update(func(UpdateStep) {}, OnStop(func(r StopReason) { reasons = append(reasons, r) }))
	}
	s.Wait(func() {}, time.Hour, OnFixed(), OnStop(func(r StopReason) { reasons = append(reasons, r) }))

	s.Shutdown()
	s.Shutdown()
	assert.True(t, s.Closed())
	assert.Zero(t, s.Len())
	assert.Equal(t, []StopReason{Cancelled, Cancelled, Cancelled, Cancelled}, reasons)
	assert.PanicsWithValue(t, ErrClosed, func() { s.Wait(func() {}, 0) })
}

func TestZeroHandle(t *testing.T) {
	var h Handle
	assert.False(t, h.Valid())
	assert.False(t, h.Stop())
	assert.False(t, h.Complete())
}

func TestPrewarmAndStats(t *testing.T) {
	s := New(WithPrewarm(4))
	for _, st := range s.Stats() {
		assert.Equal(t, 4, st.Allocated, st.Kind.String())
		assert.Equal(t, 4, st.Free, st.Kind.String())
	}

	h := s.Update(func(UpdateStep) {})
	st := s.Stats()[KindUpdate]
	assert.Equal(t, 4, st.Allocated)
	assert.Equal(t, 1, st.Active)
	h.Stop()
	assert.Zero(t, s.Stats()[KindUpdate].Active)
}

func TestSteadyStateDoesNotAllocate(t *testing.T) {
	s := New(WithPrewarm(8))
	cb := func() {}
	allocs := testing.AllocsPerRun(200, func() {
		s.Wait(cb, 0)
		s.Tick(time.Millisecond)
	})
	assert.Zero(t, allocs)
}

type recorder struct {
	started map[Kind]int
	ended   map[StopReason]int
	ticks   int
}

func (r *recorder) JobStarted(k Kind)                  { r.started[k]++ }
func (r *recorder) JobEnded(_ Kind, reason StopReason) { r.ended[reason]++ }
func (r *recorder) TickDone(Lane, time.Duration, int)  { r.ticks++ }

func TestObserver(t *testing.T) {
	rec := &recorder{started: map[Kind]int{}, ended: map[StopReason]int{}}
	s := New(WithObserver(rec))

	s.Wait(func() {}, 0)
	h := s.Update(func(UpdateStep) {})
	s.Tick(time.Millisecond)
	h.Stop()

	assert.Equal(t, 1, rec.started[KindWait])
	assert.Equal(t, 1, rec.started[KindUpdate])
	assert.Equal(t, 1, rec.ended[Completed])
	assert.Equal(t, 1, rec.ended[Cancelled])
	assert.Equal(t, 1, rec.ticks)
}

func TestBudgetWarning(t *testing.T) {
	var buf bytes.Buffer
	s := New(WithLogger(logx.NewWriter(&buf, "debug")), WithBudget(time.Microsecond))
	s.Frame(func(int) { time.Sleep(2 * time.Millisecond) }, 2)

	s.Tick(time.Millisecond)
	s.Tick(time.Millisecond)
	assert.Equal(t, 1, strings.Count(buf.String(), "tick over budget"), "warnings are rate limited")
}

func TestNegativeDeltaIsIgnored(t *testing.T) {
	s := New()
	var last time.Duration
	s.Update(func(st UpdateStep) { last = st.Runtime })
	s.Tick(time.Second)
	s.Tick(-5 * time.Second)
	assert.Equal(t, time.Second, last)
}
