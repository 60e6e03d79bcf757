// Package metrics exposes scheduler, countdown and host loop metrics to
// Prometheus.
//
// Label children are resolved once in New so the observer hooks, which run on
// the tick goroutine, never allocate.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tickjob/internal/countdown"
	"tickjob/internal/job"
)

const namespace = "tickjob"

const numReasons = 2

// Collector implements job.Observer and countdown.Observer.
type Collector struct {
	reg *prometheus.Registry

	started   []prometheus.Counter             // by kind
	ended     [][numReasons]prometheus.Counter // by kind, reason
	tickTime  []prometheus.Observer            // by lane
	active    []prometheus.Gauge               // by lane
	cdEvents  []prometheus.Counter             // by countdown event
	frames    prometheus.Counter
	overruns  prometheus.Counter
	fixed     prometheus.Counter
	countdown prometheus.Gauge
}

var (
	_ job.Observer       = (*Collector)(nil)
	_ countdown.Observer = (*Collector)(nil)
)

// New registers every metric on reg.
func New(reg *prometheus.Registry) *Collector {
	startedVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_started_total",
		Help:      "Jobs started, by kind.",
	}, []string{"kind"})
	endedVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_ended_total",
		Help:      "Jobs ended, by kind and reason.",
	}, []string{"kind", "reason"})
	tickVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tick_seconds",
		Help:      "Time spent dispatching one scheduler lane.",
		Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .0025, .005, .01, .025, .05},
	}, []string{"lane"})
	activeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_jobs",
		Help:      "Active jobs after the last dispatch, by lane.",
	}, []string{"lane"})
	cdVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "countdown_events_total",
		Help:      "Countdown transitions, by event.",
	}, []string{"event"})

	c := &Collector{
		reg: reg,
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Host frames run.",
		}),
		fixed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixed_steps_total",
			Help:      "Fixed-lane steps run.",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_overruns_total",
			Help:      "Frames that took longer than the frame interval.",
		}),
		countdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_countdowns",
			Help:      "Active countdowns after the last frame.",
		}),
	}
	reg.MustRegister(startedVec, endedVec, tickVec, activeVec, cdVec, c.frames, c.fixed, c.overruns, c.countdown)

	for _, k := range job.Kinds() {
		c.started = append(c.started, startedVec.WithLabelValues(k.String()))
		c.ended = append(c.ended, [numReasons]prometheus.Counter{
			endedVec.WithLabelValues(k.String(), job.Completed.String()),
			endedVec.WithLabelValues(k.String(), job.Cancelled.String()),
		})
	}
	for _, l := range []job.Lane{job.LaneFrame, job.LaneFixed} {
		c.tickTime = append(c.tickTime, tickVec.WithLabelValues(l.String()))
		c.active = append(c.active, activeVec.WithLabelValues(l.String()))
	}
	for _, k := range countdown.EventKinds() {
		c.cdEvents = append(c.cdEvents, cdVec.WithLabelValues(k.String()))
	}
	return c
}

func (c *Collector) JobStarted(k job.Kind) {
	if int(k) < len(c.started) {
		c.started[k].Inc()
	}
}

func (c *Collector) JobEnded(k job.Kind, reason job.StopReason) {
	if int(k) < len(c.ended) && int(reason) < numReasons {
		c.ended[k][reason].Inc()
	}
}

func (c *Collector) TickDone(l job.Lane, took time.Duration, active int) {
	if int(l) >= len(c.tickTime) {
		return
	}
	c.tickTime[l].Observe(took.Seconds())
	c.active[l].Set(float64(active))
}

func (c *Collector) CountdownEvent(k countdown.EventKind, _ countdown.Event) {
	if int(k) < len(c.cdEvents) {
		c.cdEvents[k].Inc()
	}
}

// FrameDone records one host frame.
func (c *Collector) FrameDone(fixedSteps int, overrun bool, activeCountdowns int) {
	c.frames.Inc()
	if fixedSteps > 0 {
		c.fixed.Add(float64(fixedSteps))
	}
	if overrun {
		c.overruns.Inc()
	}
	c.countdown.Set(float64(activeCountdowns))
}

// ObserveDropped exports a monotonically increasing drop counter read from fn
// at scrape time.
func (c *Collector) ObserveDropped(name, help string, fn func() uint64) {
	c.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) }))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}
