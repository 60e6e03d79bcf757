// Package job provides pooled, tick-driven jobs.
//
// Four kinds share one lifecycle:
//   - Wait fires once after a duration.
//   - Frame fires every tick for N ticks.
//   - Timed fires every tick for a duration and reports normalized progress.
//   - Update fires every tick until stopped.
//
// Records live in per-kind arenas keyed by slot index and are recycled when a
// run ends. Callers only ever hold a Handle, a (slot, generation) pair: once
// the record is recycled the generation moves on and every operation through
// the old handle is a silent no-op.
//
// A Scheduler is driven by one goroutine calling Tick (and optionally
// FixedTick); none of its types are safe for concurrent use.
package job
