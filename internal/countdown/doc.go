// Package countdown implements pausable, modifiable countdown timers driven by
// the same tick as the job scheduler.
//
// A Countdown is created from a Registry, which pools released countdowns and
// ticks the active ones. Every state transition is raised on the matching
// broadcast bus in Countdown.Events.
package countdown
