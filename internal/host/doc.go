// Package host owns the tick goroutine. It drives a job.Scheduler and a
// countdown.Registry from a wall-clock frame ticker and marshals every
// cross-goroutine request (cron triggers, config reloads, diagnostics) onto
// that goroutine through Post.
package host
