package config

// Config is the tickd configuration file (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Loop      LoopConfig      `json:"loop"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Countdowns are created when the host starts and are reconciled by
	// name on every reload.
	Countdowns []CountdownConfig `json:"countdowns,omitempty"`

	Diag    DiagConfig     `json:"diag,omitempty"`
	Journal *JournalConfig `json:"journal,omitempty"`
	Systemd SystemdConfig  `json:"systemd,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoopConfig controls the host tick loop.
//
// Defaults (when fields are omitted/zero):
//   - frame_rate: 60
//   - fixed_rate: 50 (negative disables the fixed lane)
//   - max_fixed_steps: 5
//   - max_delta: "250ms"
type LoopConfig struct {
	FrameRate     int    `json:"frame_rate,omitempty"`
	FixedRate     int    `json:"fixed_rate,omitempty"`
	MaxFixedSteps int    `json:"max_fixed_steps,omitempty"`
	MaxDelta      string `json:"max_delta,omitempty"`

	// StartPaused starts the loop in paused mode, where only countdowns with
	// run_while_paused advance.
	StartPaused bool `json:"start_paused,omitempty"`

	// Timezone for countdown schedules (IANA name). Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

// SchedulerConfig tunes the job scheduler.
type SchedulerConfig struct {
	// Prewarm pre-allocates this many records of every job kind.
	Prewarm int `json:"prewarm,omitempty"`

	// Budget logs a rate-limited warning when one tick dispatch takes longer.
	// Empty or "0s" disables the check.
	Budget string `json:"budget,omitempty"`
}

// CountdownConfig declares a named countdown.
//
// Example:
//
//	countdowns:
//	  - name: rotate
//	    duration: 30s
//	    schedule: "0 */5 * * * *"
type CountdownConfig struct {
	Name     string `json:"name"`
	Duration string `json:"duration"`

	// Scale and Offset install duration modifiers (scale first).
	Scale  float64 `json:"scale,omitempty"`
	Offset string  `json:"offset,omitempty"`

	RunWhilePaused bool `json:"run_while_paused,omitempty"`

	// Schedule is a cron spec (seconds field optional) that restarts the
	// countdown, starting it if it is inactive.
	Schedule string `json:"schedule,omitempty"`

	// Autostart starts the countdown as soon as it is created.
	Autostart bool `json:"autostart,omitempty"`
}

// DiagConfig controls the optional diagnostics HTTP server (pprof, metrics,
// loop snapshot).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}

// JournalConfig controls the diagnostics journal. Nil means disabled.
//
// Example:
//
//	"journal": { "driver": "file", "path": "./tickd_journal" }
type JournalConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	FlushEvery  string `json:"flush_every,omitempty"`  // snapshot interval, default 10s
	Retention   string `json:"retention,omitempty"`    // sqlite pruning, 0 keeps everything
}

// SystemdConfig controls sd_notify integration. Both are no-ops when the
// process is not started by systemd.
type SystemdConfig struct {
	Notify   bool `json:"notify,omitempty"`
	Watchdog bool `json:"watchdog,omitempty"`
}
