package logx

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limited wraps a Logger with a token bucket so hot paths (per-frame warnings,
// panicking listeners) cannot flood the sinks. Lines over the limit are counted
// and the count is attached to the next line that gets through.
type Limited struct {
	log Logger
	lim *rate.Limiter

	suppressed atomic.Uint64
}

// NewLimited allows roughly one line per every, with the given burst.
func NewLimited(log Logger, every time.Duration, burst int) *Limited {
	if burst <= 0 {
		burst = 1
	}
	lim := rate.Inf
	if every > 0 {
		lim = rate.Every(every)
	}
	return &Limited{log: log, lim: rate.NewLimiter(lim, burst)}
}

// Suppressed returns the number of lines dropped so far.
func (l *Limited) Suppressed() uint64 {
	if l == nil {
		return 0
	}
	return l.suppressed.Load()
}

func (l *Limited) Warn(msg string, fields ...Field)  { l.emit(LevelWarn, msg, fields) }
func (l *Limited) Error(msg string, fields ...Field) { l.emit(LevelError, msg, fields) }

func (l *Limited) emit(level Level, msg string, fields []Field) {
	if l == nil {
		return
	}
	if !l.lim.Allow() {
		l.suppressed.Add(1)
		return
	}
	if n := l.suppressed.Swap(0); n > 0 {
		fields = append(fields, Uint64("suppressed", n))
	}
	switch level {
	case LevelError:
		l.log.Error(msg, fields...)
	default:
		l.log.Warn(msg, fields...)
	}
}
