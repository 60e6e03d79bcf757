package countdown

import (
	"reflect"
	"time"
)

// Modifier rewrites a countdown's running duration total when it is started
// or restarted. Modifiers run in the order they were added and each sees the
// previous one's result.
type Modifier interface {
	ModifyDuration(total time.Duration) time.Duration
}

// ModifierFunc adapts a function to Modifier. Func values are not comparable,
// so a ModifierFunc can only be dropped through ClearModifiers.
type ModifierFunc func(total time.Duration) time.Duration

func (f ModifierFunc) ModifyDuration(total time.Duration) time.Duration { return f(total) }

type scale float64

func (s scale) ModifyDuration(total time.Duration) time.Duration {
	return time.Duration(float64(total) * float64(s))
}

// Scale multiplies the total by f.
func Scale(f float64) Modifier { return scale(f) }

type offset time.Duration

func (o offset) ModifyDuration(total time.Duration) time.Duration { return total + time.Duration(o) }

// Offset adds d (which may be negative) to the total.
func Offset(d time.Duration) Modifier { return offset(d) }

type clamp struct{ lo, hi time.Duration }

func (c clamp) ModifyDuration(total time.Duration) time.Duration {
	if total < c.lo {
		return c.lo
	}
	if c.hi > 0 && total > c.hi {
		return c.hi
	}
	return total
}

// Clamp bounds the total to [lo, hi]. A zero hi leaves it unbounded above.
func Clamp(lo, hi time.Duration) Modifier { return clamp{lo: lo, hi: hi} }

func applyModifiers(d time.Duration, mods []Modifier) time.Duration {
	for _, m := range mods {
		d = m.ModifyDuration(d)
	}
	return d
}

func sameModifier(a, b Modifier) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
