package broadcast

import (
	"fmt"
	"runtime/debug"
	"time"

	logx "tickjob/pkg/logx"
)

const initialCapacity = 4

// Liveness is implemented by listener owners that can be destroyed
// independently of the bus (see Bus.ClearInvalid).
type Liveness interface {
	Alive() bool
}

// Listener is a registered callback. Listeners are identified by pointer,
// which is what Remove and AddUnique compare.
type Listener[T any] struct {
	fn    func(T)
	owner Liveness
}

// NewListener wraps fn. owner may be nil, in which case the listener is
// always considered live.
func NewListener[T any](fn func(T), owner Liveness) *Listener[T] {
	if fn == nil {
		panic("broadcast: nil listener func")
	}
	return &Listener[T]{fn: fn, owner: owner}
}

func (l *Listener[T]) alive() bool {
	return l.owner == nil || l.owner.Alive()
}

// Bus is a multicast dispatcher for values of type T.
//
// Invariant: count <= len(items); growth doubles len(items). While a raise
// is in progress removals leave nil tombstones in items[:count]; they are
// compacted when the outermost raise returns.
type Bus[T any] struct {
	items      []*Listener[T]
	count      int
	raising    int
	tombstones int

	critical *logx.Limited
	name     string
}

// Option configures a Bus.
type Option func(*busOptions)

type busOptions struct {
	log   logx.Logger
	name  string
	every time.Duration
	burst int
}

// WithLogger sets the logger RaiseCritical reports recovered panics to.
func WithLogger(log logx.Logger) Option { return func(o *busOptions) { o.log = log } }

// WithName labels the bus in log lines.
func WithName(name string) Option { return func(o *busOptions) { o.name = name } }

// WithPanicLogRate bounds how often RaiseCritical logs recovered panics.
func WithPanicLogRate(every time.Duration, burst int) Option {
	return func(o *busOptions) {
		o.every = every
		o.burst = burst
	}
}

// New returns an empty bus. The zero Bus is also usable; it logs nothing.
func New[T any](opts ...Option) *Bus[T] {
	o := busOptions{every: time.Second, burst: 5}
	for _, fn := range opts {
		fn(&o)
	}
	b := &Bus[T]{name: o.name}
	if !o.log.IsZero() {
		b.critical = logx.NewLimited(o.log, o.every, o.burst)
	}
	return b
}

// Len returns the number of registered listeners.
func (b *Bus[T]) Len() int { return b.count - b.tombstones }

// Add registers fn and returns the listener that identifies it.
func (b *Bus[T]) Add(fn func(T)) *Listener[T] {
	l := NewListener(fn, nil)
	b.AddListener(l)
	return l
}

// AddListener appends l, even if it is already registered.
func (b *Bus[T]) AddListener(l *Listener[T]) {
	if l == nil {
		return
	}
	if b.count == len(b.items) {
		n := len(b.items) * 2
		if n == 0 {
			n = initialCapacity
		}
		grown := make([]*Listener[T], n)
		copy(grown, b.items[:b.count])
		b.items = grown
	}
	b.items[b.count] = l
	b.count++
}

// AddUnique appends l unless it is already registered. It reports whether l was added.
func (b *Bus[T]) AddUnique(l *Listener[T]) bool {
	if l == nil || b.indexOf(l) >= 0 {
		return false
	}
	b.AddListener(l)
	return true
}

// Remove drops the most recently added registration of l, shifting the
// remaining listeners so their relative order is preserved.
func (b *Bus[T]) Remove(l *Listener[T]) bool {
	i := b.indexOf(l)
	if i < 0 {
		return false
	}
	b.removeAt(i)
	return true
}

// Clear drops every listener but keeps the backing array.
func (b *Bus[T]) Clear() {
	for i := 0; i < b.count; i++ {
		b.items[i] = nil
	}
	if b.raising > 0 {
		b.tombstones = b.count
		return
	}
	b.count = 0
	b.tombstones = 0
}

// ClearInvalid removes listeners whose owner reports it is no longer alive
// and returns how many were removed.
func (b *Bus[T]) ClearInvalid() int {
	removed := 0
	for i := b.count - 1; i >= 0; i-- {
		if l := b.items[i]; l != nil && !l.alive() {
			b.removeAt(i)
			removed++
		}
	}
	return removed
}

// Raise invokes every listener, newest first. A panicking listener aborts the
// dispatch and the panic propagates to the caller.
//
// Listeners may add or remove listeners while being raised. A listener
// removed before it is reached is skipped; one added during the raise waits
// for the next one.
func (b *Bus[T]) Raise(v T) {
	b.raising++
	defer b.endRaise()
	for i := b.count - 1; i >= 0; i-- {
		if l := b.items[i]; l != nil {
			l.fn(v)
		}
	}
}

// RaiseCritical invokes every listener in the same order as Raise, recovering
// and logging each listener's panic independently. It returns the number of
// listeners that panicked.
func (b *Bus[T]) RaiseCritical(v T) int {
	b.raising++
	defer b.endRaise()
	failed := 0
	for i := b.count - 1; i >= 0; i-- {
		if l := b.items[i]; l != nil && b.invokeIsolated(l, v) {
			failed++
		}
	}
	return failed
}

func (b *Bus[T]) endRaise() {
	b.raising--
	if b.raising > 0 || b.tombstones == 0 {
		return
	}
	n := 0
	for i := 0; i < b.count; i++ {
		if l := b.items[i]; l != nil {
			b.items[n] = l
			n++
		}
	}
	for i := n; i < b.count; i++ {
		b.items[i] = nil
	}
	b.count = n
	b.tombstones = 0
}

func (b *Bus[T]) invokeIsolated(l *Listener[T], v T) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			b.critical.Error("broadcast listener panicked",
				logx.String("bus", b.name),
				logx.String("panic", fmt.Sprint(r)),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	l.fn(v)
	return false
}

func (b *Bus[T]) indexOf(l *Listener[T]) int {
	if l == nil {
		return -1
	}
	for i := b.count - 1; i >= 0; i-- {
		if b.items[i] == l {
			return i
		}
	}
	return -1
}

func (b *Bus[T]) removeAt(i int) {
	if b.raising > 0 {
		b.items[i] = nil
		b.tombstones++
		return
	}
	copy(b.items[i:b.count-1], b.items[i+1:b.count])
	b.count--
	b.items[b.count] = nil
}
