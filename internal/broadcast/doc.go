// Package broadcast provides a minimal synchronous multicast dispatcher.
//
// A Bus keeps its listeners in a growable backing array and raises without
// allocating once the array has grown to its steady-state size. Listeners are
// invoked in reverse insertion order.
//
// Two dispatch entry points exist on purpose:
//   - Raise lets a panicking listener abort the remaining dispatch.
//   - RaiseCritical recovers and logs each listener's panic so the rest still run.
//
// A Bus is not safe for concurrent use; it belongs to the tick goroutine.
package broadcast
