// Package tick implements the active-entry registry shared by the job
// scheduler and the countdown registry.
//
// Dispatch walks entries in reverse registration order with the bound captured
// once per dispatch. Entries unregistered during a dispatch are tombstoned and
// compacted (order preserved) when the dispatch ends; entries registered during
// a dispatch are appended and first visited on the next one. Together this
// gives at-most-once delivery per dispatch without snapshotting the list.
package tick
