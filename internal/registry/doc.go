// Package registry persists clone records and the per-owner content index in
// SQLite. Lifecycle moves are guarded UPDATE statements keyed on the current
// status, so concurrent writers cannot skip states or resurrect terminal
// records, and duplicate content uploads resolve through the unique index
// rather than application-level locking.
package registry
