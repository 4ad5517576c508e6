// Package scheduler turns ingested products into timed delivery records and
// dispatches due records to platform adapters.
//
// A tick selects due records, claims each one (pending or retrying to
// dispatching) before calling its adapter, and records exactly one outcome.
// Ticks never overlap. A store failure aborts the tick and is returned;
// outcomes already recorded stay recorded and the remaining records are
// picked up by the next tick.
package scheduler
