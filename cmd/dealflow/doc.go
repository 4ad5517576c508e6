// Package main hosts the dealflow CLI entrypoint and command graph.
//
// Commands that mutate the catalog or read reports open the SQLite database
// directly; SQLite WAL mode lets them run beside a live daemon. Queue ticks
// run locally only when no daemon holds the lock, otherwise they are handed to
// the daemon over its HTTP API so a single process dispatches deliveries.
package main
