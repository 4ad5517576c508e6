// Package store persists products, affiliate links, delivery records, click
// events, and daily snapshots in a single SQLite database.
//
// The delivery_queue table is the only source of truth for whether a post has
// been sent. Status writes are conditional on the record's current status so
// a record leaves dispatching exactly once, and completing a delivery sets the
// product's posted flag in the same transaction.
//
// Schema changes bump queueSchemaVersion; an existing database with another
// version is rejected with ErrSchemaMismatch rather than migrated.
package store
