// Package catalog ingests deals into the store.
//
// Ingest validates a submitted product, generates affiliate links for each
// source URL, and inserts the product, its links, and its planned delivery
// records in a single transaction, so a product is never visible without its
// queue entries. Withdraw and Update change products after ingestion; both
// take effect at the next dispatch.
package catalog
