// Package analytics records clicks and conversions against affiliate links
// and aggregates link performance into reports, dashboards, and daily
// snapshots.
//
// Earnings always use the commission rate frozen on the link when it was
// generated; later configuration changes never rewrite past earnings.
package analytics
