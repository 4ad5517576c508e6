// Package daemon runs the long-lived dealflow process.
//
// It holds a flock-based single-instance lock and a pid file, runs the
// scheduler loop and the analytics cron jobs, and serves the HTTP API:
// JSON operator endpoints under /api, the short-link redirect under /go, and
// Prometheus metrics under /metrics. Process wiring (logger, store, adapters)
// lives in package daemonrun; this package only coordinates lifecycle.
package daemon
