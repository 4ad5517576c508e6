// Package config loads, normalizes, and validates dealflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for adapter
// credentials such as TELEGRAM_BOT_TOKEN and BITLY_TOKEN. The Config type
// centralizes every knob the daemon and CLI need: storage paths, scheduler
// timing, per-platform cadence, affiliate identifiers, and commission rates.
//
// A Config is built once at process start and passed into each component
// constructor. Nothing in the repository reads settings from package state.
package config
