// Package logs reads the daemon log file for `dealflow logs`.
//
// Tail returns the last lines with bounded memory and the byte offset where
// reading stopped. Follow polls from that offset and emits appended lines
// until its context ends, restarting from the top when the file is truncated
// or replaced.
package logs
