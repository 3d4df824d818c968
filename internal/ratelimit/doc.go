// Package ratelimit implements fixed-window request limits keyed by
// "route:user".
//
// Three backends share the Limiter interface: Memory for a single process,
// SQLite (through the store package) when several processes share one
// database file, and Valkey when several hosts share the limit.
package ratelimit
