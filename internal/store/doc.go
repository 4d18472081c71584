// Package store persists the offline work backlog in SQLite and is the only
// component allowed to touch durable storage.
//
// It holds three datasets: a read-through entity cache with lazy TTL
// eviction, the media upload queue, and the local mutation queue, plus the
// last-sync timestamp. The sync engine treats this database as the single
// source of truth and recomputes pending counts from it after every change
// rather than trusting in-memory tallies across restarts.
//
// Schema changes are applied through the embedded, versioned migrations in
// migrations/; add a new numbered file rather than editing an applied one.
package store
