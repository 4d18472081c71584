// Package daemon binds the connectivity monitor, sync orchestrator, and
// durable store into a single lifecycle with flock-based locking to prevent
// multiple instances from draining the same queues.
package daemon
