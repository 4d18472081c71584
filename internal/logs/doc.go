// Package logs reads the daemon's log file for the `dealsync logs` command
// and the matching IPC call.
//
// Tail returns a resumable offset with every result, so a client can poll the
// file incrementally without re-reading it. Negative offsets select the last
// Limit lines; follow mode waits a bounded interval for new lines to land and
// honors context cancellation so a detached CLI never leaves a poller behind.
package logs
