// Package preflight validates the environment before the daemon starts:
// directory permissions, backend reachability, and notification delivery.
package preflight
