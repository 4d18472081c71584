// Package connectivity tracks whether the machine can reach the backend,
// combining interface state, a reachability probe, and udev link events.
package connectivity
