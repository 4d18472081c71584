// Package mutation defines the closed set of offline write operations and
// the dispatcher that replays them against the backend in queue order.
package mutation
