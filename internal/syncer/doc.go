// Package syncer drains the durable queues against the backend. One pass
// replays pending uploads first, then pending mutations, strictly in
// enqueue order, retrying each item with exponential backoff up to a fixed
// ceiling and recording durable failures in a bounded error ring.
package syncer
