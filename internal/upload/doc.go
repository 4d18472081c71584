// Package upload drives a queued media file through validation,
// compression, signed-URL transfer, and finalization, with bounded retries.
package upload
