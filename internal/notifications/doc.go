// Package notifications delivers push notifications about sync outcomes via
// ntfy. When no topic is configured every notification is a silent no-op.
package notifications
