// Package logging builds the slog loggers used across dealsync and carries
// the attribute helpers and standardized field names that keep structured
// output consistent between the daemon, the sync engine, and the CLI.
package logging
