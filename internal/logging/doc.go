// Package logging provides structured, rotating file logging for the
// indexing daemon, built on log/slog.
package logging
