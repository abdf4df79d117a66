// Package logging assembles structured slog loggers and formatting helpers
// used across mimic services.
package logging
