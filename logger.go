package hostwire

import "log/slog"

// NopLogger returns a logger that drops every record.
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
