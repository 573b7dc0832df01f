package gitgraft

import "log/slog"

// logger is the package level logger, defaults to [slog.Default].
var logger = slog.Default()

// SetLogger replaces the package level logger. Passing nil resets it to
// [slog.Default].
func SetLogger(l *slog.Logger) {
	if l == nil {
		logger = slog.Default()
		return
	}

	logger = l
}
