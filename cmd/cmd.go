// cmd contains shared helpers for the command line binaries.
package cmd

import "log/slog"

// GetOrPanic unwraps the value or panics on error.
func GetOrPanic[T any](v T, err error) T {
	OrPanic(err)

	return v
}

// OrPanic panics on error.
func OrPanic(err error) {
	if err != nil {
		slog.Error("fatal", "err", err)
		panic(err)
	}
}
