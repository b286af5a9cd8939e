package logger

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// New returns a tinted console logger. Verbose enables debug level.
func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(t.Format("2006-01-02T15:04:05.000Z07:00"))
			}
			return a
		},
	}))
}

// NewTest returns a debug-level logger for tests.
func NewTest() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}
