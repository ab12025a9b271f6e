// Package logging sets up upstairsd's structured logger: log/slog writing
// JSON to a lumberjack-rotated file (and, in development, also to
// stderr).
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the daemon logger.
type Options struct {
	Path       string
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Also       io.Writer // additional sink, e.g. os.Stderr during development
}

// New builds the daemon's root logger. An empty Path logs to stderr only.
func New(opts Options) *slog.Logger {
	var w io.Writer
	if opts.Path == "" {
		w = os.Stderr
	} else {
		lj := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    firstNonZero(opts.MaxSizeMB, 100),
			MaxBackups: firstNonZero(opts.MaxBackups, 5),
			MaxAge:     firstNonZero(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		if opts.Also != nil {
			w = io.MultiWriter(lj, opts.Also)
		} else {
			w = lj
		}
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	return slog.New(handler)
}

func firstNonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a
// slog.Level, defaulting to Info on anything unrecognized.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
