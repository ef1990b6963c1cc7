// Package logging provides the slog backend shared by every
// subsystem, writing to stdout and optionally a rotating log file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogBackend creates subsystem loggers at a shared debug level.
type LogBackend struct {
	backend  *slog.Backend
	logRotor *rotator.Rotator
	level    slog.Level
}

// logWriter duplicates log output to stdout and the rotator.
type logWriter struct {
	b *LogBackend
}

func (w logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if w.b.logRotor != nil {
		w.b.logRotor.Write(p)
	}
	return len(p), nil
}

// NewLogBackend builds a backend at the given debug level. logFile may
// be empty to log to stdout only; otherwise it is rotated at 32 MiB
// keeping three rolls.
func NewLogBackend(logFile, debugLevel string) (*LogBackend, error) {
	level, ok := slog.LevelFromString(debugLevel)
	if !ok {
		return nil, fmt.Errorf("invalid debug level %q", debugLevel)
	}

	b := &LogBackend{level: level}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		r, err := rotator.New(logFile, 32*1024, false, 3)
		if err != nil {
			return nil, fmt.Errorf("create log rotator: %w", err)
		}
		b.logRotor = r
	}
	b.backend = slog.NewBackend(logWriter{b})
	return b, nil
}

// Logger returns a logger tagged with the given subsystem, set to the
// backend's debug level.
func (b *LogBackend) Logger(subsystem string) slog.Logger {
	logger := b.backend.Logger(subsystem)
	logger.SetLevel(b.level)
	return logger
}

// Close flushes and closes the log file rotator if one is in use.
func (b *LogBackend) Close() error {
	if b.logRotor != nil {
		return b.logRotor.Close()
	}
	return nil
}
