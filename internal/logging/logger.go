// Package logging configures runtime JSONL logging output.
package logging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LevelEnv overrides the default info level (debug, info, warn, error).
const LevelEnv = "MURMUR_LOG_LEVEL"

const (
	logFile = "log.jsonl"
	// rotateAt is the size past which the log is moved to log.jsonl.1 at startup.
	rotateAt = 4 << 20
)

// Runtime bundles the configured logger and its open file handle lifecycle.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	closer io.Closer
}

// Close closes the log file, if any.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New opens the JSONL log under the state directory, rotating it first when
// it has grown past rotateAt. Records carry the pid so overlapping CLI
// invocations can be told apart.
func New() (Runtime, error) {
	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, fmt.Errorf("create log dir: %w", err)
	}
	if err := rotate(path, rotateAt); err != nil {
		return Runtime{}, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, fmt.Errorf("open log: %w", err)
	}

	h := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: levelFromEnv()})
	return Runtime{Logger: slog.New(h).With("pid", os.Getpid()), Path: path, closer: f}, nil
}

// Discard returns a runtime whose logger drops every record.
func Discard() Runtime {
	return Runtime{Logger: slog.New(slog.DiscardHandler)}
}

// rotate keeps one previous generation: path moves to path.1 once it reaches limit.
func rotate(path string, limit int64) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat log: %w", err)
	case info.Size() < limit:
		return nil
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("rotate log: %w", err)
	}
	return nil
}

func levelFromEnv() slog.Level {
	var level slog.Level
	raw := strings.TrimSpace(os.Getenv(LevelEnv))
	if raw == "" || level.UnmarshalText([]byte(raw)) != nil {
		return slog.LevelInfo
	}
	return level
}

// resolveLogPath is $XDG_STATE_HOME/murmur/log.jsonl, or ~/.local/state when unset.
func resolveLogPath() (string, error) {
	state := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if state == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve log path: %w", err)
		}
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "murmur", logFile), nil
}
