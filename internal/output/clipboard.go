// Package output applies transcript commit side effects.
package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/config"
)

const clipboardTimeout = 2 * time.Second

// Committer copies transcripts to the clipboard and optionally echoes them.
type Committer struct {
	clipboard config.CommandConfig
	echo      io.Writer
	logger    *slog.Logger
}

// NewCommitter constructs a committer. echo may be nil.
func NewCommitter(clipboard config.CommandConfig, echo io.Writer, logger *slog.Logger) *Committer {
	return &Committer{clipboard: clipboard, echo: echo, logger: logger}
}

// Commit writes transcript text to the clipboard, then to echo. An echo
// failure is logged; the clipboard result decides the outcome.
func (c *Committer) Commit(ctx context.Context, transcript string) error {
	if transcript == "" {
		return nil
	}

	clipboardCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	if err := runCommandWithInput(clipboardCtx, c.clipboard.Argv, transcript); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}

	if c.echo != nil {
		if _, err := fmt.Fprintln(c.echo, strings.TrimRight(transcript, " ")); err != nil && c.logger != nil {
			c.logger.Warn("transcript echo failed", "error", err.Error())
		}
	}
	if c.logger != nil {
		c.logger.Info("transcript committed", "chars", len(transcript))
	}
	return nil
}

// runCommandWithInput executes argv with input on stdin. Stderr output is
// included in the returned error.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("run %s: %w (%s)", argv[0], err, msg)
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}
