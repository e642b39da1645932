package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/session"
	"github.com/rbright/murmur/internal/speecherr"
	"github.com/rbright/murmur/internal/transcript"
)

const defaultFlushTimeout = 3 * time.Second

// NativeOptions configures the streaming recognizer path.
type NativeOptions struct {
	// Language is the requested tag; "" resolves the ambient locale.
	Language      string
	TrailingSpace bool
	// FlushTimeout bounds how long stop waits for pending final results.
	FlushTimeout time.Duration
	Devices      *DeviceTracker
}

// Native drives a recognition.Orchestrator as a session.Transcriber.
type Native struct {
	orch   *recognition.Orchestrator
	opts   NativeOptions
	logger *slog.Logger
}

// NewNative wraps orch.
func NewNative(orch *recognition.Orchestrator, opts NativeOptions, logger *slog.Logger) *Native {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = defaultFlushTimeout
	}
	return &Native{orch: orch, opts: opts, logger: logger}
}

// Supported reports whether the recognizer platform was available at startup.
func (n *Native) Supported() bool {
	return n != nil && n.orch != nil && n.orch.IsSupported()
}

// Start negotiates a language and returns once the recognizer is listening.
func (n *Native) Start(ctx context.Context) error {
	if !n.Supported() {
		return session.ErrPipelineUnavailable
	}
	if n.orch.Start(ctx, n.opts.Language) {
		snap := n.orch.Snapshot()
		n.logger.Info("native recognition listening", "language", snap.Language, "session_id", snap.SessionID)
		return nil
	}
	return snapshotErr(n.orch.Snapshot())
}

// StopAndTranscribe flushes the recognizer and returns the final text. An
// error that ended the session is reported only when no final text survived.
func (n *Native) StopAndTranscribe(ctx context.Context) (session.StopResult, error) {
	if n.orch == nil {
		return session.StopResult{}, session.ErrPipelineUnavailable
	}
	started := time.Now()

	flushCtx, cancel := context.WithTimeout(ctx, n.opts.FlushTimeout)
	defer cancel()
	n.orch.Finish(flushCtx)

	snap := n.orch.Snapshot()
	result := session.StopResult{
		Transcript:  transcript.Assemble([]string{snap.FinalText}, transcript.Options{TrailingSpace: n.opts.TrailingSpace}),
		Path:        PathNative,
		Language:    snap.Language,
		AudioDevice: n.opts.Devices.Describe(),
		Latency:     time.Since(started),
	}
	if result.Transcript == "" && snap.Err != nil && snap.ErrorCode != speecherr.CodeAborted {
		return result, snap.Err
	}
	return result, nil
}

// Cancel ends the session and discards any text.
func (n *Native) Cancel(context.Context) error {
	if n.orch != nil {
		n.orch.Stop()
	}
	return nil
}

// Done is closed when the recognizer session ends.
func (n *Native) Done() <-chan struct{} {
	if n.orch == nil {
		return nil
	}
	return n.orch.Done()
}

// Progress reports the live recognizer state.
func (n *Native) Progress() session.Progress {
	if n.orch == nil {
		return session.Progress{Path: PathNative}
	}
	return ProgressOf(n.orch.Snapshot())
}

// ProgressOf converts an orchestrator snapshot for status and indicators.
func ProgressOf(s recognition.Snapshot) session.Progress {
	return session.Progress{
		Path:      PathNative,
		Listening: s.IsListening,
		Interim:   s.Interim,
		Final:     s.FinalText,
		Language:  s.Language,
		Code:      s.ErrorCode,
	}
}

func snapshotErr(s recognition.Snapshot) error {
	if s.Rejected != nil {
		return s.Rejected
	}
	if s.Err != nil {
		return s.Err
	}
	return speecherr.New(speecherr.CodeOther, "recognition did not start")
}
