// Package session coordinates one dictation: path start, stop or cancel, and commit.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/speecherr"
)

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

const hideTimeout = 800 * time.Millisecond

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	Phase         Phase
	Transcript    string
	Cancelled     bool
	AutoStopped   bool
	Err           error
	Code          speecherr.Code
	Path          string
	Language      string
	AudioDevice   string
	BytesCaptured int64
	Latency       time.Duration
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Indicator is the session-facing subset of user feedback.
type Indicator interface {
	ShowListening(context.Context)
	ShowTranscribing(context.Context)
	ShowError(context.Context, string)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

type noopIndicator struct{}

func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowTranscribing(context.Context)  {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) CueComplete(context.Context)       {}
func (noopIndicator) CueCancel(context.Context)         {}
func (noopIndicator) Hide(context.Context)              {}

// Controller owns the dictation phase and serializes stop/cancel requests.
type Controller struct {
	logger     *slog.Logger
	transcribe Transcriber
	commit     Committer
	indicator  Indicator

	mu    sync.RWMutex
	phase Phase

	actions chan action
}

// NewController constructs a controller with safe defaults for nil collaborators.
func NewController(
	logger *slog.Logger,
	transcriber Transcriber,
	committer Committer,
	indicator Indicator,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if transcriber == nil {
		transcriber = PlaceholderTranscriber{}
	}
	if committer == nil {
		committer = CommitFunc(func(context.Context, string) error { return nil })
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}

	return &Controller{
		logger:     logger,
		transcribe: transcriber,
		commit:     committer,
		indicator:  indicator,
		phase:      PhaseIdle,
		actions:    make(chan action, 1),
	}
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

func (c *Controller) transition(event phaseEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := nextPhase(c.phase, event)
	if err != nil {
		return err
	}
	c.phase = next
	return nil
}

// Run executes one dictation from start to stop, cancel, auto-stop, or failure.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.transition(eventStart); err != nil {
		return c.failed(result, err)
	}

	c.indicator.ShowListening(ctx)

	if err := c.transcribe.Start(ctx); err != nil {
		c.indicator.ShowError(ctx, userMessage(err))
		c.toErrorAndReset()
		return c.failed(c.withProgress(result), err)
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), hideTimeout)
		defer cancel()
		c.indicator.Hide(cleanupCtx)
	}()

	var ended <-chan struct{}
	if live, ok := c.transcribe.(Live); ok {
		ended = live.Done()
	}

	select {
	case <-ctx.Done():
		_ = c.transcribe.Cancel(context.Background())
		c.indicator.CueCancel(context.Background())
		c.indicator.ShowError(context.Background(), "Cancelled")
		c.toErrorAndReset()
		return c.failed(result, ctx.Err())
	case <-ended:
		result.AutoStopped = true
		c.logger.Debug("recognition ended on its own; finishing dictation")
		return c.stopAndCommit(ctx, result)
	case a := <-c.actions:
		switch a {
		case actionCancel:
			_ = c.transcribe.Cancel(context.Background())
			c.indicator.CueCancel(context.Background())
			_ = c.transition(eventCancel)
			result.Cancelled = true
			return c.finished(result)
		case actionStop:
			return c.stopAndCommit(ctx, result)
		default:
			c.toErrorAndReset()
			return c.failed(result, fmt.Errorf("unknown action %d", a))
		}
	}
}

// stopAndCommit collects the transcript and dispatches it.
func (c *Controller) stopAndCommit(ctx context.Context, result Result) Result {
	if err := c.transition(eventStop); err != nil {
		c.toErrorAndReset()
		return c.failed(result, err)
	}
	c.indicator.ShowTranscribing(ctx)

	stopResult, err := c.transcribe.StopAndTranscribe(ctx)
	c.indicator.CueStop(context.Background())
	result = withStop(result, stopResult)
	if err != nil {
		c.indicator.ShowError(context.Background(), userMessage(err))
		c.toErrorAndReset()
		return c.failed(result, err)
	}

	if strings.TrimSpace(stopResult.Transcript) == "" {
		c.indicator.ShowError(context.Background(), speecherr.Message(speecherr.CodeNoSpeechDetected, ""))
		c.toErrorAndReset()
		result.Code = speecherr.CodeNoSpeechDetected
		return c.failed(result, ErrEmptyTranscript)
	}

	if err := c.commit.Commit(ctx, stopResult.Transcript); err != nil {
		c.indicator.ShowError(context.Background(), "Output dispatch failed")
		c.toErrorAndReset()
		return c.failed(result, err)
	}
	c.indicator.CueComplete(context.Background())

	if err := c.transition(eventTranscribed); err != nil {
		return c.failed(result, err)
	}
	return c.finished(result)
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		resp := ipc.Response{OK: true, State: string(c.Phase()), Message: "status"}
		if live, ok := c.transcribe.(Live); ok {
			progress := live.Progress()
			resp.Path = progress.Path
			resp.Language = progress.Language
			resp.Interim = progress.Interim
			resp.Final = progress.Final
			resp.ErrorCode = string(progress.Code)
		}
		return resp
	case ipc.CommandToggle:
		return c.requestStop("toggle")
	case ipc.CommandStop:
		return c.requestStop("stop")
	case ipc.CommandCancel:
		return c.requestCancel()
	default:
		return ipc.Response{OK: false, State: string(c.Phase()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) requestStop(source string) ipc.Response {
	phase := c.Phase()
	if phase == PhaseTranscribing {
		return ipc.Response{OK: false, State: string(phase), Error: "already transcribing"}
	}
	if phase != PhaseRecording {
		return ipc.Response{OK: false, State: string(phase), Error: fmt.Sprintf("cannot %s from state %s", source, phase)}
	}

	select {
	case c.actions <- actionStop:
		return ipc.Response{OK: true, State: string(phase), Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: string(phase), Message: "stop already requested"}
	}
}

func (c *Controller) requestCancel() ipc.Response {
	phase := c.Phase()
	if phase == PhaseTranscribing {
		return ipc.Response{OK: false, State: string(phase), Error: "cannot cancel while transcribing"}
	}
	if phase != PhaseRecording {
		return ipc.Response{OK: false, State: string(phase), Error: fmt.Sprintf("cannot cancel from state %s", phase)}
	}

	select {
	case c.actions <- actionCancel:
		return ipc.Response{OK: true, State: string(phase), Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: string(phase), Message: "cancel already requested"}
	}
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (c *Controller) toErrorAndReset() {
	_ = c.transition(eventFail)
	_ = c.transition(eventReset)
}

func (c *Controller) withProgress(result Result) Result {
	if live, ok := c.transcribe.(Live); ok {
		progress := live.Progress()
		result.Path = progress.Path
		result.Code = progress.Code
	}
	return result
}

func (c *Controller) failed(result Result, err error) Result {
	result.Err = err
	if result.Code == "" && err != nil && !errors.Is(err, ErrPipelineUnavailable) {
		result.Code = speecherr.FromError(err)
	}
	return c.finished(result)
}

func (c *Controller) finished(result Result) Result {
	result.Phase = c.Phase()
	result.FinishedAt = time.Now()
	return result
}

func withStop(result Result, stop StopResult) Result {
	result.Transcript = stop.Transcript
	if stop.Path != "" {
		result.Path = stop.Path
	}
	result.Language = stop.Language
	result.AudioDevice = stop.AudioDevice
	result.BytesCaptured = stop.BytesCaptured
	result.Latency = stop.Latency
	return result
}

// userMessage renders err in the shared voice input vocabulary.
func userMessage(err error) string {
	if errors.Is(err, ErrPipelineUnavailable) {
		return speecherr.Message(speecherr.CodeUnsupported, "")
	}
	return speecherr.Wrap(err).Error()
}

// IsPipelineUnavailable reports whether an error represents missing pipeline wiring.
func IsPipelineUnavailable(err error) bool {
	return errors.Is(err, ErrPipelineUnavailable)
}
