package session

import (
	"context"
	"errors"
	"time"

	"github.com/rbright/murmur/internal/speecherr"
)

var (
	// ErrPipelineUnavailable indicates no usable recognition path is wired.
	ErrPipelineUnavailable = errors.New("no voice input path available")
	// ErrEmptyTranscript indicates stop completed but no usable speech was recognized.
	ErrEmptyTranscript = errors.New("no speech recognized; check microphone input or mute state")
)

// StopResult is the transcriber output consumed by the session controller.
type StopResult struct {
	Transcript    string
	Path          string
	Language      string
	AudioDevice   string
	BytesCaptured int64
	Latency       time.Duration
}

// Transcriber abstracts one voice input path.
type Transcriber interface {
	Start(context.Context) error
	StopAndTranscribe(context.Context) (StopResult, error)
	Cancel(context.Context) error
}

// Progress is the in-flight view of a live recognition path.
type Progress struct {
	Path      string
	Listening bool
	Interim   string
	Final     string
	Language  string
	Code      speecherr.Code
}

// Live is implemented by transcribers whose session can end on its own.
type Live interface {
	// Done is closed when the recognizer stops listening without being asked.
	Done() <-chan struct{}
	Progress() Progress
}

// PlaceholderTranscriber is a no-op placeholder used in tests and unwired runs.
type PlaceholderTranscriber struct{}

func (PlaceholderTranscriber) Start(context.Context) error {
	return nil
}

func (PlaceholderTranscriber) StopAndTranscribe(context.Context) (StopResult, error) {
	return StopResult{}, ErrPipelineUnavailable
}

func (PlaceholderTranscriber) Cancel(context.Context) error {
	return nil
}

// Committer dispatches a transcript when a session stops successfully.
type Committer interface {
	Commit(context.Context, string) error
}

// CommitFunc adapts a function to the Committer interface.
type CommitFunc func(context.Context, string) error

func (f CommitFunc) Commit(ctx context.Context, transcript string) error {
	return f(ctx, transcript)
}
