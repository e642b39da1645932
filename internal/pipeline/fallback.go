package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/capture"
	"github.com/rbright/murmur/internal/langtag"
	"github.com/rbright/murmur/internal/session"
	"github.com/rbright/murmur/internal/transcript"
)

// Uploader transcribes one recorded blob.
type Uploader interface {
	Transcribe(ctx context.Context, blob *capture.Blob, language, locale string) (string, error)
}

// Recorder is the capture surface the fallback path needs.
type Recorder interface {
	Start(context.Context) bool
	Stop() *capture.Blob
	Close()
	Recording() bool
	Err() error
}

// FallbackOptions configures the record-then-upload path.
type FallbackOptions struct {
	// Language is sent as the upload's language field; "" resolves the ambient locale.
	Language      string
	TrailingSpace bool
	// DumpAudio writes every recording under $XDG_STATE_HOME/murmur/debug.
	DumpAudio bool
	Devices   *DeviceTracker
}

// Fallback records the microphone and uploads the result on stop.
type Fallback struct {
	recorder Recorder
	uploader Uploader
	opts     FallbackOptions
	logger   *slog.Logger
}

// NewFallback wires recorder to uploader.
func NewFallback(recorder Recorder, uploader Uploader, opts FallbackOptions, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fallback{recorder: recorder, uploader: uploader, opts: opts, logger: logger}
}

// Start opens the microphone.
func (f *Fallback) Start(ctx context.Context) error {
	if f.recorder == nil || f.uploader == nil {
		return session.ErrPipelineUnavailable
	}
	if f.recorder.Start(ctx) {
		f.logger.Info("fallback recording started")
		return nil
	}
	if err := f.recorder.Err(); err != nil {
		return err
	}
	return session.ErrPipelineUnavailable
}

// StopAndTranscribe ends the recording and uploads it.
func (f *Fallback) StopAndTranscribe(ctx context.Context) (session.StopResult, error) {
	if f.recorder == nil || f.uploader == nil {
		return session.StopResult{}, session.ErrPipelineUnavailable
	}
	started := time.Now()

	blob := f.recorder.Stop()
	result := session.StopResult{
		Path:        PathFallback,
		Language:    langtag.Ambient(f.opts.Language),
		AudioDevice: f.opts.Devices.Describe(),
	}
	if blob == nil {
		if err := f.recorder.Err(); err != nil {
			return result, err
		}
		return result, session.ErrPipelineUnavailable
	}
	result.BytesCaptured = int64(len(blob.Data))
	f.dump(blob)

	text, err := f.uploader.Transcribe(ctx, blob, result.Language, langtag.Ambient(""))
	result.Latency = time.Since(started)
	if err != nil {
		return result, fmt.Errorf("transcribe recording: %w", err)
	}
	result.Transcript = transcript.Assemble([]string{text}, transcript.Options{TrailingSpace: f.opts.TrailingSpace})
	return result, nil
}

// Cancel releases the microphone and drops the recording.
func (f *Fallback) Cancel(context.Context) error {
	if f.recorder != nil {
		f.recorder.Close()
	}
	return nil
}

// Progress reports whether the recorder holds the microphone.
func (f *Fallback) Progress() session.Progress {
	p := session.Progress{Path: PathFallback, Language: langtag.Ambient(f.opts.Language)}
	if f.recorder != nil {
		p.Listening = f.recorder.Recording()
	}
	return p
}

// dump writes blob to the debug directory when enabled.
func (f *Fallback) dump(blob *capture.Blob) {
	if !f.opts.DumpAudio || len(blob.Data) == 0 {
		return
	}
	file, err := createDebugFile("audio", blob.Extension())
	if err != nil {
		f.logger.Warn("unable to create debug audio dump", "error", err)
		return
	}
	defer file.Close()
	if _, err := file.Write(blob.Data); err != nil {
		f.logger.Warn("unable to write debug audio dump", "error", err)
	}
}

// createDebugFile creates timestamped debug artifacts under state/murmur/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "murmur", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// resolveStateDir returns XDG_STATE_HOME fallback path for debug artifacts.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
