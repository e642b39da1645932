package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/capture"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/indicator"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/observe"
	"github.com/rbright/murmur/internal/output"
	"github.com/rbright/murmur/internal/pipeline"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/session"
	"github.com/rbright/murmur/internal/streaming"
	"github.com/rbright/murmur/internal/stt"
)

const (
	acquireLivenessTimeout = 180 * time.Millisecond
	acquireRetries         = 8
)

// dictation is the fully wired owner-side object graph for one dictation.
type dictation struct {
	controller *session.Controller
	notifier   *indicator.Notifier
	orch       *recognition.Orchestrator
	recorder   *capture.Recorder
	interim    *interimRelay
	metrics    *observe.Run
}

func newDictation(cfg config.Config, language string, r Runner, logger *slog.Logger) *dictation {
	run, err := observe.NewRun()
	if err != nil {
		logger.Warn("run metrics unavailable", "error", err.Error())
	}
	var metrics *observe.Metrics
	if run != nil {
		metrics = run.Metrics
	}

	devices := &pipeline.DeviceTracker{}
	mic := audio.Microphone{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback, OnSelect: devices.Observe}

	platform := streaming.New(streaming.Config{
		Endpoint:         cfg.Recognizer.Endpoint,
		Token:            cfg.Recognizer.Token,
		Model:            cfg.Recognizer.Model,
		HandshakeTimeout: cfg.Recognizer.HandshakeTimeout,
		StopGrace:        cfg.Recognizer.StopGrace,
	}, mic.Source(), logger)

	interim := newInterimRelay()
	orch := recognition.New(platform, recognition.Options{
		Logger:          logger,
		Preflight:       recognition.PreflightFunc(mic.Preflight),
		Observer:        interim,
		Metrics:         metrics,
		Languages:       cfg.LanguagePolicy(),
		DefaultLanguage: cfg.Language.Default,
		Interim:         cfg.Recognizer.Interim,
		Continuous:      cfg.Recognizer.Continuous,
	})

	native := pipeline.NewNative(orch, pipeline.NativeOptions{
		Language:      language,
		TrailingSpace: cfg.Transcript.TrailingSpace,
		FlushTimeout:  cfg.Recognizer.StopGrace,
		Devices:       devices,
	}, logger)

	recorder := capture.New(mic.Source(), capture.Options{
		Logger:     logger,
		Metrics:    metrics,
		Candidates: cfg.Audio.Encodings,
	})
	uploader := stt.NewClient(stt.Config{
		BackendOrigin: cfg.STT.BackendOrigin,
		APIBaseURL:    cfg.STT.APIBaseURL,
		Token:         cfg.STT.Token,
		Timeout:       cfg.STT.Timeout,
	}, logger, metrics)
	fallback := pipeline.NewFallback(recorder, uploader, pipeline.FallbackOptions{
		Language:      language,
		TrailingSpace: cfg.Transcript.TrailingSpace,
		DumpAudio:     cfg.Debug.AudioDump,
		Devices:       devices,
	}, logger)

	transcriber := pipeline.NewAuto(native, fallback)
	notifier := indicator.NewNotifier(cfg.Indicator, logger)
	committer := output.NewCommitter(cfg.Clipboard, r.Stdout, logger)

	logger.Debug("dictation wired",
		"path", transcriber.Preferred(),
		"recognizer_secure", platform.SecureContext(),
		"stt_endpoint", uploader.Endpoint(),
	)

	return &dictation{
		controller: session.NewController(logger, transcriber, committer, notifier),
		notifier:   notifier,
		orch:       orch,
		recorder:   recorder,
		interim:    interim,
		metrics:    run,
	}
}

// close releases the recognizer and microphone, waits for in-flight cues,
// and logs run totals.
func (d *dictation) close(logger *slog.Logger) {
	if err := d.orch.Close(); err != nil {
		logger.Warn("close recognizer", "error", err.Error())
	}
	d.recorder.Close()
	d.notifier.Wait()

	if d.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if summary, err := d.metrics.Summary(ctx); err == nil {
		logger.Debug("dictation metrics", observe.LogAttrs(summary)...)
	}
	_ = d.metrics.Shutdown(ctx)
}

func (r Runner) commandDictate(ctx context.Context, inv invocation) int {
	logger := inv.logger
	socketPath := ipc.SocketPath()
	if code, handled := r.forwardToggle(ctx, socketPath); handled {
		return code
	}

	owner, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		LivenessTimeout: acquireLivenessTimeout,
		Retries:         acquireRetries,
		OnStale: func(_ context.Context, path string) {
			logger.Warn("removed stale control socket", "path", path)
		},
	})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			code, _ := r.forwardToggle(ctx, socketPath)
			return code
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = owner.Close() }()

	d := newDictation(inv.loaded.Config, inv.language, r, logger)
	defer d.close(logger)

	group, groupCtx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(groupCtx)
	defer stopServer()

	var result session.Result
	group.Go(func() error {
		return ipc.Serve(serverCtx, owner, d.controller)
	})
	group.Go(func() error {
		d.interim.run(serverCtx, d.notifier)
		return nil
	})
	group.Go(func() error {
		defer stopServer()
		result = d.controller.Run(groupCtx)
		return nil
	})
	if err := group.Wait(); err != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		return 1
	}

	logSessionResult(logger, result)

	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	return 0
}

// forwardToggle hands the request to a live owner. handled is false when no owner answered.
func (r Runner) forwardToggle(ctx context.Context, socketPath string) (code int, handled bool) {
	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandToggle)
	if !handled {
		return 0, false
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1, true
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0, true
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"phase", result.Phase,
		"path", result.Path,
		"language", result.Language,
		"cancelled", result.Cancelled,
		"auto_stopped", result.AutoStopped,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"bytes_captured", result.BytesCaptured,
		"transcript_length", len(result.Transcript),
		"latency_ms", result.Latency.Milliseconds(),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "code", result.Code, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}
