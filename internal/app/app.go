// Package app dispatches murmur commands and owns the dictation process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/cli"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/doctor"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/langtag"
	"github.com/rbright/murmur/internal/logging"
	"github.com/rbright/murmur/internal/pipeline"
	"github.com/rbright/murmur/internal/stt"
	"github.com/rbright/murmur/internal/version"
)

const (
	binaryName     = "murmur"
	forwardTimeout = 220 * time.Millisecond
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// invocation is everything a command needs after flags and config are resolved.
type invocation struct {
	parsed   cli.Parsed
	loaded   config.Loaded
	language string
	logger   *slog.Logger
}

type commandFunc func(Runner, context.Context, invocation) int

var dispatch = map[cli.Command]commandFunc{
	cli.CommandDoctor:     Runner.commandDoctor,
	cli.CommandDevices:    func(r Runner, ctx context.Context, _ invocation) int { return r.commandDevices(ctx) },
	cli.CommandStatus:     func(r Runner, ctx context.Context, _ invocation) int { return r.commandStatus(ctx) },
	cli.CommandStop:       func(r Runner, ctx context.Context, _ invocation) int { return r.forwardOrFail(ctx, ipc.CommandStop) },
	cli.CommandCancel:     func(r Runner, ctx context.Context, _ invocation) int { return r.forwardOrFail(ctx, ipc.CommandCancel) },
	cli.CommandTranscribe: Runner.commandTranscribe,
	cli.CommandDictate:    Runner.commandDictate,
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return Runner{Stdout: stdout, Stderr: stderr}.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	switch {
	case err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n\n%s", err, cli.HelpText(binaryName))
		return 2
	case parsed.ShowHelp:
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	case parsed.Command == cli.CommandVersion:
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	run, ok := dispatch[parsed.Command]
	if !ok {
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	inv, err := r.prepare(parsed, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", inv.loaded.Path,
		"language", inv.language,
		"overrides", inv.loaded.Overrides,
		"log", logRuntime.Path,
	)
	return run(r, ctx, inv)
}

// prepare loads config, surfaces its warnings, and picks the session language.
func (r Runner) prepare(parsed cli.Parsed, logger *slog.Logger) (invocation, error) {
	loaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		return invocation{}, err
	}
	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	language := parsed.Language
	if language == "" {
		language = loaded.Config.Language.Default
	}
	return invocation{parsed: parsed, loaded: loaded, language: language, logger: logger}, nil
}

func (r Runner) commandDoctor(ctx context.Context, inv invocation) int {
	report := doctor.Run(ctx, inv.loaded)
	fmt.Fprintln(r.Stdout, report.String())
	if report.OK() {
		return 0
	}
	return 1
}

// commandDevices prints one line per input source; "*" marks the default.
func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	yesNo := map[bool]string{true: "yes", false: "no"}
	for _, device := range devices {
		mark := " "
		if device.Default {
			mark = "*"
		}
		fmt.Fprintf(r.Stdout, "%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			mark, device.ID, device.Description, device.State, yesNo[device.Available], yesNo[device.Muted])
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	resp, handled, err := tryForward(ctx, ipc.SocketPath(), ipc.CommandStatus)
	switch {
	case !handled:
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	case err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, formatStatus(resp))
	return 0
}

// formatStatus prints the phase followed by whatever live detail the owner reported.
func formatStatus(resp ipc.Response) string {
	state := resp.State
	if state == "" {
		state = "idle"
	}
	parts := []string{state}
	for _, field := range []struct{ key, value string }{
		{"path", resp.Path},
		{"language", resp.Language},
		{"error", resp.ErrorCode},
	} {
		if field.value != "" {
			parts = append(parts, field.key+"="+field.value)
		}
	}
	if text := strings.TrimSpace(resp.Final + " " + resp.Interim); text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", text))
	}
	return strings.Join(parts, " ")
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	resp, handled, err := tryForward(ctx, ipc.SocketPath(), command)
	switch {
	case !handled:
		fmt.Fprintln(r.Stderr, "error: no active murmur session")
		return 1
	case err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandTranscribe(ctx context.Context, inv invocation) int {
	sttCfg := inv.loaded.Config.STT
	client := stt.NewClient(stt.Config{
		BackendOrigin: sttCfg.BackendOrigin,
		APIBaseURL:    sttCfg.APIBaseURL,
		Token:         sttCfg.Token,
		Timeout:       sttCfg.Timeout,
	}, inv.logger, nil)

	path := inv.parsed.File
	text, err := pipeline.TranscribeFile(ctx, client, path, langtag.Ambient(inv.language), langtag.Ambient(""))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		inv.logger.Error("transcribe file failed", "path", path, "error", err.Error())
		return 1
	}
	if text == "" {
		fmt.Fprintln(r.Stderr, "error: no speech detected")
		return 1
	}
	fmt.Fprintln(r.Stdout, text)
	return 0
}

// tryForward sends command to a running owner. handled is false when nobody
// is listening on socketPath; the path itself is never touched.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, forwardTimeout)
	switch {
	case err == nil:
		return resp, true, resp.Err()
	case isSocketMissing(err), isConnectionRefused(err):
		return ipc.Response{}, false, nil
	default:
		return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
	}
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	return err != nil && errors.Is(err, syscall.ECONNREFUSED)
}
