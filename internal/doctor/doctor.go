// Package doctor runs runtime readiness diagnostics for config, tools, audio, and recognition backends.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/indicator"
	"github.com/rbright/murmur/internal/streaming"
	"github.com/rbright/murmur/internal/stt"
	"golang.org/x/sync/errgroup"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report lists check results in the order they were declared.
type Report struct {
	Checks []Check
}

// OK reports whether every check passed.
func (r Report) OK() bool {
	return !slices.ContainsFunc(r.Checks, func(c Check) bool { return !c.Pass })
}

// String renders one "[OK] name: message" line per check.
func (r Report) String() string {
	lines := make([]string, 0, len(r.Checks))
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", status, check.Name, check.Message))
	}
	return strings.Join(lines, "\n")
}

// selectDevice is swapped in tests so reports do not depend on a live sound server.
var selectDevice = audio.SelectDevice

// maxParallelChecks bounds concurrent network and device lookups.
const maxParallelChecks = 4

type checkFunc func(context.Context) Check

// Run executes every applicable check for loaded. Slow checks (device
// selection, health, upload endpoint) run in parallel.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	plan := []checkFunc{
		func(context.Context) Check { return checkConfig(loaded) },
		func(context.Context) Check { return checkCommand(cfg.Clipboard.Argv, "clipboard_cmd") },
	}
	if cfg.Indicator.Enable {
		plan = append(plan, func(context.Context) Check { return checkBinary("busctl", "desktop notifications") })
	}
	if cfg.Indicator.SoundEnable {
		plan = append(plan, func(context.Context) Check { return checkCueFiles(cfg.Indicator) })
	}
	plan = append(plan,
		func(ctx context.Context) Check { return checkAudioSelection(ctx, cfg) },
		func(context.Context) Check { return checkRecognizer(cfg.Recognizer) },
	)
	if strings.TrimSpace(cfg.Recognizer.HealthAddr) != "" {
		plan = append(plan, func(ctx context.Context) Check { return checkRecognizerHealth(ctx, cfg.Recognizer.HealthAddr) })
	}
	plan = append(plan, func(ctx context.Context) Check { return checkSTT(ctx, cfg.STT) })

	checks := make([]Check, len(plan))
	var group errgroup.Group
	group.SetLimit(maxParallelChecks)
	for i, check := range plan {
		group.Go(func() error {
			checks[i] = check(ctx)
			return nil
		})
	}
	_ = group.Wait()
	return Report{Checks: checks}
}

func checkCueFiles(cfg config.IndicatorConfig) Check {
	if err := indicator.VerifyCueFiles(cfg); err != nil {
		return Check{Name: "indicator.sounds", Pass: false, Message: strings.ReplaceAll(err.Error(), "\n", "; ")}
	}
	return Check{Name: "indicator.sounds", Pass: true, Message: "cue files decode (unset cues use built-in tones)"}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("no file at %q; using defaults", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 && loaded.Exists {
		message = fmt.Sprintf("%s with %d warning(s)", message, n)
	}
	if len(loaded.Overrides) > 0 {
		message = fmt.Sprintf("%s; environment overrides %s", message, strings.Join(loaded.Overrides, ", "))
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := selectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkRecognizer reports which dictation path the endpoint configuration selects.
func checkRecognizer(cfg config.RecognizerConfig) Check {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return Check{Name: "recognizer", Pass: true, Message: "no streaming endpoint; dictation records and uploads"}
	}

	platform := streaming.New(streaming.Config{Endpoint: endpoint}, audio.Microphone{}.Source(), nil)
	if !platform.Available() {
		return Check{Name: "recognizer", Pass: false, Message: fmt.Sprintf("endpoint %q is not a ws:// or wss:// URL", endpoint)}
	}
	if !platform.SecureContext() {
		return Check{Name: "recognizer", Pass: true, Message: fmt.Sprintf("%s is not secure; dictation falls back to upload", endpoint)}
	}
	return Check{Name: "recognizer", Pass: true, Message: fmt.Sprintf("streaming via %s", endpoint)}
}

// checkSTT verifies the upload endpoint answers HTTP.
func checkSTT(ctx context.Context, cfg config.STTConfig) Check {
	client := stt.NewClient(stt.Config{
		BackendOrigin: cfg.BackendOrigin,
		APIBaseURL:    cfg.APIBaseURL,
		Token:         cfg.Token,
		Timeout:       probeTimeout,
	}, nil, nil)

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return Check{Name: "stt.endpoint", Pass: false, Message: err.Error()}
	}
	return Check{Name: "stt.endpoint", Pass: true, Message: fmt.Sprintf("reachable at %s", client.Endpoint())}
}
