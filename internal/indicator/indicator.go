// Package indicator handles desktop notifications and audio cue playback.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/config"
)

const (
	defaultAppName        = "murmur"
	defaultErrorTimeoutMS = 1200
	activeTimeoutMS       = 300000
	dispatchTimeout       = 400 * time.Millisecond
	maxInterimChars       = 160
)

// Notifier is the runtime indicator: replaceable desktop notifications plus
// synthesized or file-based audio cues.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu             sync.Mutex
	notificationID uint32
	summary        string
	body           string

	play    player
	soundMu sync.Mutex
	cues    sync.WaitGroup
}

// NewNotifier creates an indicator from config with messages in the ambient locale.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		play:     playPulse,
	}
}

// ShowListening signals recognition start and emits the start cue.
func (n *Notifier) ShowListening(ctx context.Context) {
	n.playCue(cueStart)
	n.show(ctx, n.messages.listening, "", urgencyNormal, activeTimeoutMS)
}

// ShowTranscribing signals the post-capture transcription state.
func (n *Notifier) ShowTranscribing(ctx context.Context) {
	n.show(ctx, n.messages.transcribing, "", urgencyLow, activeTimeoutMS)
}

// ShowInterim replaces the listening notification body with in-progress text.
// Unchanged text is not re-sent.
func (n *Notifier) ShowInterim(ctx context.Context, text string) {
	if !n.cfg.Enable || !n.cfg.Interim {
		return
	}
	text = clip(strings.TrimSpace(text), maxInterimChars)

	n.mu.Lock()
	unchanged := n.notificationID != 0 && n.summary == n.messages.listening && n.body == text
	n.mu.Unlock()
	if unchanged {
		return
	}
	n.show(ctx, n.messages.listening, text, urgencyNormal, activeTimeoutMS)
}

// ShowError displays an error-state message.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if text == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = defaultErrorTimeoutMS
	}
	n.show(ctx, text, "", urgencyCritical, timeout)
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

// CueComplete emits the successful-commit cue.
func (n *Notifier) CueComplete(context.Context) {
	n.playCue(cueComplete)
}

// CueCancel emits the cancel cue.
func (n *Notifier) CueCancel(context.Context) {
	n.playCue(cueCancel)
}

// Hide dismisses the active notification.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

// Wait blocks until queued audio cues finish playing.
func (n *Notifier) Wait() {
	n.cues.Wait()
}

func (n *Notifier) show(ctx context.Context, summary, body string, level urgency, timeoutMS int) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, summary, body, level, timeoutMS)
	})
}

// notify updates the current bubble in place, or opens one, and remembers
// what it shows.
func (n *Notifier) notify(ctx context.Context, summary, body string, level urgency, timeoutMS int) error {
	appName := strings.TrimSpace(n.cfg.AppName)
	if appName == "" {
		appName = defaultAppName
	}

	n.mu.Lock()
	msg := notification{
		app:       appName,
		replaces:  n.notificationID,
		summary:   summary,
		body:      body,
		urgency:   level,
		timeoutMS: timeoutMS,
	}
	n.mu.Unlock()

	id, err := desktopNotify(ctx, msg)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.notificationID, n.summary, n.body = id, summary, body
	n.mu.Unlock()
	return nil
}

// dismiss closes the current notification ID when present.
func (n *Notifier) dismiss(ctx context.Context) error {
	n.mu.Lock()
	id := n.notificationID
	n.notificationID = 0
	n.summary, n.body = "", ""
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), cueTimeout)
		defer cancel()
		if err := emitCue(ctx, kind, n.cfg, n.play); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return "…" + string(runes[len(runes)-limit+1:])
}
