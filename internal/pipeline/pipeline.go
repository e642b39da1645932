// Package pipeline adapts the two voice input paths to session.Transcriber:
// the native streaming recognizer and the record-then-upload fallback.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/session"
	"github.com/rbright/murmur/internal/speecherr"
)

// Path names reported in session results and status responses.
const (
	PathNative   = "native"
	PathFallback = "fallback"
)

// Auto picks a path on every Start: native when the recognizer platform is
// supported, the fallback otherwise.
type Auto struct {
	native   *Native
	fallback *Fallback

	mu     sync.Mutex
	active session.Transcriber
}

// NewAuto combines the two paths. Either may be nil.
func NewAuto(native *Native, fallback *Fallback) *Auto {
	return &Auto{native: native, fallback: fallback}
}

// Start starts the preferred path. A native start refused for an insecure
// recognizer endpoint drops to the fallback path.
func (a *Auto) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.native != nil && a.native.Supported() {
		err := a.native.Start(ctx)
		if err == nil {
			a.active = a.native
			return nil
		}
		if a.fallback == nil || speecherr.CodeOf(err) != speecherr.CodeInsecureContext {
			a.active = a.native
			return err
		}
	}
	if a.fallback == nil {
		a.active = nil
		return session.ErrPipelineUnavailable
	}
	a.active = a.fallback
	return a.fallback.Start(ctx)
}

// StopAndTranscribe finishes the path chosen by the last Start.
func (a *Auto) StopAndTranscribe(ctx context.Context) (session.StopResult, error) {
	active := a.current()
	if active == nil {
		return session.StopResult{}, session.ErrPipelineUnavailable
	}
	return active.StopAndTranscribe(ctx)
}

// Cancel discards the path chosen by the last Start.
func (a *Auto) Cancel(ctx context.Context) error {
	active := a.current()
	if active == nil {
		return nil
	}
	return active.Cancel(ctx)
}

// Done is never closed for the fallback path, which only ends on request.
func (a *Auto) Done() <-chan struct{} {
	if live, ok := a.current().(session.Live); ok {
		return live.Done()
	}
	return nil
}

// Progress reports the active path, or which path the next Start would take.
func (a *Auto) Progress() session.Progress {
	if reporter, ok := a.current().(interface{ Progress() session.Progress }); ok {
		return reporter.Progress()
	}
	return session.Progress{Path: a.Preferred()}
}

// Preferred names the path Start would try first, or "" when none is wired.
func (a *Auto) Preferred() string {
	switch {
	case a.native != nil && a.native.Supported():
		return PathNative
	case a.fallback != nil:
		return PathFallback
	default:
		return ""
	}
}

func (a *Auto) current() session.Transcriber {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// DeviceTracker remembers the last microphone selection for session results.
type DeviceTracker struct {
	mu        sync.Mutex
	selection audio.Selection
}

// Observe records selection; it is shaped for audio.Microphone.OnSelect.
func (d *DeviceTracker) Observe(selection audio.Selection) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.selection = selection
	d.mu.Unlock()
}

// Describe formats the last selected device, or "" when none was selected.
func (d *DeviceTracker) Describe() string {
	if d == nil {
		return ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return describeDevice(d.selection.Device)
}

// describeDevice formats device metadata for logs/session results.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}
