package app

import (
	"context"

	"github.com/rbright/murmur/internal/pipeline"
	"github.com/rbright/murmur/internal/recognition"
)

// interimDisplay is the indicator surface that renders live recognizer text.
type interimDisplay interface {
	ShowInterim(context.Context, string)
}

// interimRelay moves recognizer snapshots off the recognizer's callback
// goroutine. Only the latest pending text is kept.
type interimRelay struct {
	updates chan string
}

func newInterimRelay() *interimRelay {
	return &interimRelay{updates: make(chan string, 1)}
}

// Changed implements recognition.Observer. Snapshots taken after listening
// ends are dropped so a late update cannot reopen a hidden notification.
func (r *interimRelay) Changed(s recognition.Snapshot) {
	if !s.IsListening {
		return
	}
	text := pipeline.ProgressOf(s).Interim
	for {
		select {
		case r.updates <- text:
			return
		default:
		}
		select {
		case <-r.updates:
		default:
		}
	}
}

func (r *interimRelay) run(ctx context.Context, display interimDisplay) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-r.updates:
			display.ShowInterim(ctx, text)
		}
	}
}
