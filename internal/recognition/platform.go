package recognition

import "context"

// Result is one recognized segment inside a result event.
type Result struct {
	Transcript string
	Final      bool
}

// ResultEvent carries the recognizer's result list; only entries from
// ResultIndex onward are new.
type ResultEvent struct {
	ResultIndex int
	Results     []Result
}

// Handlers receives recognizer callbacks. Any callback may run on any goroutine.
type Handlers struct {
	OnStart  func()
	OnResult func(ResultEvent)
	// OnError receives the raw signal name (for example "language-not-supported")
	// and optional detail text.
	OnError func(signal, detail string)
	OnEnd   func()
}

// RecognizerOptions configures one recognizer instance.
type RecognizerOptions struct {
	Language   string
	Interim    bool
	Continuous bool
}

// Recognizer is one platform recognition attempt. Start may fail synchronously;
// Stop and Abort may be called in any state.
type Recognizer interface {
	Start() error
	Stop() error
	Abort() error
}

// Platform is the host's speech recognition capability.
type Platform interface {
	Available() bool
	SecureContext() bool
	NewRecognizer(RecognizerOptions, Handlers) (Recognizer, error)
}

// Preflighter acquires and immediately releases the microphone so permission
// or device contention can clear before a retry.
type Preflighter interface {
	Preflight(ctx context.Context) error
}

// PreflightFunc adapts a function to the Preflighter interface.
type PreflightFunc func(context.Context) error

func (f PreflightFunc) Preflight(ctx context.Context) error {
	return f(ctx)
}

// Observer is notified after every session change.
type Observer interface {
	Changed(Snapshot)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Changed(s Snapshot) {
	f(s)
}

type noopObserver struct{}

func (noopObserver) Changed(Snapshot) {}
