// Package recognition drives a platform recognizer through language negotiation
// and one listening session at a time.
package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/langtag"
	"github.com/rbright/murmur/internal/observe"
	"github.com/rbright/murmur/internal/speecherr"
	"github.com/rbright/murmur/internal/transcript"
)

const component = "recognition"

// Options configures an Orchestrator. Every field is optional.
type Options struct {
	Logger    *slog.Logger
	Preflight Preflighter
	Observer  Observer
	Metrics   *observe.Metrics

	// Languages controls candidate chain construction.
	Languages langtag.Policy
	// DefaultLanguage is used when Start is called without a tag; the process
	// locale is consulted when it is empty too.
	DefaultLanguage string

	Interim    bool
	Continuous bool
}

// Snapshot is a consistent copy of the session fields.
type Snapshot struct {
	SessionID   string
	State       fsm.State
	IsListening bool
	Interim     string
	FinalText   string
	HasFinal    bool
	Err         *speecherr.Error
	ErrorCode   speecherr.Code
	// Rejected is the error of the most recent Start refused while another
	// session was active. The active session's Err is left as it was.
	Rejected *speecherr.Error
	Language string
	Cursor   int
	Chain    []string
}

// Orchestrator owns at most one recognition session.
type Orchestrator struct {
	platform   Platform
	logger     *slog.Logger
	preflight  Preflighter
	observer   Observer
	metrics    *observe.Metrics
	policy     langtag.Policy
	defLang    string
	interimOn  bool
	continuous bool
	supported  bool

	mu        sync.Mutex
	state     fsm.State
	gen       uint64
	attempt   uint64
	rec       Recognizer
	settle    *settlement
	done      chan struct{}
	sessionID string
	chain     langtag.Chain
	cursor    int
	interim   string
	final     string
	hasFinal  bool
	err       *speecherr.Error
	rejected  *speecherr.Error
	language  string
}

// New probes platform once and returns an idle orchestrator.
func New(platform Platform, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	policy := opts.Languages
	if policy.Variants == nil && policy.Fallback == "" {
		policy = langtag.DefaultPolicy()
	}

	done := make(chan struct{})
	close(done)

	return &Orchestrator{
		platform:   platform,
		logger:     logger,
		preflight:  opts.Preflight,
		observer:   observer,
		metrics:    opts.Metrics,
		policy:     policy,
		defLang:    opts.DefaultLanguage,
		interimOn:  opts.Interim,
		continuous: opts.Continuous,
		supported:  platform != nil && platform.Available(),
		state:      fsm.StateIdle,
		done:       done,
	}
}

// IsSupported reports whether the platform exposed a recognizer at construction.
func (o *Orchestrator) IsSupported() bool {
	return o.supported
}

// Start negotiates a language and blocks until the session is listening (true)
// or has failed (false). Failures are reported through Snapshot, never returned.
// Cancelling ctx before the session settles behaves like Stop.
func (o *Orchestrator) Start(ctx context.Context, lang string) bool {
	secure := o.supported && o.platform.SecureContext()

	o.mu.Lock()
	if fsm.Active(o.state) {
		o.rejected = speecherr.New(speecherr.CodeRecognizerBusy, "")
		o.mu.Unlock()
		o.metrics.RecordError(ctx, component, string(speecherr.CodeRecognizerBusy))
		o.notify()
		return false
	}
	o.rejected = nil
	if !o.supported || !secure {
		code := speecherr.CodeUnsupported
		if o.supported {
			code = speecherr.CodeInsecureContext
		}
		o.err = speecherr.New(code, "")
		o.mu.Unlock()
		o.metrics.RecordError(ctx, component, string(code))
		o.notify()
		return false
	}

	requested := strings.TrimSpace(lang)
	if requested == "" {
		requested = langtag.Ambient(o.defLang)
	}

	o.gen++
	gen := o.gen
	o.apply(fsm.EventStart)
	o.sessionID = uuid.NewString()
	o.chain = langtag.Build(requested, o.policy)
	o.cursor = 0
	o.interim, o.final, o.hasFinal = "", "", false
	o.err = nil
	o.language = ""
	o.settle = newSettlement()
	o.done = make(chan struct{})
	settle := o.settle
	chain := o.chain.Tags()
	sessionID := o.sessionID
	o.mu.Unlock()

	o.metrics.SessionStarted(ctx, component)
	o.logger.Debug("recognition starting", "session_id", sessionID, "requested", requested, "chain", chain)
	o.notify()

	stopWatch := context.AfterFunc(ctx, func() { o.stop(gen) })
	defer stopWatch()

	return o.run(ctx, gen, settle)
}

// run walks the candidate chain until a recognizer accepts or the chain fails.
func (o *Orchestrator) run(ctx context.Context, gen uint64, settle *settlement) bool {
	preflighted := false
	for {
		o.mu.Lock()
		if o.gen != gen {
			o.mu.Unlock()
			return settle.wait()
		}
		if o.cursor >= o.chain.Len() {
			o.mu.Unlock()
			o.fail(gen, speecherr.CodeLanguageUnsupported, "")
			return settle.wait()
		}
		lang := o.chain.At(o.cursor)
		o.attempt++
		attempt := o.attempt
		o.mu.Unlock()

		o.metrics.RecordAttempt(ctx, lang)
		outcomes := make(chan outcome, 4)
		opts := RecognizerOptions{Language: lang, Interim: o.interimOn, Continuous: o.continuous}

		synchronous, err := o.attemptStart(gen, opts, o.handlers(gen, attempt, lang, outcomes))
		if err == nil {
			select {
			case <-settle.done:
				return settle.ok
			case out := <-outcomes:
				if out.kind == outcomeEnded {
					o.fail(gen, speecherr.CodeAborted, "recognizer ended before starting")
					return settle.wait()
				}
				err = out.err()
			}
		}

		o.mu.Lock()
		if o.gen != gen {
			o.mu.Unlock()
			return settle.wait()
		}
		rec := o.rec
		o.rec = nil
		o.mu.Unlock()
		halt(rec)

		classified := speecherr.Wrap(err)
		code := classified.Code
		if code == speecherr.CodeOther && synchronous {
			code = speecherr.CodeLanguageUnsupported
		}

		switch {
		case speecherr.IsLanguageRejection(code):
			o.mu.Lock()
			if o.gen != gen {
				o.mu.Unlock()
				return settle.wait()
			}
			o.cursor++
			o.mu.Unlock()
			o.metrics.RecordFallback(ctx, lang)
			o.logger.Debug("recognition language rejected", "language", lang, "error", err)
			o.notify()
		case synchronous && !preflighted && o.preflight != nil && speecherr.IsPreflightRetryable(code):
			preflighted = true
			o.logger.Debug("recognition preflight", "language", lang, "code", code)
			if perr := o.preflight.Preflight(ctx); perr != nil {
				failed := speecherr.Wrap(perr)
				o.fail(gen, failed.Code, failed.Raw)
				return settle.wait()
			}
		default:
			o.fail(gen, code, classified.Raw)
			return settle.wait()
		}
	}
}

// attemptStart creates and starts one recognizer. synchronous reports whether
// err came from the platform call itself rather than a callback.
func (o *Orchestrator) attemptStart(gen uint64, opts RecognizerOptions, handlers Handlers) (synchronous bool, err error) {
	rec, err := o.platform.NewRecognizer(opts, handlers)
	if err != nil {
		return true, err
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		halt(rec)
		return true, speecherr.New(speecherr.CodeAborted, "")
	}
	o.rec = rec
	o.mu.Unlock()

	if err := safeStart(rec); err != nil {
		return true, err
	}
	return false, nil
}

func (o *Orchestrator) handlers(gen, attempt uint64, lang string, outcomes chan<- outcome) Handlers {
	current := func() bool { return o.gen == gen && o.attempt == attempt }

	return Handlers{
		OnStart: func() {
			o.mu.Lock()
			if !current() || o.state != fsm.StateStarting {
				o.mu.Unlock()
				return
			}
			o.apply(fsm.EventAccept)
			o.language = lang
			o.interim = ""
			o.err = nil
			settle := o.settle
			o.mu.Unlock()

			settle.resolve(true)
			o.metrics.RecordOutcome(context.Background(), string(fsm.StateListening))
			o.logger.Info("recognition listening", "language", lang)
			o.notify()
		},
		OnResult: func(ev ResultEvent) {
			o.mu.Lock()
			if !current() || o.state != fsm.StateListening {
				o.mu.Unlock()
				return
			}
			o.applyResults(ev)
			o.mu.Unlock()
			o.notify()
		},
		OnError: func(signal, detail string) {
			o.mu.Lock()
			if !current() {
				o.mu.Unlock()
				return
			}
			state := o.state
			o.mu.Unlock()

			switch state {
			case fsm.StateStarting:
				deliver(outcomes, outcome{kind: outcomeFailed, signal: signal, detail: detail})
			case fsm.StateListening:
				code, raw := classifySignal(signal, detail)
				o.fail(gen, code, raw)
			}
		},
		OnEnd: func() {
			o.mu.Lock()
			if !current() {
				o.mu.Unlock()
				return
			}
			state := o.state
			o.mu.Unlock()

			switch state {
			case fsm.StateStarting:
				deliver(outcomes, outcome{kind: outcomeEnded})
			case fsm.StateListening:
				o.finish(gen)
			}
		},
	}
}

// applyResults replaces the interim text and appends finals. Caller holds o.mu.
func (o *Orchestrator) applyResults(ev ResultEvent) {
	start := ev.ResultIndex
	if start < 0 {
		start = 0
	}

	var interim, finals []string
	for i := start; i < len(ev.Results); i++ {
		if ev.Results[i].Final {
			finals = append(finals, ev.Results[i].Transcript)
		} else {
			interim = append(interim, ev.Results[i].Transcript)
		}
	}

	o.interim = transcript.Concat(interim)
	if len(finals) > 0 {
		o.final = transcript.AppendFinal(o.final, transcript.Concat(finals))
		o.hasFinal = true
	}
}

// Stop ends any active session. It is safe in every state and never panics.
func (o *Orchestrator) Stop() {
	o.stop(0)
}

// Finish asks a listening recognizer to flush pending results and waits for it
// to end. When ctx expires first, or the session is still starting, it falls
// back to Stop.
func (o *Orchestrator) Finish(ctx context.Context) {
	o.mu.Lock()
	if o.state != fsm.StateListening || o.rec == nil {
		o.mu.Unlock()
		o.Stop()
		return
	}
	rec, done, gen := o.rec, o.done, o.gen
	o.mu.Unlock()

	func() {
		defer func() { _ = recover() }()
		_ = rec.Stop()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Debug("recognition flush timed out")
		o.stop(gen)
	}
}

// Close releases the active session, if any.
func (o *Orchestrator) Close() error {
	o.Stop()
	return nil
}

// stop ends the session when gen matches (0 matches any generation).
func (o *Orchestrator) stop(gen uint64) {
	o.mu.Lock()
	if !fsm.Active(o.state) || (gen != 0 && o.gen != gen) {
		o.mu.Unlock()
		return
	}
	if o.state == fsm.StateStarting {
		o.err = speecherr.New(speecherr.CodeAborted, "")
	}
	rec := o.endLocked(fsm.EventStop)
	settle := o.settle
	o.mu.Unlock()

	halt(rec)
	settle.resolve(false)
	o.logger.Debug("recognition stopped")
	o.notify()
}

// fail ends the gen session with a classified error.
func (o *Orchestrator) fail(gen uint64, code speecherr.Code, raw string) {
	o.mu.Lock()
	if o.gen != gen || !fsm.Active(o.state) {
		o.mu.Unlock()
		return
	}
	wasStarting := o.state == fsm.StateStarting
	o.err = speecherr.New(code, raw)
	rec := o.endLocked(fsm.EventFail)
	settle := o.settle
	o.mu.Unlock()

	halt(rec)
	settle.resolve(false)

	ctx := context.Background()
	o.metrics.RecordError(ctx, component, string(code))
	if wasStarting {
		o.metrics.RecordOutcome(ctx, string(code))
	}
	o.logger.Warn("recognition failed", "code", code, "raw", raw, "during_start", wasStarting)
	o.notify()
}

// finish ends a listening session the recognizer closed on its own.
func (o *Orchestrator) finish(gen uint64) {
	o.mu.Lock()
	if o.gen != gen || o.state != fsm.StateListening {
		o.mu.Unlock()
		return
	}
	rec := o.endLocked(fsm.EventFinish)
	o.mu.Unlock()

	halt(rec)
	o.logger.Debug("recognition ended")
	o.notify()
}

// endLocked moves an active session through ended back to idle, invalidates its
// callbacks, and returns the recognizer to release. Caller holds o.mu.
func (o *Orchestrator) endLocked(event fsm.Event) Recognizer {
	o.apply(event)
	o.apply(fsm.EventReset)
	o.gen++
	o.interim = ""
	rec := o.rec
	o.rec = nil
	close(o.done)
	o.metrics.SessionEnded(context.Background(), component)
	return rec
}

func (o *Orchestrator) apply(event fsm.Event) {
	next, err := fsm.Transition(o.state, event)
	if err != nil {
		o.logger.Error("recognition state", "error", err)
		return
	}
	o.state = next
}

// Snapshot returns a copy of the current session fields.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Snapshot{
		SessionID:   o.sessionID,
		State:       o.state,
		IsListening: o.state == fsm.StateListening,
		Interim:     o.interim,
		FinalText:   o.final,
		HasFinal:    o.hasFinal,
		Err:         o.err,
		Rejected:    o.rejected,
		Language:    o.language,
		Cursor:      o.cursor,
		Chain:       o.chain.Tags(),
	}
	if o.err != nil {
		s.ErrorCode = o.err.Code
	}
	return s
}

// Done is closed when the current session leaves starting or listening.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

func (o *Orchestrator) notify() {
	o.observer.Changed(o.Snapshot())
}

type settlement struct {
	once sync.Once
	done chan struct{}
	ok   bool
}

func newSettlement() *settlement {
	return &settlement{done: make(chan struct{})}
}

func (s *settlement) resolve(ok bool) {
	s.once.Do(func() {
		s.ok = ok
		close(s.done)
	})
}

func (s *settlement) wait() bool {
	<-s.done
	return s.ok
}

type outcomeKind int

const (
	outcomeFailed outcomeKind = iota + 1
	outcomeEnded
)

type outcome struct {
	kind   outcomeKind
	signal string
	detail string
}

func (o outcome) err() error {
	code, raw := classifySignal(o.signal, o.detail)
	return speecherr.New(code, raw)
}

func deliver(ch chan<- outcome, out outcome) {
	select {
	case ch <- out:
	default:
	}
}

func classifySignal(signal, detail string) (speecherr.Code, string) {
	code := speecherr.Classify(signal)
	if code == speecherr.CodeOther && strings.TrimSpace(detail) != "" {
		code = speecherr.Classify(detail)
	}
	raw := strings.TrimSpace(signal)
	if d := strings.TrimSpace(detail); d != "" {
		if raw == "" {
			raw = d
		} else {
			raw += ": " + d
		}
	}
	return code, raw
}

func safeStart(rec Recognizer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recognizer start panicked: %v", r)
		}
	}()
	return rec.Start()
}

// halt stops then aborts rec, swallowing errors and panics from both.
func halt(rec Recognizer) {
	if rec == nil {
		return
	}
	func() {
		defer func() { _ = recover() }()
		_ = rec.Stop()
	}()
	func() {
		defer func() { _ = recover() }()
		_ = rec.Abort()
	}()
}
