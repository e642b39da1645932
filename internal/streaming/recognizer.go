package streaming

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/speecherr"
)

var closeStreamMessage = []byte(`{"type":"CloseStream"}`)

// serverMessage is the union of Results and Error frames sent by the service.
type serverMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type recognizer struct {
	platform *Platform
	opts     recognition.RecognizerOptions
	h        recognition.Handlers

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	started  bool
	stopping bool
	aborted  bool
	conn     *websocket.Conn
	mic      audio.Stream
}

func newRecognizer(p *Platform, opts recognition.RecognizerOptions, h recognition.Handlers) *recognizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &recognizer{platform: p, opts: opts, h: h, ctx: ctx, cancel: cancel}
}

// Start performs the handshake and opens the microphone. Failures are returned
// synchronously as errors carrying a recognition signal.
func (r *recognizer) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return &SignalError{Name: speecherr.SignalInvalidStateError, Message: "recognition has already started"}
	}
	if r.aborted {
		r.mu.Unlock()
		return &SignalError{Name: speecherr.SignalAborted}
	}
	r.started = true
	r.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(r.ctx, r.platform.cfg.HandshakeTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, r.platform.buildURL(r.opts), &websocket.DialOptions{
		HTTPHeader: r.platform.headers(),
		HTTPClient: r.platform.cfg.HTTPClient,
	})
	if err != nil {
		if r.ctx.Err() != nil {
			return &SignalError{Name: speecherr.SignalAborted}
		}
		return classifyHandshake(resp, err)
	}

	mic, err := r.platform.source.Open(r.ctx)
	if err != nil {
		_ = conn.CloseNow()
		return err
	}

	r.mu.Lock()
	if r.aborted {
		r.mu.Unlock()
		_ = mic.Stop()
		_ = conn.CloseNow()
		return &SignalError{Name: speecherr.SignalAborted}
	}
	r.conn = conn
	r.mic = mic
	r.mu.Unlock()

	go r.pump(conn, mic)
	go r.read(conn)
	return nil
}

// Stop ends capture and asks the service to flush; OnEnd fires once the
// service closes or the grace period elapses.
func (r *recognizer) Stop() error {
	r.mu.Lock()
	if !r.started || r.aborted || r.stopping {
		r.mu.Unlock()
		return nil
	}
	r.stopping = true
	mic := r.mic
	r.mu.Unlock()

	if mic != nil {
		_ = mic.Stop()
	}
	time.AfterFunc(r.platform.cfg.StopGrace, r.cancel)
	return nil
}

// Abort tears everything down immediately and suppresses further callbacks.
func (r *recognizer) Abort() error {
	r.mu.Lock()
	if r.aborted {
		r.mu.Unlock()
		return nil
	}
	r.aborted = true
	conn, mic := r.conn, r.mic
	r.mu.Unlock()

	r.cancel()
	if mic != nil {
		_ = mic.Stop()
	}
	if conn != nil {
		_ = conn.CloseNow()
	}
	return nil
}

func (r *recognizer) isAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

// pump forwards microphone PCM until capture stops, then requests a flush.
func (r *recognizer) pump(conn *websocket.Conn, mic audio.Stream) {
	for chunk := range mic.Chunks() {
		if err := conn.Write(r.ctx, websocket.MessageBinary, chunk); err != nil {
			return
		}
	}
	_ = conn.Write(r.ctx, websocket.MessageText, closeStreamMessage)
}

func (r *recognizer) read(conn *websocket.Conn) {
	if r.isAborted() {
		return
	}
	if r.h.OnStart != nil {
		r.h.OnStart()
	}

	for {
		_, data, err := conn.Read(r.ctx)
		if err != nil {
			r.finish(err)
			return
		}
		r.dispatch(data)
	}
}

func (r *recognizer) dispatch(data []byte) {
	if r.isAborted() {
		return
	}

	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		r.platform.logger.Debug("streaming: ignoring malformed frame", "error", err)
		return
	}

	switch msg.Type {
	case "Results":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		text := msg.Channel.Alternatives[0].Transcript
		if strings.TrimSpace(text) == "" || (!msg.IsFinal && !r.opts.Interim) {
			return
		}
		if r.h.OnResult != nil {
			r.h.OnResult(recognition.ResultEvent{
				Results: []recognition.Result{{Transcript: text, Final: msg.IsFinal}},
			})
		}
		if msg.IsFinal && !r.opts.Continuous {
			_ = r.Stop()
		}
	case "Error":
		if r.h.OnError != nil {
			r.h.OnError(msg.Error, msg.Message)
		}
	}
}

// finish reports how the connection ended and releases the microphone.
func (r *recognizer) finish(err error) {
	r.mu.Lock()
	aborted, stopping := r.aborted, r.stopping
	conn, mic := r.conn, r.mic
	r.mu.Unlock()

	if mic != nil {
		_ = mic.Stop()
	}
	if conn != nil {
		_ = conn.CloseNow()
	}
	if aborted {
		return
	}

	status := websocket.CloseStatus(err)
	if !stopping && status != websocket.StatusNormalClosure && r.h.OnError != nil {
		r.h.OnError(speecherr.SignalNetwork, err.Error())
	}
	if r.h.OnEnd != nil {
		r.h.OnEnd()
	}
}

// classifyHandshake maps a failed upgrade onto a recognition signal.
func classifyHandshake(resp *http.Response, err error) error {
	if resp == nil {
		return &SignalError{Name: speecherr.SignalNetwork, Message: err.Error()}
	}

	var body string
	if resp.Body != nil {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		body = strings.TrimSpace(string(raw))
	}

	name := speecherr.SignalNetwork
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if speecherr.Classify(body) == speecherr.CodeLanguageUnsupported {
			name = speecherr.SignalLanguageUnsupported
		} else {
			name = "bad-request"
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		name = speecherr.SignalNotAllowed
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		name = speecherr.SignalBusy
	}

	if body == "" {
		body = err.Error()
	}
	return &SignalError{Name: name, Message: body, Status: resp.StatusCode}
}
