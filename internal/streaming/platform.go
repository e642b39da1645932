// Package streaming implements the recognition platform over a streaming
// websocket speech service fed by live microphone PCM.
package streaming

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/recognition"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultStopGrace        = 3 * time.Second
)

// Config describes the streaming recognizer endpoint.
type Config struct {
	Endpoint         string
	Token            string
	Model            string
	HandshakeTimeout time.Duration
	// StopGrace bounds how long a graceful stop waits for the service to close.
	StopGrace  time.Duration
	HTTPClient *http.Client
}

// Platform creates websocket-backed recognizers.
type Platform struct {
	cfg      Config
	endpoint *url.URL
	source   audio.Source
	logger   *slog.Logger
}

// New validates nothing eagerly; an unusable endpoint simply makes Available false.
func New(cfg Config, source audio.Source, logger *slog.Logger) *Platform {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}

	p := &Platform{cfg: cfg, source: source, logger: logger}
	if u, err := url.Parse(strings.TrimSpace(cfg.Endpoint)); err == nil && (u.Scheme == "ws" || u.Scheme == "wss") && u.Host != "" {
		p.endpoint = u
	}
	return p
}

// Available reports whether an endpoint and a microphone source are configured.
func (p *Platform) Available() bool {
	return p.endpoint != nil && p.source != nil
}

// SecureContext reports whether audio leaves the machine only over TLS.
func (p *Platform) SecureContext() bool {
	if p.endpoint == nil {
		return false
	}
	if p.endpoint.Scheme == "wss" {
		return true
	}
	return isLoopback(p.endpoint.Hostname())
}

// NewRecognizer builds an unstarted recognizer for opts.
func (p *Platform) NewRecognizer(opts recognition.RecognizerOptions, h recognition.Handlers) (recognition.Recognizer, error) {
	if !p.Available() {
		return nil, &SignalError{Name: "recognizer-unavailable", Message: "streaming endpoint or microphone not configured"}
	}
	return newRecognizer(p, opts, h), nil
}

// buildURL returns the dial URL for one recognizer.
func (p *Platform) buildURL(opts recognition.RecognizerOptions) string {
	u := *p.endpoint
	q := u.Query()
	q.Set("language", opts.Language)
	q.Set("interim_results", strconv.FormatBool(opts.Interim))
	q.Set("sample_rate", strconv.Itoa(audio.SampleRate))
	q.Set("encoding", "linear16")
	q.Set("channels", strconv.Itoa(audio.Channels))
	q.Set("punctuate", "true")
	if p.cfg.Model != "" {
		q.Set("model", p.cfg.Model)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Platform) headers() http.Header {
	headers := http.Header{}
	if p.cfg.Token != "" {
		headers.Set("Authorization", "Token "+p.cfg.Token)
	}
	return headers
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// SignalError is a recognizer failure named by its recognition signal.
type SignalError struct {
	Name    string
	Message string
	Status  int
}

func (e *SignalError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Name, e.Status, e.Message)
	}
	return e.Name + ": " + e.Message
}

func (e *SignalError) Signal() string { return e.Name }
