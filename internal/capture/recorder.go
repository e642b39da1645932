// Package capture records microphone audio into a single blob for upload when
// no native recognizer is available.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/observe"
	"github.com/rbright/murmur/internal/speecherr"
)

const drainTimeout = 2 * time.Second

// Blob is a finished recording tagged with its media type.
type Blob struct {
	Data      []byte
	MediaType string
}

// Extension returns the file extension used when uploading b.
func (b *Blob) Extension() string {
	if b == nil {
		return "webm"
	}
	mediaType := strings.ToLower(b.MediaType)
	switch {
	case strings.Contains(mediaType, "webm"):
		return "webm"
	case strings.Contains(mediaType, "ogg"):
		return "ogg"
	case strings.Contains(mediaType, "mp4"):
		return "mp4"
	case strings.Contains(mediaType, "mpeg"), strings.Contains(mediaType, "mp3"):
		return "mp3"
	case strings.Contains(mediaType, "aac"):
		return "aac"
	case strings.Contains(mediaType, "wav"):
		return "wav"
	case strings.Contains(mediaType, "l16"):
		return "pcm"
	default:
		return "webm"
	}
}

// Options configures a Recorder. Zero values select defaults.
type Options struct {
	Logger     *slog.Logger
	Metrics    *observe.Metrics
	Encoders   Encoders
	Candidates []string
}

// Recorder owns at most one microphone stream and its PCM buffer.
type Recorder struct {
	source     audio.Source
	logger     *slog.Logger
	metrics    *observe.Metrics
	encoders   Encoders
	candidates []string

	mu        sync.Mutex
	stream    audio.Stream
	mediaType string
	pcm       *bytes.Buffer
	collected chan struct{}
	err       *speecherr.Error
}

// New builds an idle recorder reading from source.
func New(source audio.Source, opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	encoders := opts.Encoders
	if encoders == nil {
		encoders = DefaultEncoders()
	}
	candidates := opts.Candidates
	if len(candidates) == 0 {
		candidates = Candidates
	}
	return &Recorder{
		source:     source,
		logger:     logger,
		metrics:    opts.Metrics,
		encoders:   encoders,
		candidates: append([]string(nil), candidates...),
	}
}

// Start acquires the microphone and begins buffering. It is a no-op while
// recording. Failures are classified into Error and reported as false.
func (r *Recorder) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		return true
	}
	r.err = nil

	if r.source == nil {
		r.failLocked(ctx, speecherr.New(speecherr.CodeUnsupported, "no audio source configured"))
		return false
	}

	stream, err := r.source.Open(ctx)
	if err != nil {
		r.failLocked(ctx, speecherr.Wrap(err))
		return false
	}

	// The stream is registered before the lock is released so Stop always finds it.
	r.stream = stream
	r.mediaType = Negotiate(r.encoders, r.candidates)
	r.pcm = &bytes.Buffer{}
	r.collected = make(chan struct{})
	go r.collect(stream, r.pcm, r.collected)

	r.metrics.SessionStarted(ctx, "capture")
	r.logger.Debug("capture started", "media_type", r.mediaType)
	return true
}

// collect writes into the buffer of the session that started it, so a stream
// that outlives its Stop cannot leak chunks into a later recording.
func (r *Recorder) collect(stream audio.Stream, buf *bytes.Buffer, done chan struct{}) {
	defer close(done)
	for chunk := range stream.Chunks() {
		r.mu.Lock()
		buf.Write(chunk)
		r.mu.Unlock()
	}
}

// Stop releases the microphone and returns the encoded recording, or nil when
// nothing was recording or encoding failed. The stream is always stopped.
func (r *Recorder) Stop() *Blob {
	r.mu.Lock()
	stream, done, buf, mediaType := r.stream, r.collected, r.pcm, r.mediaType
	r.stream = nil
	r.mu.Unlock()

	if stream == nil {
		return nil
	}

	ctx := context.Background()
	if err := release(stream); err != nil {
		r.logger.Warn("capture stream stop failed", "error", err)
	}
	r.metrics.SessionEnded(ctx, "capture")

	select {
	case <-done:
	case <-time.After(drainTimeout):
		r.logger.Warn("capture stream did not drain", "timeout", drainTimeout)
	}

	r.mu.Lock()
	pcm := bytes.Clone(buf.Bytes())
	r.mu.Unlock()

	data, err := r.encode(mediaType, pcm)
	if err != nil {
		r.mu.Lock()
		r.failLocked(ctx, speecherr.New(speecherr.CodeOther, err.Error()))
		r.mu.Unlock()
		return nil
	}

	r.metrics.RecordCapture(ctx, len(data), mediaType)
	r.logger.Debug("capture stopped", "media_type", mediaType, "bytes", len(data))
	return &Blob{Data: data, MediaType: mediaType}
}

// Close releases any active stream and discards the recording.
func (r *Recorder) Close() {
	_ = r.Stop()
}

// Recording reports whether a stream is open.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

// Error returns the user-facing message of the last failure, or "".
func (r *Recorder) Error() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// ErrorCode returns the code of the last failure, or "".
func (r *Recorder) ErrorCode() speecherr.Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		return ""
	}
	return r.err.Code
}

// Err returns the last failure as an error, or nil.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		return nil
	}
	return r.err
}

func (r *Recorder) failLocked(ctx context.Context, err *speecherr.Error) {
	r.err = err
	r.metrics.RecordError(ctx, "capture", string(err.Code))
	r.logger.Warn("capture failed", "code", err.Code, "error", err.Raw)
}

func (r *Recorder) encode(mediaType string, pcm []byte) (data []byte, err error) {
	enc, ok := r.encoders.lookup(mediaType)
	if !ok {
		enc = EncoderFunc(EncodeL16)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			data, err = nil, fmt.Errorf("encode %s: panic: %v", mediaType, recovered)
		}
	}()
	return enc.Encode(pcm)
}

// release stops stream, converting a panic into an error.
func release(stream audio.Stream) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return stream.Stop()
}
