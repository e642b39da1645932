// Package stt uploads recorded audio to the transcription endpoint.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/capture"
	"github.com/rbright/murmur/internal/observe"
	"github.com/rbright/murmur/internal/speecherr"
)

const (
	// DefaultOrigin is used when neither a backend origin nor an API base URL is configured.
	DefaultOrigin  = "http://127.0.0.1:8000"
	endpointPath   = "/api/stt"
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 1024
)

// ErrNoAudio is returned when Transcribe is called without a recording.
var ErrNoAudio = errors.New("no audio to transcribe")

// Config configures the transcription client.
type Config struct {
	// BackendOrigin takes precedence over APIBaseURL when set.
	BackendOrigin string
	APIBaseURL    string
	Token         string // optional, sent as Bearer
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client posts audio blobs to the transcription endpoint. It never retries.
type Client struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
	metrics  *observe.Metrics
}

// NewClient resolves the endpoint from cfg.
func NewClient(cfg Config, logger *slog.Logger, metrics *observe.Metrics) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint: ResolveEndpoint(cfg.BackendOrigin, cfg.APIBaseURL),
		token:    strings.TrimSpace(cfg.Token),
		client:   httpClient,
		logger:   logger,
		metrics:  metrics,
	}
}

// Endpoint returns the resolved upload URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ResolveEndpoint picks the upload URL: the backend origin, else the origin of
// the API base URL, else DefaultOrigin.
func ResolveEndpoint(backendOrigin, apiBaseURL string) string {
	if origin := strings.TrimRight(strings.TrimSpace(backendOrigin), "/"); origin != "" {
		return origin + endpointPath
	}
	if base := strings.TrimSpace(apiBaseURL); base != "" {
		if u, err := url.Parse(base); err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host + endpointPath
		}
	}
	return DefaultOrigin + endpointPath
}

type transcribeResponse struct {
	Text       *string `json:"text"`
	Transcript *string `json:"transcript"`
}

// Transcribe uploads blob with optional language and locale metadata. A
// successful response without transcript text yields "" and a nil error.
func (c *Client) Transcribe(ctx context.Context, blob *capture.Blob, language, locale string) (string, error) {
	if blob == nil {
		return "", ErrNoAudio
	}

	body, contentType, err := encodeForm(blob, language, locale)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordTranscription(ctx, time.Since(start), "transport_error")
		c.metrics.RecordError(ctx, "stt", string(speecherr.FromError(err)))
		return "", fmt.Errorf("stt request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.metrics.RecordTranscription(ctx, time.Since(start), strconv.Itoa(resp.StatusCode))
	if err != nil {
		return "", fmt.Errorf("read stt response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(raw, maxErrorBody)}
		c.metrics.RecordError(ctx, "stt", string(speecherr.FromError(statusErr)))
		c.logger.Warn("stt request failed", "status", resp.StatusCode, "endpoint", c.endpoint)
		return "", statusErr
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode stt response: %w", err)
	}

	text := parsed.Text
	if text == nil {
		text = parsed.Transcript
	}
	if text == nil {
		return "", nil
	}

	transcript := strings.TrimSpace(*text)
	c.logger.Debug("stt transcript received", "chars", len(transcript), "media_type", blob.MediaType)
	return transcript, nil
}

func encodeForm(blob *capture.Blob, language, locale string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="voice.%s"`, blob.Extension()))
	mediaType := blob.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	header.Set("Content-Type", mediaType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(blob.Data); err != nil {
		return nil, "", fmt.Errorf("write audio part: %w", err)
	}

	if language = strings.TrimSpace(language); language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}
	if locale = strings.TrimSpace(locale); locale != "" {
		if err := writer.WriteField("locale", locale); err != nil {
			return nil, "", fmt.Errorf("write locale field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// StatusError is a non-success response from the transcription endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("STT request failed (%d): %s", e.StatusCode, e.Body)
}

// Signal maps well-known statuses onto recognition signals for speecherr.
func (e *StatusError) Signal() string {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return speecherr.SignalNotAllowed
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return speecherr.SignalBusy
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return speecherr.SignalNetwork
	default:
		return ""
	}
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ping reports whether the endpoint's host answers HTTP at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stt endpoint unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}
