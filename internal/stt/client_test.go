package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rbright/murmur/internal/capture"
	"github.com/rbright/murmur/internal/speecherr"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server, token string) *Client {
	return NewClient(Config{BackendOrigin: srv.URL, Token: token}, nil, nil)
}

func wavBlob() *capture.Blob {
	return &capture.Blob{Data: []byte("RIFF-fake"), MediaType: capture.MediaTypeWAV}
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	type seen struct {
		path, auth, language, locale, filename, partType string
		audio                                           []byte
	}
	got := make(chan seen, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s seen
		s.path = r.URL.Path
		s.auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			s.language = r.FormValue("language")
			s.locale = r.FormValue("locale")
			if f, header, err := r.FormFile("audio"); err == nil {
				s.filename = header.Filename
				s.partType = header.Header.Get("Content-Type")
				s.audio, _ = io.ReadAll(f)
				f.Close()
			}
		}
		got <- s
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  hello there  "}`)
	}))
	defer srv.Close()

	text, err := newTestClient(srv, "secret").Transcribe(context.Background(), wavBlob(), "en-AU", "en")
	require.NoError(t, err)
	require.Equal(t, "hello there", text)

	s := <-got
	require.Equal(t, "/api/stt", s.path)
	require.Equal(t, "Bearer secret", s.auth)
	require.Equal(t, "en-AU", s.language)
	require.Equal(t, "en", s.locale)
	require.Equal(t, "voice.wav", s.filename)
	require.Equal(t, capture.MediaTypeWAV, s.partType)
	require.Equal(t, []byte("RIFF-fake"), s.audio)
}

func TestTranscribeOmitsEmptyMetadata(t *testing.T) {
	fields := make(chan map[string][]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		if r.MultipartForm != nil {
			fields <- r.MultipartForm.Value
		} else {
			fields <- nil
		}
		_, _ = io.WriteString(w, `{"text":"ok"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, "").Transcribe(context.Background(), wavBlob(), "", "  ")
	require.NoError(t, err)

	values := <-fields
	require.NotContains(t, values, "language")
	require.NotContains(t, values, "locale")
}

func TestTranscribeServerErrorIncludesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "server error")
	}))
	defer srv.Close()

	text, err := newTestClient(srv, "").Transcribe(context.Background(), wavBlob(), "es", "")
	require.Error(t, err)
	require.Empty(t, text)
	require.Contains(t, err.Error(), "500")
	require.Equal(t, "STT request failed (500): server error", err.Error())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	require.Equal(t, "server error", statusErr.Body)
}

func TestTranscribeReturnsTextField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text": "Hola"}`)
	}))
	defer srv.Close()

	text, err := newTestClient(srv, "").Transcribe(context.Background(), wavBlob(), "es", "es-ES")
	require.NoError(t, err)
	require.Equal(t, "Hola", text)
}

func TestTranscribeAcceptsTranscriptField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"transcript": "Bonjour"}`)
	}))
	defer srv.Close()

	text, err := newTestClient(srv, "").Transcribe(context.Background(), wavBlob(), "fr", "")
	require.NoError(t, err)
	require.Equal(t, "Bonjour", text)
}

func TestTranscribeEmptyTextIsNotAnError(t *testing.T) {
	for _, body := range []string{`{}`, `{"text":"   "}`, `{"transcript":""}`, `{"text":null}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}))

		text, err := newTestClient(srv, "").Transcribe(context.Background(), wavBlob(), "", "")
		srv.Close()
		require.NoError(t, err, body)
		require.Empty(t, text, body)
	}
}

func TestTranscribeDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, "").Transcribe(context.Background(), wavBlob(), "", "")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, speecherr.CodeRecognizerBusy, speecherr.FromError(err))
}

func TestTranscribeMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	_, err := newTestClient(srv, "").Transcribe(context.Background(), wavBlob(), "", "")
	require.ErrorContains(t, err, "decode stt response")
}

func TestTranscribeNilBlob(t *testing.T) {
	c := NewClient(Config{}, nil, nil)
	_, err := c.Transcribe(context.Background(), nil, "", "")
	require.ErrorIs(t, err, ErrNoAudio)
}

func TestTranscribeTransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv, "").Transcribe(context.Background(), wavBlob(), "", "")
	require.Error(t, err)
	require.Equal(t, speecherr.CodeNetworkFailure, speecherr.FromError(err))
}

func TestStatusErrorSignals(t *testing.T) {
	cases := map[int]speecherr.Code{
		http.StatusUnauthorized:        speecherr.CodePermissionBlocked,
		http.StatusForbidden:           speecherr.CodePermissionBlocked,
		http.StatusTooManyRequests:     speecherr.CodeRecognizerBusy,
		http.StatusBadGateway:          speecherr.CodeNetworkFailure,
		http.StatusInternalServerError: speecherr.CodeOther,
	}
	for status, want := range cases {
		err := &StatusError{StatusCode: status, Body: "nope"}
		require.Equal(t, want, speecherr.FromError(err), status)
	}
}

func TestResolveEndpoint(t *testing.T) {
	require.Equal(t, "https://api.example.com/api/stt", ResolveEndpoint(" https://api.example.com// ", "https://other.example.com"))
	require.Equal(t, "https://app.example.com:8443/api/stt", ResolveEndpoint("", "https://app.example.com:8443/api/v1/resources"))
	require.Equal(t, DefaultOrigin+"/api/stt", ResolveEndpoint("", "not a url"))
	require.Equal(t, DefaultOrigin+"/api/stt", ResolveEndpoint("", ""))
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	c := newTestClient(srv, "")
	require.NoError(t, c.Ping(context.Background()))
	srv.Close()
	require.Error(t, c.Ping(context.Background()))
}
