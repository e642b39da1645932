package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseEmptyReturnsDefaults(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseCommentOnlyReturnsDefaults(t *testing.T) {
	cfg, _, err := Parse("# nothing configured yet\n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParseOverlaysDefaults(t *testing.T) {
	content := `
language:
  default: es-MX
  variants:
    es: [es-ES, es-MX, es-US]
recognizer:
  endpoint: wss://speech.example.com/v1/listen
  token: abc
  interim: false
  handshake_timeout: 5s
  health_addr: speech.example.com:443
stt:
  backend_origin: https://api.example.com
  timeout: 30s
audio:
  input: elgato
  encodings: [audio/wav]
transcript:
  trailing_space: false
indicator:
  sound_enable: false
  error_timeout_ms: 900
clipboard_cmd: "wl-copy --type 'text/plain'"
debug:
  audio_dump: true
`
	cfg, warnings, err := Parse(content, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "es-MX", cfg.Language.Default)
	require.Equal(t, "en-US", cfg.Language.Fallback)
	require.Equal(t, []string{"es-ES", "es-MX", "es-US"}, cfg.Language.Variants["es"])
	require.Contains(t, cfg.Language.Variants, "en")

	require.Equal(t, "wss://speech.example.com/v1/listen", cfg.Recognizer.Endpoint)
	require.Equal(t, "abc", cfg.Recognizer.Token)
	require.False(t, cfg.Recognizer.Interim)
	require.True(t, cfg.Recognizer.Continuous)
	require.Equal(t, 5*time.Second, cfg.Recognizer.HandshakeTimeout)
	require.Equal(t, 3*time.Second, cfg.Recognizer.StopGrace)
	require.Equal(t, "speech.example.com:443", cfg.Recognizer.HealthAddr)

	require.Equal(t, "https://api.example.com", cfg.STT.BackendOrigin)
	require.Equal(t, 30*time.Second, cfg.STT.Timeout)

	require.Equal(t, "elgato", cfg.Audio.Input)
	require.Equal(t, "default", cfg.Audio.Fallback)
	require.Equal(t, []string{"audio/wav"}, cfg.Audio.Encodings)

	require.False(t, cfg.Transcript.TrailingSpace)
	require.True(t, cfg.Indicator.Enable)
	require.False(t, cfg.Indicator.SoundEnable)
	require.Equal(t, 900, cfg.Indicator.ErrorTimeoutMS)

	require.Equal(t, "wl-copy --type 'text/plain'", cfg.Clipboard.Raw)
	require.Equal(t, []string{"wl-copy", "--type", "text/plain"}, cfg.Clipboard.Argv)
	require.True(t, cfg.Debug.AudioDump)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, _, err := Parse("recognizer:\n  endpoint: wss://x.example.com\n  bogus: true\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "bogus")
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, _, err := Parse("stt:\n  timeout: soon\n", Default())
	require.Error(t, err)
}

func TestParseRejectsBadClipboardCommand(t *testing.T) {
	_, _, err := Parse("clipboard_cmd: 'wl-copy \"oops'\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 1")
	require.Contains(t, err.Error(), "unclosed \"")
}

func TestParseValidationErrorIncludesLine(t *testing.T) {
	content := "language:\n  default: en-AU\nindicator:\n  error_timeout_ms: -5\n"
	_, _, err := Parse(content, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 4")
	require.Contains(t, err.Error(), "indicator.error_timeout_ms")
}

func TestParseWarningsCarryLines(t *testing.T) {
	content := "audio:\n  input: default\n  encodings:\n    - audio/ogg;codecs=opus\n"
	_, warnings, err := Parse(content, Default())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, 3, warnings[0].Line)
}

func TestParseMalformedYAML(t *testing.T) {
	_, _, err := Parse("language: [unclosed\n", Default())
	require.Error(t, err)
}
