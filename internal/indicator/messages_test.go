package indicator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestResolveLocale(t *testing.T) {
	require.Equal(t, language.English, resolveLocale("en-AU"))
	require.Equal(t, language.Spanish, resolveLocale("es-MX"))
	require.Equal(t, language.English, resolveLocale("ja-JP"))
	require.Equal(t, language.English, resolveLocale(""))
	require.Equal(t, language.English, resolveLocale("not a tag"))
}

func TestIndicatorMessages(t *testing.T) {
	en := indicatorMessages("en-US")
	require.Equal(t, "Listening…", en.listening)
	require.Equal(t, "Transcribing…", en.transcribing)
	require.Equal(t, "Speech recognition error", en.errorText)

	es := indicatorMessages("es")
	require.Equal(t, "Escuchando…", es.listening)
}

func TestMessagesFromEnvUsesPOSIXLocale(t *testing.T) {
	t.Setenv("LC_ALL", "es_ES.UTF-8")
	require.Equal(t, "Escuchando…", indicatorMessagesFromEnv().listening)
}
