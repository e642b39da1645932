package indicator

import (
	"github.com/rbright/murmur/internal/langtag"
	"golang.org/x/text/language"
)

type messages struct {
	listening    string
	transcribing string
	errorText    string
}

var (
	supportedLocales = []language.Tag{language.English, language.Spanish}
	localeMatcher    = language.NewMatcher(supportedLocales)

	catalog = map[language.Tag]messages{
		language.English: {
			listening:    "Listening…",
			transcribing: "Transcribing…",
			errorText:    "Speech recognition error",
		},
		language.Spanish: {
			listening:    "Escuchando…",
			transcribing: "Transcribiendo…",
			errorText:    "Error de reconocimiento de voz",
		},
	}
)

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(langtag.Ambient(""))
}

// resolveLocale maps a BCP-47 tag onto a supported message locale, English by default.
func resolveLocale(raw string) language.Tag {
	tag, err := language.Parse(raw)
	if err != nil {
		return language.English
	}
	_, index, confidence := localeMatcher.Match(tag)
	if confidence == language.No {
		return language.English
	}
	return supportedLocales[index]
}

func indicatorMessages(raw string) messages {
	return catalog[resolveLocale(raw)]
}
