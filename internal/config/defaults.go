package config

import (
	"time"

	"github.com/rbright/murmur/internal/langtag"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Language: LanguageConfig{
			Fallback: langtag.DefaultFallback,
			Variants: langtag.DefaultVariants(),
		},
		Recognizer: RecognizerConfig{
			Interim:          true,
			Continuous:       true,
			HandshakeTimeout: 10 * time.Second,
			StopGrace:        3 * time.Second,
		},
		STT: STTConfig{
			Timeout: 60 * time.Second,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Transcript: TranscriptConfig{
			TrailingSpace: true,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			AppName:        "murmur",
			Interim:        true,
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Clipboard: Command("wl-copy", "--trim-newline"),
	}
}

// LanguagePolicy returns the chain policy described by the language section.
func (c Config) LanguagePolicy() langtag.Policy {
	return langtag.Policy{Variants: c.Language.Variants, Fallback: c.Language.Fallback}
}
