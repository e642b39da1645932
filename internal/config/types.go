// Package config resolves, parses, validates, and defaults murmur configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by murmur.
type Config struct {
	Language   LanguageConfig   `yaml:"language"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	STT        STTConfig        `yaml:"stt"`
	Audio      AudioConfig      `yaml:"audio"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Indicator  IndicatorConfig  `yaml:"indicator"`
	Clipboard  CommandConfig    `yaml:"clipboard_cmd"`
	Debug      DebugConfig      `yaml:"debug"`
}

// LanguageConfig controls candidate chain construction.
type LanguageConfig struct {
	// Default replaces the process locale when no language is requested.
	Default  string              `yaml:"default"`
	Fallback string              `yaml:"fallback"`
	Variants map[string][]string `yaml:"variants"`
}

// RecognizerConfig describes the streaming recognizer service. An empty
// endpoint disables the native path.
type RecognizerConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Token            string        `yaml:"token"`
	Model            string        `yaml:"model"`
	Interim          bool          `yaml:"interim"`
	Continuous       bool          `yaml:"continuous"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	StopGrace        time.Duration `yaml:"stop_grace"`
	// HealthAddr is an optional host:port serving grpc.health.v1 for doctor.
	HealthAddr string `yaml:"health_addr"`
}

// STTConfig describes the upload transcription endpoint.
type STTConfig struct {
	BackendOrigin string        `yaml:"backend_origin"`
	APIBaseURL    string        `yaml:"api_base_url"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
}

// AudioConfig controls input-source selection and fallback encodings.
type AudioConfig struct {
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
	// Encodings overrides the recording media type candidates, most preferred first.
	Encodings []string `yaml:"encodings"`
}

// TranscriptConfig controls transcript assembly formatting.
type TranscriptConfig struct {
	TrailingSpace bool `yaml:"trailing_space"`
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable            bool   `yaml:"enable"`
	AppName           string `yaml:"app_name"`
	Interim           bool   `yaml:"interim"`
	SoundEnable       bool   `yaml:"sound_enable"`
	SoundStartFile    string `yaml:"sound_start_file"`
	SoundStopFile     string `yaml:"sound_stop_file"`
	SoundCompleteFile string `yaml:"sound_complete_file"`
	SoundCancelFile   string `yaml:"sound_cancel_file"`
	ErrorTimeoutMS    int    `yaml:"error_timeout_ms"`
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	AudioDump bool `yaml:"audio_dump"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
