package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Environment variables that override values from the config file.
const (
	EnvRecognizerEndpoint = "MURMUR_RECOGNIZER_ENDPOINT"
	EnvRecognizerToken    = "MURMUR_RECOGNIZER_TOKEN"
	EnvSTTOrigin          = "MURMUR_STT_ORIGIN"
	EnvSTTToken           = "MURMUR_STT_TOKEN"
)

// Loaded is the resolved configuration plus where it came from.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
	// Overrides names the environment variables applied on top of the file.
	Overrides []string
}

// Load reads the config file (defaults when absent), applies environment
// overrides, and reports endpoint-resolution warnings.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: path, Config: Default()}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{Message: fmt.Sprintf("config file %q not found; using defaults", path)})
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	default:
		cfg, warnings, err := Parse(string(content), loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
		}
		loaded.Config, loaded.Warnings, loaded.Exists = cfg, warnings, true
	}

	loaded.Overrides = applyEnv(&loaded.Config, os.LookupEnv)
	if len(loaded.Overrides) > 0 {
		warnings, err := Validate(loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("environment overrides %s: %w", strings.Join(loaded.Overrides, ", "), err)
		}
		loaded.Warnings = appendNew(loaded.Warnings, warnings...)
	}

	loaded.Warnings = appendNew(loaded.Warnings, resolutionWarnings(loaded.Config)...)
	return loaded, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) []string {
	var applied []string
	set := func(name string, dst *string) {
		value, ok := lookup(name)
		if value = strings.TrimSpace(value); !ok || value == "" {
			return
		}
		*dst = value
		applied = append(applied, name)
	}
	set(EnvRecognizerEndpoint, &cfg.Recognizer.Endpoint)
	set(EnvRecognizerToken, &cfg.Recognizer.Token)
	set(EnvSTTOrigin, &cfg.STT.BackendOrigin)
	set(EnvSTTToken, &cfg.STT.Token)
	return applied
}

// resolutionWarnings flags settings that resolve differently than they read.
func resolutionWarnings(cfg Config) []Warning {
	var warnings []Warning
	if strings.TrimSpace(cfg.STT.BackendOrigin) != "" && strings.TrimSpace(cfg.STT.APIBaseURL) != "" {
		warnings = append(warnings, Warning{Message: "stt.api_base_url is ignored while stt.backend_origin is set"})
	}
	if strings.TrimSpace(cfg.Recognizer.Endpoint) == "" && strings.TrimSpace(cfg.Recognizer.Token) != "" {
		warnings = append(warnings, Warning{Message: "recognizer.token is set without recognizer.endpoint; dictation will record and upload"})
	}
	if cfg.STT.Token != "" {
		if u, err := url.Parse(strings.TrimSpace(cfg.STT.BackendOrigin)); err == nil && u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
			warnings = append(warnings, Warning{Message: "stt.token is sent over plain http to " + u.Host})
		}
	}
	return warnings
}

func appendNew(existing []Warning, more ...Warning) []Warning {
	for _, w := range more {
		seen := false
		for _, have := range existing {
			if have.Message == w.Message {
				seen = true
				break
			}
		}
		if !seen {
			existing = append(existing, w)
		}
	}
	return existing
}
