package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/rbright/murmur/internal/capture"
	"golang.org/x/text/language"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if tag := strings.TrimSpace(cfg.Language.Default); tag != "" {
		if _, err := language.Parse(tag); err != nil {
			return nil, &fieldError{Key: "language.default", Msg: fmt.Sprintf("is not a valid BCP-47 tag: %q", tag)}
		}
	}
	fallback := strings.TrimSpace(cfg.Language.Fallback)
	if fallback == "" {
		return nil, &fieldError{Key: "language.fallback", Msg: "must not be empty"}
	}
	if _, err := language.Parse(fallback); err != nil {
		return nil, &fieldError{Key: "language.fallback", Msg: fmt.Sprintf("is not a valid BCP-47 tag: %q", fallback)}
	}
	for family, variants := range cfg.Language.Variants {
		for _, variant := range variants {
			if _, err := language.Parse(strings.TrimSpace(variant)); err != nil {
				return nil, &fieldError{Key: "language.variants", Msg: fmt.Sprintf("%s lists invalid tag %q", family, variant)}
			}
		}
	}

	if endpoint := strings.TrimSpace(cfg.Recognizer.Endpoint); endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil || u.Host == "" || (u.Scheme != "ws" && u.Scheme != "wss") {
			return nil, &fieldError{Key: "recognizer.endpoint", Msg: "must be a ws:// or wss:// URL"}
		}
		if u.Scheme == "ws" && !isLoopbackHost(u.Hostname()) {
			warnings = append(warnings, Warning{Message: "recognizer.endpoint uses plain ws:// to a remote host; the native path will be refused as insecure"})
		}
	}
	if cfg.Recognizer.HandshakeTimeout < 0 {
		return nil, &fieldError{Key: "recognizer.handshake_timeout", Msg: "must be >= 0"}
	}
	if cfg.Recognizer.StopGrace < 0 {
		return nil, &fieldError{Key: "recognizer.stop_grace", Msg: "must be >= 0"}
	}
	if addr := strings.TrimSpace(cfg.Recognizer.HealthAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, &fieldError{Key: "recognizer.health_addr", Msg: "must be host:port"}
		}
	}

	if origin := strings.TrimSpace(cfg.STT.BackendOrigin); origin != "" {
		if u, err := url.Parse(origin); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, &fieldError{Key: "stt.backend_origin", Msg: "must be an http:// or https:// origin"}
		}
	}
	if base := strings.TrimSpace(cfg.STT.APIBaseURL); base != "" {
		if u, err := url.Parse(base); err != nil || u.Host == "" {
			warnings = append(warnings, Warning{Message: "stt.api_base_url is not an absolute URL; the default origin will be used"})
		}
	}
	if cfg.STT.Timeout < 0 {
		return nil, &fieldError{Key: "stt.timeout", Msg: "must be >= 0"}
	}

	encoders := capture.DefaultEncoders()
	for _, mediaType := range cfg.Audio.Encodings {
		if !encoders.IsTypeSupported(mediaType) {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("audio.encodings entry %q has no encoder; it will be skipped", mediaType)})
		}
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.AppName) == "" {
		return nil, &fieldError{Key: "indicator.app_name", Msg: "must not be empty when indicator.enable=true"}
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, &fieldError{Key: "indicator.error_timeout_ms", Msg: "must be >= 0"}
	}
	if len(cfg.Clipboard.Argv) == 0 {
		return nil, &fieldError{Key: "clipboard_cmd", Msg: "must not be empty"}
	}

	return warnings, nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
