// Package speecherr maps recognizer, microphone, and network failures onto one error taxonomy.
package speecherr

import (
	"context"
	"errors"
	"net"
	"net/url"
	"os"
	"strings"
)

// Code is the closed set of voice input failure classes surfaced to callers.
type Code string

const (
	CodeUnsupported         Code = "unsupported"
	CodeInsecureContext     Code = "insecureContext"
	CodePermissionBlocked   Code = "permissionBlocked"
	CodeNoMicrophone        Code = "noMicrophone"
	CodeDeviceBusy          Code = "deviceBusy"
	CodeNoSpeechDetected    Code = "noSpeechDetected"
	CodeNetworkFailure      Code = "networkFailure"
	CodeAborted             Code = "aborted"
	CodeRecognizerBusy      Code = "recognizerBusy"
	CodeLanguageUnsupported Code = "languageUnsupported"
	CodeOther               Code = "other"
)

// Codes lists every Code in declaration order.
var Codes = []Code{
	CodeUnsupported,
	CodeInsecureContext,
	CodePermissionBlocked,
	CodeNoMicrophone,
	CodeDeviceBusy,
	CodeNoSpeechDetected,
	CodeNetworkFailure,
	CodeAborted,
	CodeRecognizerBusy,
	CodeLanguageUnsupported,
	CodeOther,
}

// Raw signal names emitted by recognizers, the permission layer, and recorders.
const (
	SignalNotAllowed          = "not-allowed"
	SignalServiceNotAllowed   = "service-not-allowed"
	SignalAudioCapture        = "audio-capture"
	SignalNoSpeech            = "no-speech"
	SignalNetwork             = "network"
	SignalAborted             = "aborted"
	SignalBusy                = "busy"
	SignalLanguageUnsupported = "language-not-supported"

	SignalNotAllowedError   = "NotAllowedError"
	SignalSecurityError     = "SecurityError"
	SignalNotFoundError     = "NotFoundError"
	SignalOverconstrained   = "OverconstrainedError"
	SignalNotReadableError  = "NotReadableError"
	SignalTrackStartError   = "TrackStartError"
	SignalAbortError        = "AbortError"
	SignalNotSupportedError = "NotSupportedError"
	SignalInvalidStateError = "InvalidStateError"
	signalPermissionDenied  = "PermissionDeniedError"
	signalDevicesNotFound   = "DevicesNotFoundError"
	signalInsecureContext   = "insecure-context"
	signalRecognizerMissing = "recognizer-unavailable"
	signalAlreadyStarted    = "already started"
)

var exactSignals = map[string]Code{
	SignalNotAllowed:          CodePermissionBlocked,
	SignalServiceNotAllowed:   CodePermissionBlocked,
	SignalAudioCapture:        CodeNoMicrophone,
	SignalNoSpeech:            CodeNoSpeechDetected,
	SignalNetwork:             CodeNetworkFailure,
	SignalAborted:             CodeAborted,
	SignalBusy:                CodeRecognizerBusy,
	SignalLanguageUnsupported: CodeLanguageUnsupported,

	SignalNotAllowedError:   CodePermissionBlocked,
	SignalSecurityError:     CodePermissionBlocked,
	signalPermissionDenied:  CodePermissionBlocked,
	SignalNotFoundError:     CodeNoMicrophone,
	signalDevicesNotFound:   CodeNoMicrophone,
	SignalOverconstrained:   CodeNoMicrophone,
	SignalNotReadableError:  CodeDeviceBusy,
	SignalTrackStartError:   CodeDeviceBusy,
	SignalAbortError:        CodeAborted,
	SignalNotSupportedError: CodeUnsupported,
	SignalInvalidStateError: CodeRecognizerBusy,

	signalInsecureContext:   CodeInsecureContext,
	signalRecognizerMissing: CodeUnsupported,
}

// patternSignals is consulted in order when no exact signal matches.
var patternSignals = []struct {
	fragment string
	code     Code
}{
	{fragment: SignalServiceNotAllowed, code: CodePermissionBlocked},
	{fragment: SignalNotAllowed, code: CodePermissionBlocked},
	{fragment: "permission denied", code: CodePermissionBlocked},
	{fragment: SignalAudioCapture, code: CodeNoMicrophone},
	{fragment: "device or resource busy", code: CodeDeviceBusy},
	{fragment: SignalNetwork, code: CodeNetworkFailure},
	{fragment: signalAlreadyStarted, code: CodeRecognizerBusy},
	{fragment: SignalBusy, code: CodeRecognizerBusy},
	{fragment: SignalLanguageUnsupported, code: CodeLanguageUnsupported},
	{fragment: "unsupported language", code: CodeLanguageUnsupported},
	{fragment: "language not supported", code: CodeLanguageUnsupported},
	{fragment: "language is not supported", code: CodeLanguageUnsupported},
}

// Classify maps a raw failure signal to a Code. Unknown input yields CodeOther.
func Classify(raw string) Code {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CodeOther
	}
	if code, ok := exactSignals[trimmed]; ok {
		return code
	}
	lowered := strings.ToLower(trimmed)
	for _, p := range patternSignals {
		if strings.Contains(lowered, strings.ToLower(p.fragment)) {
			return p.code
		}
	}
	return CodeOther
}

// Signaler is implemented by platform errors that carry a raw signal name.
type Signaler interface {
	Signal() string
}

// FromError classifies a Go error. A nil error yields CodeOther.
func FromError(err error) Code {
	if err == nil {
		return CodeOther
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}

	var signaler Signaler
	if errors.As(err, &signaler) {
		if code := Classify(signaler.Signal()); code != CodeOther {
			return code
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return CodeAborted
	case errors.Is(err, context.DeadlineExceeded):
		return CodeNetworkFailure
	case errors.Is(err, os.ErrPermission):
		return CodePermissionBlocked
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return CodeNetworkFailure
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeNetworkFailure
	}

	return Classify(err.Error())
}

// Message returns the user-facing message for code. raw is only used for CodeOther.
func Message(code Code, raw string) string {
	switch code {
	case CodeUnsupported:
		return "Voice input is not supported on this device."
	case CodeInsecureContext:
		return "Voice input needs a secure connection (wss) or a local recognizer."
	case CodePermissionBlocked:
		return "Microphone access is blocked. Allow microphone access and try again."
	case CodeNoMicrophone:
		return "No microphone detected."
	case CodeDeviceBusy:
		return "The microphone is in use by another application."
	case CodeNoSpeechDetected:
		return "I didn't catch that. Try speaking again."
	case CodeNetworkFailure:
		return "Speech service network error."
	case CodeAborted:
		return "Listening stopped."
	case CodeRecognizerBusy:
		return "Speech service is busy. Try again in a moment."
	case CodeLanguageUnsupported:
		return "This language isn't supported for voice input on this device."
	default:
		if strings.TrimSpace(raw) != "" {
			return strings.TrimSpace(raw)
		}
		return "Microphone error."
	}
}

// IsLanguageRejection reports whether code should advance the language candidate chain.
func IsLanguageRejection(code Code) bool {
	return code == CodeLanguageUnsupported
}

// IsPreflightRetryable reports whether a start failure may clear after a microphone preflight.
func IsPreflightRetryable(code Code) bool {
	switch code {
	case CodePermissionBlocked, CodeDeviceBusy, CodeRecognizerBusy, CodeNoMicrophone:
		return true
	default:
		return false
	}
}
