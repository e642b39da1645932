// Package audio handles Pulse device discovery, selection, and PCM capture.
package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/rbright/murmur/internal/speecherr"
)

const applicationName = "murmur"

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// DeviceError is a microphone failure carrying the media-capture signal name
// understood by speecherr.
type DeviceError struct {
	Name string
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return e.Name
	}
	return e.Err.Error()
}

func (e *DeviceError) Unwrap() error  { return e.Err }
func (e *DeviceError) Signal() string { return e.Name }

func deviceErr(name string, format string, args ...any) error {
	return &DeviceError{Name: name, Err: fmt.Errorf(format, args...)}
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, &DeviceError{Name: speecherr.SignalNotReadableError, Err: fmt.Errorf("connect pulse server: %w", err)}
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, deviceErr(speecherr.SignalNotFoundError, "read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, deviceErr(speecherr.SignalNotReadableError, "list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves input/fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList applies selection policy to a pre-fetched device list.
// "" and "default" both mean the server default source.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, deviceErr(speecherr.SignalNotFoundError, "no audio input devices found")
	}

	input = normalizePreference(input)
	fallback = normalizePreference(fallback)

	var defaultDevice, byInput, byFallback *Device
	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && input != "" && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && fallback != "" && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	primary := defaultDevice
	switch {
	case input != "" && byInput == nil:
		return Selection{}, deviceErr(speecherr.SignalOverconstrained, "audio.input %q did not match any device", input)
	case input != "":
		primary = byInput
	case defaultDevice == nil:
		return Selection{}, deviceErr(speecherr.SignalNotFoundError, "default audio source is unavailable")
	}

	if usable(*primary) {
		return Selection{Device: *primary}, nil
	}
	reason := unusableReason(*primary)

	candidate := defaultDevice
	if fallback != "" {
		if byFallback == nil {
			return Selection{}, deviceErr(speecherr.SignalNotFoundError, "primary input %q is %s and fallback %q not found", primary.ID, reason, fallback)
		}
		candidate = byFallback
	}
	if candidate == nil {
		return Selection{}, deviceErr(speecherr.SignalNotFoundError, "primary input %q is %s and no usable fallback", primary.ID, reason)
	}
	if !usable(*candidate) {
		name := speecherr.SignalNotFoundError
		if candidate.Available && candidate.Muted {
			name = speecherr.SignalNotAllowedError
		}
		return Selection{}, deviceErr(name, "audio fallback device %q is %s", candidate.ID, unusableReason(*candidate))
	}

	return Selection{
		Device:   *candidate,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, candidate.ID),
		Fallback: primary.ID != candidate.ID,
	}, nil
}

func normalizePreference(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "default" {
		return ""
	}
	return value
}

func usable(d Device) bool {
	return d.Available && !d.Muted
}

func unusableReason(d Device) string {
	if !d.Available {
		return "unavailable"
	}
	return "muted"
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse port availability (unknown=0, no=1, yes=2) to a boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			return port.Available != 1
		}
	}
	return true
}
