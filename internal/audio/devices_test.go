package audio

import (
	"context"
	"testing"

	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/rbright/murmur/internal/speecherr"
	"github.com/stretchr/testify/require"
)

func TestSelectDeviceFromList(t *testing.T) {
	wave := Device{ID: "alsa_input.usb-elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true}
	headset := Device{ID: "bluez_input.sony", Description: "Sony WH-1000XM6", Available: true}
	muted := func(d Device) Device { d.Muted = true; return d }
	gone := func(d Device) Device { d.Available = false; return d }
	notDefault := func(d Device) Device { d.Default = false; return d }

	cases := []struct {
		name         string
		devices      []Device
		input        string
		fallback     string
		wantID       string
		wantFallback bool
		wantWarning  string
		wantCode     speecherr.Code
		wantErr      string
	}{
		{name: "default keyword", devices: []Device{wave, headset}, input: "default", fallback: "default", wantID: wave.ID},
		{name: "empty preference", devices: []Device{wave, headset}, wantID: wave.ID},
		{name: "match description case-insensitively", devices: []Device{notDefault(wave), {ID: headset.ID, Available: true, Default: true}}, input: "WAVE 3", wantID: wave.ID},
		{
			name:         "muted primary falls back",
			devices:      []Device{muted(wave), headset},
			input:        "elgato",
			fallback:     "sony",
			wantID:       headset.ID,
			wantFallback: true,
			wantWarning:  "is muted; falling back",
		},
		{name: "only device muted", devices: []Device{muted(wave)}, wantCode: speecherr.CodePermissionBlocked, wantErr: "muted"},
		{name: "unknown input", devices: []Device{wave}, input: "missing", wantCode: speecherr.CodeNoMicrophone, wantErr: "did not match"},
		{name: "no devices", wantCode: speecherr.CodeNoMicrophone, wantErr: "no audio input devices"},
		{name: "fallback also unavailable", devices: []Device{gone(wave), gone(headset)}, fallback: "sony", wantCode: speecherr.CodeNoMicrophone, wantErr: "unavailable"},
		{name: "fallback missing", devices: []Device{muted(wave)}, fallback: "usb-yeti", wantCode: speecherr.CodeNoMicrophone, wantErr: `fallback "usb-yeti" not found`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			selection, err := selectDeviceFromList(tc.devices, tc.input, tc.fallback)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				require.Equal(t, tc.wantCode, speecherr.FromError(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantID, selection.Device.ID)
			require.Equal(t, tc.wantFallback, selection.Fallback)
			if tc.wantWarning == "" {
				require.Empty(t, selection.Warning)
			} else {
				require.Contains(t, selection.Warning, tc.wantWarning)
			}
		})
	}
}

func TestDeviceMatchesIgnoresEmptyTerm(t *testing.T) {
	dev := Device{ID: "alsa_input.usb-elgato", Description: "Elgato Wave 3 Mono"}
	require.True(t, deviceMatches(dev, "usb-elgato"))
	require.False(t, deviceMatches(dev, ""))
}

func TestPulseUnavailableSurfacesDeviceBusy(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	_, err := ListDevices(context.Background())
	require.Equal(t, speecherr.CodeDeviceBusy, speecherr.FromError(err))

	err = Microphone{Input: "default"}.Preflight(context.Background())
	require.Equal(t, speecherr.CodeDeviceBusy, speecherr.FromError(err))
}

func TestSourceStateAndAvailability(t *testing.T) {
	for state, want := range map[uint32]string{0: "running", 1: "idle", 2: "suspended", 99: "unknown(99)"} {
		require.Equal(t, want, sourceStateString(state))
	}
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{}))
}
