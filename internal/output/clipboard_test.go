package output

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/murmur/internal/config"
	"github.com/stretchr/testify/require"
)

// clipboardSink is a clipboard command that stores stdin in a file.
func clipboardSink(t *testing.T) (config.CommandConfig, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clipboard.txt")
	return config.Command("sh", "-c", `cat > "$0"`, path), path
}

func TestCommit(t *testing.T) {
	cases := []struct {
		name       string
		transcript string
		clipboard  func(t *testing.T) (config.CommandConfig, string)
		wantClip   string
		wantEcho   string
		wantErr    string
	}{
		{
			name:       "copies verbatim and echoes without trailing space",
			transcript: "captured transcript ",
			clipboard:  clipboardSink,
			wantClip:   "captured transcript ",
			wantEcho:   "captured transcript\n",
		},
		{
			name:       "multi-line transcript",
			transcript: "first line\nsecond line",
			clipboard:  clipboardSink,
			wantClip:   "first line\nsecond line",
			wantEcho:   "first line\nsecond line\n",
		},
		{
			name:       "empty transcript touches nothing",
			transcript: "",
			clipboard:  clipboardSink,
		},
		{
			name:       "failing command reports stderr and skips echo",
			transcript: "captured transcript",
			clipboard: func(*testing.T) (config.CommandConfig, string) {
				return config.Command("sh", "-c", "echo 'no wayland display' >&2; exit 1"), ""
			},
			wantErr: "set clipboard: run sh: exit status 1 (no wayland display)",
		},
		{
			name:       "missing command",
			transcript: "captured transcript",
			clipboard: func(*testing.T) (config.CommandConfig, string) {
				return config.Command("definitely-missing-clipboard"), ""
			},
			wantErr: "run definitely-missing-clipboard",
		},
		{
			name:       "unset command",
			transcript: "captured transcript",
			clipboard: func(*testing.T) (config.CommandConfig, string) {
				return config.CommandConfig{}, ""
			},
			wantErr: "command argv cannot be empty",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clipboard, clipPath := tc.clipboard(t)
			var echo bytes.Buffer

			err := NewCommitter(clipboard, &echo, slog.New(slog.DiscardHandler)).Commit(context.Background(), tc.transcript)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				require.Empty(t, echo.String())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantEcho, echo.String())

			data, readErr := os.ReadFile(clipPath)
			if tc.wantClip == "" {
				require.ErrorIs(t, readErr, os.ErrNotExist)
				return
			}
			require.NoError(t, readErr)
			require.Equal(t, tc.wantClip, string(data))
		})
	}
}

func TestCommitWithoutEchoWriter(t *testing.T) {
	clipboard, clipPath := clipboardSink(t)

	require.NoError(t, NewCommitter(clipboard, nil, nil).Commit(context.Background(), "quiet"))
	data, err := os.ReadFile(clipPath)
	require.NoError(t, err)
	require.Equal(t, "quiet", string(data))
}

func TestCommitGivesUpOnHungClipboard(t *testing.T) {
	clipboard := config.Command("sleep", "30")

	start := time.Now()
	err := NewCommitter(clipboard, nil, nil).Commit(context.Background(), "stuck")
	require.ErrorContains(t, err, "set clipboard")
	require.Less(t, time.Since(start), clipboardTimeout+2*time.Second)
}
