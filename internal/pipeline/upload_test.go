package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rbright/murmur/internal/capture"
	"github.com/stretchr/testify/require"
)

func TestMediaTypeForPath(t *testing.T) {
	cases := map[string]string{
		"note.wav":    capture.MediaTypeWAV,
		"NOTE.WEBM":   capture.MediaTypeWebMOpus,
		"clip.m4a":    capture.MediaTypeMP4,
		"clip.mp3":    "audio/mpeg",
		"capture.pcm": capture.MediaTypeL16,
	}
	for path, want := range cases {
		got, err := MediaTypeForPath(path)
		require.NoError(t, err, path)
		require.Equal(t, want, got, path)
	}

	_, err := MediaTypeForPath("notes.txt")
	require.ErrorContains(t, err, "unsupported audio file extension")
}

func TestTranscribeFileUploadsWAV(t *testing.T) {
	data, err := capture.EncodeWAV([]byte{1, 0, 2, 0})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "memo.wav")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	up := &fakeUploader{text: "memo text"}
	text, err := TranscribeFile(context.Background(), up, path, "en-GB", "")
	require.NoError(t, err)
	require.Equal(t, "memo text", text)
	require.Equal(t, capture.MediaTypeWAV, up.blob.MediaType)
	require.Equal(t, data, up.blob.Data)
	require.Equal(t, "en-GB", up.language)
}

func TestLoadBlobRejectsInvalidWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not riff"), 0o600))

	_, err := LoadBlob(path)
	require.ErrorContains(t, err, "not a valid WAV file")
}

func TestLoadBlobRejectsEmptyAndMissingFiles(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.webm")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	_, err := LoadBlob(empty)
	require.ErrorContains(t, err, "is empty")

	_, err = LoadBlob(filepath.Join(dir, "missing.ogg"))
	require.ErrorContains(t, err, "read audio file")
}
