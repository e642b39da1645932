package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/rbright/murmur/internal/capture"
)

var extensionMediaTypes = map[string]string{
	".wav":  capture.MediaTypeWAV,
	".webm": capture.MediaTypeWebMOpus,
	".ogg":  capture.MediaTypeOggOpus,
	".opus": capture.MediaTypeOggOpus,
	".mp4":  capture.MediaTypeMP4,
	".m4a":  capture.MediaTypeMP4,
	".mp3":  "audio/mpeg",
	".aac":  "audio/aac",
	".pcm":  capture.MediaTypeL16,
	".raw":  capture.MediaTypeL16,
}

// MediaTypeForPath guesses an upload media type from a file extension.
func MediaTypeForPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mediaType, ok := extensionMediaTypes[ext]
	if !ok {
		return "", fmt.Errorf("unsupported audio file extension %q", ext)
	}
	return mediaType, nil
}

// LoadBlob reads an audio file for upload. WAV files must carry a valid header.
func LoadBlob(path string) (*capture.Blob, error) {
	mediaType, err := MediaTypeForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("audio file %q is empty", path)
	}
	if mediaType == capture.MediaTypeWAV && !wav.NewDecoder(bytes.NewReader(data)).IsValidFile() {
		return nil, fmt.Errorf("audio file %q is not a valid WAV file", path)
	}
	return &capture.Blob{Data: data, MediaType: mediaType}, nil
}

// TranscribeFile uploads an existing recording and returns its transcript.
func TranscribeFile(ctx context.Context, uploader Uploader, path, language, locale string) (string, error) {
	blob, err := LoadBlob(path)
	if err != nil {
		return "", err
	}
	text, err := uploader.Transcribe(ctx, blob, language, locale)
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filepath.Base(path), err)
	}
	return text, nil
}
