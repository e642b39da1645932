package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rbright/murmur/internal/audio"
)

// Media types produced or negotiated by the recorder.
const (
	MediaTypeWebMOpus = "audio/webm;codecs=opus"
	MediaTypeOggOpus  = "audio/ogg;codecs=opus"
	MediaTypeMP4      = "audio/mp4"
	MediaTypeWAV      = "audio/wav"
	MediaTypeL16      = "audio/L16;rate=16000;channels=1"
)

// DefaultMediaType is used when no candidate is supported.
const DefaultMediaType = MediaTypeL16

// Candidates is the negotiation order: compressed containers with known codecs first.
var Candidates = []string{
	MediaTypeWebMOpus,
	MediaTypeOggOpus,
	MediaTypeMP4,
	MediaTypeWAV,
}

// Encoder packages captured PCM (16kHz mono s16le) into one media type.
type Encoder interface {
	Encode(pcm []byte) ([]byte, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func([]byte) ([]byte, error)

func (f EncoderFunc) Encode(pcm []byte) ([]byte, error) {
	return f(pcm)
}

// Encoders maps media types to encoders and doubles as the capability query.
type Encoders map[string]Encoder

// DefaultEncoders returns the encoders built into murmur.
func DefaultEncoders() Encoders {
	return Encoders{
		normalizeType(MediaTypeWAV): EncoderFunc(EncodeWAV),
		normalizeType(MediaTypeL16): EncoderFunc(EncodeL16),
	}
}

// IsTypeSupported reports whether mediaType has a registered encoder.
func (e Encoders) IsTypeSupported(mediaType string) bool {
	_, ok := e.lookup(mediaType)
	return ok
}

func (e Encoders) lookup(mediaType string) (Encoder, bool) {
	if e == nil {
		return nil, false
	}
	enc, ok := e[normalizeType(mediaType)]
	return enc, ok && enc != nil
}

// Negotiate returns the first candidate encoders supports, else DefaultMediaType.
func Negotiate(encoders Encoders, candidates []string) string {
	for _, candidate := range candidates {
		if encoders.IsTypeSupported(candidate) {
			return candidate
		}
	}
	return DefaultMediaType
}

func normalizeType(mediaType string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mediaType), " ", ""))
}

// EncodeWAV wraps pcm in a RIFF/WAVE container.
func EncodeWAV(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("encode wav: odd pcm length %d", len(pcm))
	}

	samples := len(pcm) / 2
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: audio.Channels,
			SampleRate:  audio.SampleRate,
		},
		Data:           make([]int, samples),
		SourceBitDepth: audio.BitsPerSample,
	}
	for i := range samples {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, audio.SampleRate, audio.BitsPerSample, audio.Channels, 1)
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return out.buf, nil
}

// EncodeL16 converts little-endian capture PCM to network byte order (RFC 2586).
func EncodeL16(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("encode l16: odd pcm length %d", len(pcm))
	}
	out := make([]byte, len(pcm))
	for i := 0; i < len(pcm); i += 2 {
		binary.BigEndian.PutUint16(out[i:], binary.LittleEndian.Uint16(pcm[i:]))
	}
	return out, nil
}

var errNegativeSeek = errors.New("negative seek position")

// memFile is an in-memory io.WriteSeeker for the WAV encoder's header rewrite.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errNegativeSeek
	}
	m.pos = int(abs)
	return abs, nil
}
