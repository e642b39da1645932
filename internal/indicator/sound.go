package indicator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/jfreymuth/pulse"
	"github.com/rbright/murmur/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueCancel
)

const (
	cueRate    = 16000
	cueVolume  = 0.18
	cueGap     = 22 * time.Millisecond
	cueFade    = 5 * time.Millisecond
	cueTimeout = 4 * time.Second
)

type tone struct {
	hz float64
	ms int
}

// Rising pairs mark the start and a finished dictation; falling pairs mark a
// cancel; a single low tone marks the end of capture.
var cueTones = map[cueKind][]tone{
	cueStart:    {{hz: 880, ms: 70}, {hz: 1175, ms: 70}},
	cueStop:     {{hz: 620, ms: 120}},
	cueComplete: {{hz: 740, ms: 65}, {hz: 988, ms: 90}},
	cueCancel:   {{hz: 480, ms: 75}, {hz: 360, ms: 90}},
}

var synthesized = map[cueKind]*audio.IntBuffer{}

func init() {
	for kind, tones := range cueTones {
		synthesized[kind] = renderTones(tones)
	}
}

// player writes a mono 16-bit buffer to an audio output.
type player func(ctx context.Context, buf *audio.IntBuffer) error

// emitCue plays the configured file for kind, or its built-in tones when no
// file is set or the file cannot be decoded.
func emitCue(ctx context.Context, kind cueKind, cfg config.IndicatorConfig, play player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := synthesized[kind]
	if path := cueFile(kind, cfg); path != "" {
		if loaded, err := cueFiles.load(path); err == nil {
			buf = loaded
		}
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil
	}
	return play(ctx, buf)
}

// VerifyCueFiles decodes every configured cue file and returns one error per
// file that would fall back to the built-in tones.
func VerifyCueFiles(cfg config.IndicatorConfig) error {
	var errs []error
	for _, kind := range []cueKind{cueStart, cueStop, cueComplete, cueCancel} {
		if path := cueFile(kind, cfg); path != "" {
			if _, err := cueFiles.load(path); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func cueFile(kind cueKind, cfg config.IndicatorConfig) string {
	paths := map[cueKind]string{
		cueStart:    cfg.SoundStartFile,
		cueStop:     cfg.SoundStopFile,
		cueComplete: cfg.SoundCompleteFile,
		cueCancel:   cfg.SoundCancelFile,
	}
	path := strings.TrimSpace(paths[kind])
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// cueCache keeps decoded cue files until they change on disk.
type cueCache struct {
	mu      sync.Mutex
	entries map[string]cachedCue
}

type cachedCue struct {
	modTime time.Time
	buf     *audio.IntBuffer
}

var cueFiles = &cueCache{entries: map[string]cachedCue{}}

func (c *cueCache) load(path string) (*audio.IntBuffer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cue file %q: %w", path, err)
	}

	c.mu.Lock()
	entry, ok := c.entries[path]
	c.mu.Unlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.buf, nil
	}

	buf, err := decodeCue(path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[path] = cachedCue{modTime: info.ModTime(), buf: buf}
	c.mu.Unlock()
	return buf, nil
}

// decodeCue reads a PCM WAV file as mono 16-bit samples at the file's rate.
func decodeCue(path string) (*audio.IntBuffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cue file %q: %w", path, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("cue file %q is not a valid WAV file", path)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode cue file %q: %w", path, err)
	}
	mono, err := toMono16(buf)
	if err != nil {
		return nil, fmt.Errorf("cue file %q: %w", path, err)
	}
	return mono, nil
}

// toMono16 averages interleaved channels and rescales to 16-bit depth.
func toMono16(buf *audio.IntBuffer) (*audio.IntBuffer, error) {
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	if buf.SourceBitDepth != 16 && buf.SourceBitDepth != 24 && buf.SourceBitDepth != 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", buf.SourceBitDepth)
	}
	shift := buf.SourceBitDepth - 16

	frames := len(buf.Data) / channels
	data := make([]int, frames)
	for f := range frames {
		sum := 0
		for _, s := range buf.Data[f*channels : (f+1)*channels] {
			sum += s >> shift
		}
		data[f] = sum / channels
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: buf.Format.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}, nil
}

// renderTones concatenates sine tones separated by cueGap of silence, each
// shaped by a raised-cosine fade so it starts and ends without a click.
func renderTones(tones []tone) *audio.IntBuffer {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: cueRate},
		SourceBitDepth: 16,
	}
	gap := samplesFor(cueGap)
	for i, t := range tones {
		if i > 0 {
			buf.Data = append(buf.Data, make([]int, gap)...)
		}
		buf.Data = append(buf.Data, sine(t)...)
	}
	return buf
}

func sine(t tone) []int {
	n := samplesFor(time.Duration(t.ms) * time.Millisecond)
	if n <= 0 || t.hz <= 0 {
		return nil
	}
	fade := min(samplesFor(cueFade), n/2)

	out := make([]int, n)
	for i := range out {
		gain := cueVolume
		if edge := min(i, n-1-i); edge < fade {
			gain *= 0.5 - 0.5*math.Cos(math.Pi*float64(edge)/float64(fade))
		}
		phase := 2 * math.Pi * t.hz * float64(i) / cueRate
		out[i] = int(math.Round(math.Sin(phase) * gain * math.MaxInt16))
	}
	return out
}

func samplesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueRate))
}

// playPulse plays buf on the default Pulse sink and blocks until it drains.
func playPulse(ctx context.Context, buf *audio.IntBuffer) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("murmur"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	next := 0
	reader := pulse.Int16Reader(func(out []int16) (int, error) {
		if ctx.Err() != nil || next >= len(buf.Data) {
			return 0, pulse.EndOfData
		}
		n := min(len(out), len(buf.Data)-next)
		for i := range n {
			out[i] = int16(buf.Data[next+i])
		}
		next += n
		if next >= len(buf.Data) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(buf.Format.SampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("murmur cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue: %w", err)
	}
	return ctx.Err()
}
