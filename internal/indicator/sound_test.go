package indicator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rbright/murmur/internal/config"
	"github.com/stretchr/testify/require"
)

type capturedPlayer struct {
	mu      sync.Mutex
	buffers []*audio.IntBuffer
}

func (p *capturedPlayer) play(_ context.Context, buf *audio.IntBuffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffers = append(p.buffers, buf)
	return nil
}

func (p *capturedPlayer) played() []*audio.IntBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*audio.IntBuffer(nil), p.buffers...)
}

func writeCue(t *testing.T, path string, rate, channels int, data []int) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(file, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, file.Close())
}

func TestEveryCueHasBuiltInTones(t *testing.T) {
	for _, kind := range []cueKind{cueStart, cueStop, cueComplete, cueCancel} {
		buf := synthesized[kind]
		require.NotNil(t, buf, kind)
		require.NotEmpty(t, buf.Data, kind)
		require.Equal(t, cueRate, buf.Format.SampleRate)
	}
}

func TestRenderTonesLengthIncludesGaps(t *testing.T) {
	buf := renderTones([]tone{{hz: 440, ms: 50}, {hz: 660, ms: 50}})
	want := 2*samplesFor(50*time.Millisecond) + samplesFor(cueGap)
	require.Len(t, buf.Data, want)
}

func TestSineFadesInAndOut(t *testing.T) {
	samples := sine(tone{hz: 1000, ms: 40})
	require.Len(t, samples, samplesFor(40*time.Millisecond))
	require.Zero(t, samples[0])
	require.Zero(t, samples[len(samples)-1])

	peak := 0
	for _, s := range samples {
		peak = max(peak, s, -s)
	}
	volume := cueVolume
	require.LessOrEqual(t, peak, int(volume*32767)+1)
	require.Greater(t, peak, int(volume*32767*0.9))
}

func TestSineRejectsEmptyTone(t *testing.T) {
	require.Empty(t, sine(tone{hz: 0, ms: 50}))
	require.Empty(t, sine(tone{hz: 440, ms: 0}))
}

func TestCueFileExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := config.IndicatorConfig{SoundStopFile: " ~/cues/stop.wav ", SoundCancelFile: "/abs/cancel.wav"}
	require.Equal(t, filepath.Join(home, "cues", "stop.wav"), cueFile(cueStop, cfg))
	require.Equal(t, "/abs/cancel.wav", cueFile(cueCancel, cfg))
	require.Empty(t, cueFile(cueStart, cfg))
}

func TestDecodeCueDownmixesStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cue.wav")
	writeCue(t, path, 22050, 2, []int{100, 300, -50, -150})

	buf, err := decodeCue(path)
	require.NoError(t, err)
	require.Equal(t, 22050, buf.Format.SampleRate)
	require.Equal(t, 1, buf.Format.NumChannels)
	require.Equal(t, []int{200, -100}, buf.Data)
}

func TestToMono16ScalesHighBitDepth(t *testing.T) {
	buf, err := toMono16(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 48000},
		Data:           []int{1 << 16, -(1 << 16)},
		SourceBitDepth: 32,
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, -1}, buf.Data)

	_, err = toMono16(&audio.IntBuffer{Format: &audio.Format{NumChannels: 1}, SourceBitDepth: 12})
	require.ErrorContains(t, err, "bit depth 12")
}

func TestEmitCuePrefersConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "done.wav")
	writeCue(t, path, 8000, 1, []int{5, 6, 7})

	p := &capturedPlayer{}
	require.NoError(t, emitCue(context.Background(), cueComplete, config.IndicatorConfig{SoundCompleteFile: path}, p.play))

	played := p.played()
	require.Len(t, played, 1)
	require.Equal(t, []int{5, 6, 7}, played[0].Data)
	require.Equal(t, 8000, played[0].Format.SampleRate)
}

func TestEmitCueFallsBackToTonesWhenFileIsBroken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o600))

	p := &capturedPlayer{}
	require.NoError(t, emitCue(context.Background(), cueStart, config.IndicatorConfig{SoundStartFile: path}, p.play))

	played := p.played()
	require.Len(t, played, 1)
	require.Same(t, synthesized[cueStart], played[0])
}

func TestEmitCueRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &capturedPlayer{}
	require.ErrorIs(t, emitCue(ctx, cueStart, config.IndicatorConfig{}, p.play), context.Canceled)
	require.Empty(t, p.played())
}

func TestCueCacheReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cue.wav")
	writeCue(t, path, 16000, 1, []int{1, 2})

	cache := &cueCache{entries: map[string]cachedCue{}}
	first, err := cache.load(path)
	require.NoError(t, err)
	again, err := cache.load(path)
	require.NoError(t, err)
	require.Same(t, first, again)

	writeCue(t, path, 16000, 1, []int{3, 4})
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	reloaded, err := cache.load(path)
	require.NoError(t, err)
	require.Equal(t, []int{3, 4}, reloaded.Data)
}

func TestNotifierPlaysCuesThroughPlayer(t *testing.T) {
	p := &capturedPlayer{}
	n := NewNotifier(config.IndicatorConfig{SoundEnable: true}, nil)
	n.play = p.play

	n.CueStop(context.Background())
	n.CueCancel(context.Background())
	n.Wait()

	played := p.played()
	require.Len(t, played, 2)
	require.ElementsMatch(t, []*audio.IntBuffer{synthesized[cueStop], synthesized[cueCancel]}, played)
}
