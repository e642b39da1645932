package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/rbright/murmur/internal/speecherr"
)

// Capture format shared by every consumer: 16kHz mono signed 16-bit little endian.
const (
	SampleRate     = 16000
	Channels       = 1
	BitsPerSample  = 16
	chunkSizeBytes = 640 // 20ms
)

// framer cuts an arbitrary byte stream into size-byte frames and keeps the
// remainder for the next push.
type framer struct {
	size    int
	pending []byte
}

func (f *framer) push(b []byte) [][]byte {
	f.pending = append(f.pending, b...)
	frames := make([][]byte, 0, len(f.pending)/f.size)
	for len(f.pending) >= f.size {
		frames = append(frames, append([]byte(nil), f.pending[:f.size]...))
		f.pending = f.pending[f.size:]
	}
	return frames
}

// flush returns the short tail, if any, and resets the framer.
func (f *framer) flush() []byte {
	tail := f.pending
	f.pending = nil
	if len(tail) == 0 {
		return nil
	}
	return tail
}

// Capture streams fixed-size PCM chunks from one selected Pulse source.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	chunks    chan []byte
	stopCh    chan struct{}
	stopWatch func() bool

	mu      sync.Mutex
	frames  framer
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

func newCapture(device Device) *Capture {
	return &Capture{
		device: device,
		chunks: make(chan []byte, 128),
		stopCh: make(chan struct{}),
		frames: framer{size: chunkSizeBytes},
	}
}

// StartCapture opens and starts a record stream on selected. The stream stops
// when ctx is cancelled or Stop is called.
func StartCapture(ctx context.Context, selected Device) (*Capture, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, deviceErr(speecherr.SignalNotFoundError, "resolve source %q: %w", selected.ID, err)
	}

	c := newCapture(selected)
	c.client = client
	c.stream, err = client.NewRecord(
		pulse.NewWriter(writerFunc(c.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("murmur dictation"),
	)
	if err != nil {
		c.Close()
		return nil, deviceErr(speecherr.SignalTrackStartError, "create pulse record stream: %w", err)
	}

	c.stream.Start()
	c.stopWatch = context.AfterFunc(ctx, c.Close)
	return c, nil
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device { return c.device }

// Chunks yields chunkSizeBytes frames; the final one may be shorter. It is
// closed by Stop.
func (c *Capture) Chunks() <-chan []byte { return c.chunks }

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 { return c.bytes.Load() }

// Stop halts the stream, emits the buffered tail, and closes Chunks. Repeated
// calls are no-ops.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stopWatch != nil {
		c.stopWatch()
	}
	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	// No onPCM call can be running past this point.
	c.inflight.Wait()

	if tail := c.frames.flush(); tail != nil {
		select {
		case c.chunks <- tail:
		default:
		}
	}
	close(c.chunks)
	return nil
}

// Close stops the capture, discarding the error.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM is the Pulse writer callback. It returns io.EOF once stopped so the
// record stream winds down.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	c.inflight.Add(1)
	defer c.inflight.Done()
	frames := c.frames.push(buffer)
	c.mu.Unlock()

	c.bytes.Add(int64(len(buffer)))
	for _, frame := range frames {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.chunks <- frame:
		}
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// Stream is a running PCM capture.
type Stream interface {
	Chunks() <-chan []byte
	Stop() error
}

// Source opens PCM streams.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(context.Context) (Stream, error)

func (f SourceFunc) Open(ctx context.Context) (Stream, error) {
	return f(ctx)
}

// Microphone opens captures on the configured input with fallback policy.
type Microphone struct {
	Input    string
	Fallback string

	// OnSelect, when set, observes each resolved selection (for fallback warnings).
	OnSelect func(Selection)
}

// Open selects a device and starts capturing from it.
func (m Microphone) Open(ctx context.Context) (*Capture, error) {
	selection, err := SelectDevice(ctx, m.Input, m.Fallback)
	if err != nil {
		return nil, err
	}
	if m.OnSelect != nil {
		m.OnSelect(selection)
	}
	capture, err := StartCapture(ctx, selection.Device)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", selection.Device.ID, err)
	}
	return capture, nil
}

// Source exposes m as a Source of PCM streams.
func (m Microphone) Source() Source {
	return SourceFunc(func(ctx context.Context) (Stream, error) {
		capture, err := m.Open(ctx)
		if err != nil {
			return nil, err
		}
		return capture, nil
	})
}

// Preflight acquires the microphone and releases it immediately.
func (m Microphone) Preflight(ctx context.Context) error {
	capture, err := m.Open(ctx)
	if err != nil {
		return err
	}
	return capture.Stop()
}
