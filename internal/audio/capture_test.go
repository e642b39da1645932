package audio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFramerCarriesRemainderAcrossPushes(t *testing.T) {
	f := framer{size: 4}

	require.Empty(t, f.push([]byte{1, 2, 3}))
	frames := f.push([]byte{4, 5, 6, 7, 8, 9, 10})
	require.Equal(t, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}, frames)

	frames[0][0] = 99
	require.Equal(t, []byte{9, 10}, f.flush())
	require.Nil(t, f.flush())
	require.Equal(t, [][]byte{{11, 12, 13, 14}}, f.push([]byte{11, 12, 13, 14}))
}

func TestCaptureEmitsTwentyMillisecondChunksThenTail(t *testing.T) {
	c := newCapture(Device{ID: "mic"})

	n, err := c.onPCM(make([]byte, chunkSizeBytes+100))
	require.NoError(t, err)
	require.Equal(t, chunkSizeBytes+100, n)
	require.Equal(t, int64(chunkSizeBytes+100), c.BytesCaptured())
	require.Len(t, <-c.Chunks(), chunkSizeBytes)

	require.NoError(t, c.Stop())
	require.Len(t, <-c.Chunks(), 100)
	_, open := <-c.Chunks()
	require.False(t, open)
	require.Equal(t, "mic", c.Device().ID)
}

func TestStoppedCaptureRefusesPCM(t *testing.T) {
	c := newCapture(Device{})
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())

	n, err := c.onPCM([]byte{1, 2})
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, n)
	require.Zero(t, c.BytesCaptured())
}

func TestCaptureIgnoresEmptyWrites(t *testing.T) {
	c := newCapture(Device{})
	n, err := c.onPCM(nil)
	require.NoError(t, err)
	require.Zero(t, n)

	c.Close()
	_, open := <-c.Chunks()
	require.False(t, open, "no tail after empty writes")
}
