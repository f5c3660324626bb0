package capture

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-spectrum/internal/ringbuf"
)

// frames packs interleaved float32 samples into a little-endian delivery block.
func frames(samples ...float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// testEngine builds an engine around a ring without touching any audio
// backend; only the conversion path is exercised.
func testEngine(channels, scratch int) *Engine {
	return &Engine{
		ring:     ringbuf.New(64),
		channels: channels,
		mono:     make([]float32, scratch),
	}
}

func TestConsumeMonoPassthrough(t *testing.T) {
	e := testEngine(1, 16)
	e.consume(frames(0.25, -0.5, 1), 3)

	dst := make([]float32, 3)
	require.NoError(t, e.ring.Snapshot(dst))
	assert.Equal(t, []float32{0.25, -0.5, 1}, dst)
}

func TestConsumeDownmixesStereo(t *testing.T) {
	e := testEngine(2, 16)
	// Two frames: (0.5, 1.0) and (-1.0, 0.0).
	e.consume(frames(0.5, 1.0, -1.0, 0.0), 2)

	dst := make([]float32, 2)
	require.NoError(t, e.ring.Snapshot(dst))
	assert.Equal(t, []float32{0.75, -0.5}, dst)
}

func TestConsumeDownmixesSurround(t *testing.T) {
	e := testEngine(4, 16)
	e.consume(frames(1, 1, 0, 0), 1)

	dst := make([]float32, 1)
	require.NoError(t, e.ring.Snapshot(dst))
	assert.Equal(t, []float32{0.5}, dst)
}

func TestConsumeOversizedBlockKeepsNewestTail(t *testing.T) {
	e := testEngine(1, 4)
	e.consume(frames(1, 2, 3, 4, 5, 6), 6)

	assert.Equal(t, uint64(1), e.Overruns())
	dst := make([]float32, 4)
	require.NoError(t, e.ring.Snapshot(dst))
	assert.Equal(t, []float32{3, 4, 5, 6}, dst, "old history is dropped, newest kept")

	// Another oversized block counts again.
	e.consume(frames(7, 8, 9, 10, 11), 5)
	assert.Equal(t, uint64(2), e.Overruns())
}

func TestConsumeEmptyBlock(t *testing.T) {
	e := testEngine(2, 16)
	e.consume(nil, 0)
	assert.Zero(t, e.ring.Written())
}

func TestOnFramesIgnoredWhileClosing(t *testing.T) {
	e := testEngine(1, 16)
	e.closing.Store(true)
	e.onFrames(nil, frames(1, 2, 3), 3)
	assert.Zero(t, e.ring.Written())
}

func TestOnStopMarksDeviceLost(t *testing.T) {
	e := testEngine(1, 16)
	assert.False(t, e.Lost())

	e.onStop()
	assert.True(t, e.Lost())
}

func TestOnStopDuringCloseIsNotALoss(t *testing.T) {
	e := testEngine(1, 16)
	e.closing.Store(true)
	e.onStop()
	assert.False(t, e.Lost())
}
