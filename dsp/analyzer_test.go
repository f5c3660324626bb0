package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-spectrum/internal/ringbuf"
)

// sineChunk fills a chunk with a full-scale sine landing exactly on FFT bin k.
func sineChunk(chunkSize, bin int) []float32 {
	samples := make([]float32, chunkSize)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * float64(bin) * float64(i) / float64(chunkSize)))
	}
	return samples
}

func TestNewAnalyzerRejectsInvalidChunkSize(t *testing.T) {
	for _, n := range []int{0, 128, 255, 1000, 16384} {
		_, err := NewAnalyzer(n)
		assert.Error(t, err, "chunk size %d", n)
	}
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidChunkSize(256))
	assert.True(t, ValidChunkSize(8192))
	assert.False(t, ValidChunkSize(3000))
	assert.True(t, ValidBands(1))
	assert.True(t, ValidBands(64))
	assert.False(t, ValidBands(65))
	assert.True(t, ValidDancy(0.5))
	assert.False(t, ValidDancy(0))
	assert.False(t, ValidDancy(65))
}

func TestFrameShapeAndRange(t *testing.T) {
	a, err := NewAnalyzer(1024)
	require.NoError(t, err)

	ring := ringbuf.New(4096)
	ring.Write(sineChunk(1024, 7))

	frame := a.Frame(ring, 16, DefaultDancy)
	require.Len(t, frame, 16)
	for i, v := range frame {
		assert.GreaterOrEqual(t, v, 0.0, "band %d", i)
		assert.LessOrEqual(t, v, 1.0, "band %d", i)
	}
}

func TestFrameIsDeterministic(t *testing.T) {
	ring := ringbuf.New(4096)
	ring.Write(sineChunk(1024, 12))

	a1, err := NewAnalyzer(1024)
	require.NoError(t, err)
	a2, err := NewAnalyzer(1024)
	require.NoError(t, err)

	f1 := a1.Frame(ring, 32, DefaultDancy)
	f2 := a2.Frame(ring, 32, DefaultDancy)
	assert.Equal(t, f1, f2, "identical input and state must give identical frames")
}

func TestFrameUnderrunReturnsLastFrame(t *testing.T) {
	a, err := NewAnalyzer(1024)
	require.NoError(t, err)

	ring := ringbuf.New(4096)
	ring.Write(make([]float32, 100)) // far less than one chunk

	frame := a.Frame(ring, 8, DefaultDancy)
	assert.Equal(t, make([]float64, 8), frame, "before the first analysis the frame is all zeros")

	// Once a chunk is available, the frame sticks through later underruns.
	ring.Write(sineChunk(1024, 5))
	first := a.Frame(ring, 8, DefaultDancy)

	empty := ringbuf.New(4096)
	again := a.Frame(empty, 8, DefaultDancy)
	assert.Equal(t, first, again)
}

func TestFrameLocatesSineEnergy(t *testing.T) {
	a, err := NewAnalyzer(1024)
	require.NoError(t, err)

	ring := ringbuf.New(4096)
	ring.Write(sineChunk(1024, 3))

	frame := a.Frame(ring, 16, DefaultDancy)

	maxIdx := 0
	for i, v := range frame {
		if v > frame[maxIdx] {
			maxIdx = i
		}
	}
	// Bin 3 of 512 usable bins sits in the low end of a 16-band log layout.
	assert.Less(t, maxIdx, 8, "low-frequency sine must peak in a low band")
	assert.Greater(t, frame[maxIdx], 0.5, "full-scale sine must register well above the floor")
}

func TestFrameDecaysTowardZeroOnSilence(t *testing.T) {
	a, err := NewAnalyzer(1024)
	require.NoError(t, err)

	ring := ringbuf.New(4096)
	ring.Write(sineChunk(1024, 4))

	dancy := 8.0
	loud := a.Frame(ring, 8, dancy)

	// Silence from here on; values must fall geometrically, never rise.
	ring.Write(make([]float32, 1024))
	decay := math.Exp(-1 / dancy)

	prev := loud
	for range 5 {
		next := a.Frame(ring, 8, dancy)
		for i := range next {
			assert.LessOrEqual(t, next[i], prev[i], "band %d must not rise on silence", i)
			if prev[i] > 0.1 {
				assert.InDelta(t, prev[i]*decay, next[i], 1e-9,
					"band %d must fall at the decay rate", i)
			}
		}
		prev = next
	}
}

func TestFrameRisesImmediately(t *testing.T) {
	a, err := NewAnalyzer(1024)
	require.NoError(t, err)

	ring := ringbuf.New(4096)
	ring.Write(make([]float32, 1024))
	quiet := a.Frame(ring, 8, DefaultDancy)

	ring.Write(sineChunk(1024, 4))
	loud := a.Frame(ring, 8, DefaultDancy)

	peak := 0.0
	for _, v := range loud {
		peak = math.Max(peak, v)
	}
	quietPeak := 0.0
	for _, v := range quiet {
		quietPeak = math.Max(quietPeak, v)
	}
	assert.Greater(t, peak, quietPeak+0.3, "attack is not smoothed")
}

func TestSetChunkSizeResetsSmoothing(t *testing.T) {
	a, err := NewAnalyzer(1024)
	require.NoError(t, err)

	ring := ringbuf.New(32768)
	ring.Write(sineChunk(1024, 4))
	a.Frame(ring, 8, DefaultDancy)

	// Same size: smoothing state restarts.
	require.NoError(t, a.SetChunkSize(1024))
	silent := ringbuf.New(4096)
	silent.Write(make([]float32, 1024))
	frame := a.Frame(silent, 8, DefaultDancy)
	for i, v := range frame {
		assert.Less(t, v, 1e-6, "band %d must not carry smoothing across a reset", i)
	}

	// Different size: plan and window are rebuilt.
	require.NoError(t, a.SetChunkSize(2048))
	assert.Equal(t, 2048, a.ChunkSize())
	ring.Write(sineChunk(2048, 4))
	frame = a.Frame(ring, 8, DefaultDancy)
	require.Len(t, frame, 8)
}

func TestChangingBandCountRebuildsLayout(t *testing.T) {
	a, err := NewAnalyzer(1024)
	require.NoError(t, err)

	ring := ringbuf.New(4096)
	ring.Write(sineChunk(1024, 4))

	assert.Len(t, a.Frame(ring, 8, DefaultDancy), 8)
	assert.Len(t, a.Frame(ring, 64, DefaultDancy), 64)
	assert.Len(t, a.Frame(ring, 1, DefaultDancy), 1)
}
