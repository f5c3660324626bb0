// Package dsp turns raw loopback sample windows into stable, perceptually
// shaped spectrum frames: Hann windowing, forward FFT, logarithmic band
// aggregation, decay smoothing and loudness normalisation.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"

	"github.com/oszuidwest/zwfm-spectrum/internal/ringbuf"
)

// Supported parameter ranges and defaults. The defaults match the original
// visualiser behaviour: a 1024-sample window split into 64 bands with a
// decay constant of 12.
const (
	MinChunkSize = 256
	MaxChunkSize = 8192
	MinBands     = 1
	MaxBands     = 64
	MaxDancy     = 64.0

	DefaultChunkSize = 1024
	DefaultBands     = 64
	DefaultDancy     = 12.0
)

const (
	// floorDB is the loudness floor; band magnitudes at or below it map
	// to 0 and full scale maps to 1.
	floorDB = -60.0
	eps     = 1e-12
)

// ValidChunkSize reports whether n is a supported analysis window length:
// a power of two within [MinChunkSize, MaxChunkSize].
func ValidChunkSize(n int) bool {
	return n >= MinChunkSize && n <= MaxChunkSize && n&(n-1) == 0
}

// ValidBands reports whether n is a supported output band count.
func ValidBands(n int) bool { return n >= MinBands && n <= MaxBands }

// ValidDancy reports whether d is within the supported decay range.
func ValidDancy(d float64) bool { return d > 0 && d <= MaxDancy }

// Analyzer computes spectrum frames from a ring buffer and owns the decay
// smoothing state for one capture session. It is not safe for concurrent
// use; callers serialize access (the monitor holds its own lock), which
// keeps the smoothing state consistent without ever blocking the capture
// writer - ring snapshots are lock-free.
type Analyzer struct {
	chunkSize int
	bands     int

	win     []float64
	winGain float64
	plan    *algofft.Plan[complex128]
	samples []float32
	in      []complex128
	out     []complex128
	mags    []float64

	edges    []int
	smoothed []float64
	last     []float64
}

// NewAnalyzer returns an analyzer for the given window length.
func NewAnalyzer(chunkSize int) (*Analyzer, error) {
	a := &Analyzer{}
	if err := a.SetChunkSize(chunkSize); err != nil {
		return nil, err
	}
	return a, nil
}

// ChunkSize returns the current analysis window length.
func (a *Analyzer) ChunkSize() int { return a.chunkSize }

// SetChunkSize reconfigures the analysis window length, rebuilding the
// window function and FFT plan. The smoothing state is reset because the
// band layout depends on the window length.
func (a *Analyzer) SetChunkSize(chunkSize int) error {
	if !ValidChunkSize(chunkSize) {
		return fmt.Errorf("unsupported chunk size %d: must be a power of two in [%d, %d]",
			chunkSize, MinChunkSize, MaxChunkSize)
	}
	if chunkSize == a.chunkSize {
		a.Reset()
		return nil
	}

	plan, err := algofft.NewPlan64(chunkSize)
	if err != nil {
		return fmt.Errorf("create FFT plan: %w", err)
	}

	win := window.Generate(window.TypeHann, chunkSize, window.WithPeriodic())
	sum := 0.0
	for _, w := range win {
		sum += w
	}

	a.chunkSize = chunkSize
	a.plan = plan
	a.win = win
	a.winGain = sum / float64(chunkSize)
	a.samples = make([]float32, chunkSize)
	a.in = make([]complex128, chunkSize)
	a.out = make([]complex128, chunkSize)
	a.mags = make([]float64, chunkSize/2+1)
	a.bands = 0 // force band layout rebuild on next frame
	return nil
}

// Reset clears the smoothing state and the last emitted frame, as required
// when a new capture session starts.
func (a *Analyzer) Reset() {
	clear(a.smoothed)
	clear(a.last)
}

// ensureBands rebuilds the band partition when the requested band count
// changes. Smoothing state is tied to the layout and starts over.
func (a *Analyzer) ensureBands(bands int) {
	if bands == a.bands {
		return
	}
	a.bands = bands
	a.edges = bandEdges(bands, a.chunkSize/2)
	a.smoothed = make([]float64, bands)
	a.last = make([]float64, bands)
}

// Frame computes one spectrum frame of the given band count from the most
// recent chunk of samples in ring. Each value is in [0, 1]. On underrun
// (fewer samples buffered than one chunk, or a persistently racing writer)
// the previous frame is returned unchanged - an all-zero frame before the
// first successful analysis - so visualisation never stalls.
//
// For identical ring contents, parameters and prior smoothing state the
// result is bit-reproducible.
func (a *Analyzer) Frame(ring *ringbuf.Ring, bands int, dancy float64) []float64 {
	a.ensureBands(bands)

	if err := ring.Snapshot(a.samples); err != nil {
		return a.lastFrame()
	}

	for i, s := range a.samples {
		a.in[i] = complex(float64(s)*a.win[i], 0)
	}
	if err := a.plan.Forward(a.out, a.in); err != nil {
		return a.lastFrame()
	}

	// Bin magnitudes normalised for FFT size and window coherent gain.
	// Interior bins are doubled to fold in the mirrored half.
	half := a.chunkSize / 2
	norm := float64(a.chunkSize) * math.Max(a.winGain, eps)
	for k := 1; k <= half; k++ {
		mag := cmplx.Abs(a.out[k]) / norm
		if k < half {
			mag *= 2
		}
		a.mags[k] = mag
	}

	decay := math.Exp(-1 / dancy)
	frame := make([]float64, bands)
	for i := range bands {
		lo, hi := a.edges[i], a.edges[i+1]
		sum := 0.0
		for k := lo; k < hi; k++ {
			sum += a.mags[k] * a.mags[k]
		}
		rms := math.Sqrt(sum / float64(hi-lo))

		db := 20 * math.Log10(math.Max(rms, eps))
		v := (db - floorDB) / -floorDB
		v = math.Min(math.Max(v, 0), 1)

		// Rise immediately, fall no faster than the decay rate. With a
		// silent input the value decreases geometrically toward zero.
		if prev := a.smoothed[i] * decay; v < prev {
			v = prev
		}
		a.smoothed[i] = v
		frame[i] = v
	}
	copy(a.last, frame)
	return frame
}

// lastFrame returns a copy of the most recently emitted frame, or an
// all-zero frame when none has been emitted yet.
func (a *Analyzer) lastFrame() []float64 {
	frame := make([]float64, a.bands)
	copy(frame, a.last)
	return frame
}
