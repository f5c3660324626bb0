package dsp

import "math"

// bandEdges returns bands+1 bin indices partitioning the usable FFT bins
// [1, half] (the DC bin is excluded) into logarithmically spaced bands:
// band i covers bins [edges[i], edges[i+1]). Low bands span few bins, high
// bands many, mirroring perceived loudness distribution. The edges are
// forced strictly increasing so every band owns at least one bin and the
// partition has no gaps or overlaps. Requires half >= bands.
func bandEdges(bands, half int) []int {
	edges := make([]int, bands+1)
	edges[0] = 1
	edges[bands] = half + 1

	lo, hi := 1.0, float64(half+1)
	for i := 1; i < bands; i++ {
		e := int(math.Round(lo * math.Pow(hi/lo, float64(i)/float64(bands))))
		if e <= edges[i-1] {
			e = edges[i-1] + 1
		}
		edges[i] = e
	}
	// Rounding near the top can overshoot; push edges back down so the
	// sequence stays strictly increasing up to half+1.
	for i := bands - 1; i >= 1; i-- {
		if edges[i] >= edges[i+1] {
			edges[i] = edges[i+1] - 1
		}
	}
	return edges
}
