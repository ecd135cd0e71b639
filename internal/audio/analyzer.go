package audio

import (
	"math"
	"sync"
)

// AnalyzerWindow is the number of samples examined per volume reading.
const AnalyzerWindow = 256

// Analyzer derives a presentational volume level from the most recently
// played audio. Playback feeds it samples as segments are emitted; the
// animation tick reads Volume at its own cadence. It never influences
// scheduling.
type Analyzer struct {
	mu     sync.Mutex
	window [AnalyzerWindow]float32
	pos    int
	filled bool
}

// NewAnalyzer creates an analyzer with an empty window.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Write records samples into the sliding window.
func (a *Analyzer) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.window[a.pos] = s
		a.pos = (a.pos + 1) % AnalyzerWindow
		if a.pos == 0 {
			a.filled = true
		}
	}
}

// Reset clears the window, dropping the level to zero.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = [AnalyzerWindow]float32{}
	a.pos = 0
	a.filled = false
}

// Volume returns the average magnitude of the window's frequency
// spectrum, normalized and clamped to [0, 1].
func (a *Analyzer) Volume() float64 {
	a.mu.Lock()
	var window [AnalyzerWindow]float32
	copy(window[:], a.window[:])
	filled := a.filled || a.pos > 0
	a.mu.Unlock()

	if !filled {
		return 0
	}

	// Direct DFT over a short window; the per-tick cost is negligible
	// and avoids pulling in an FFT dependency for a cosmetic signal.
	bins := AnalyzerWindow / 2
	sum := 0.0
	for k := 1; k <= bins; k++ {
		var re, im float64
		w := 2 * math.Pi * float64(k) / AnalyzerWindow
		for n := 0; n < AnalyzerWindow; n++ {
			s := float64(window[n])
			re += s * math.Cos(w*float64(n))
			im -= s * math.Sin(w*float64(n))
		}
		sum += math.Sqrt(re*re+im*im) / AnalyzerWindow
	}
	level := sum / float64(bins) * 8
	if level > 1 {
		level = 1
	}
	return level
}

// RMS returns the root mean square of a sample block. Exposed for level
// metering and tests.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
