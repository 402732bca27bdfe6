package pipeline

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// CycleStats accumulates cycle durations over a reporting window.
type CycleStats struct {
	window []float64 // milliseconds
	total  uint64
}

func NewCycleStats(size int) *CycleStats {
	return &CycleStats{window: make([]float64, 0, size)}
}

func (s *CycleStats) Add(d time.Duration) {
	s.window = append(s.window, float64(d)/float64(time.Millisecond))
	s.total++
}

func (s *CycleStats) Len() int { return len(s.window) }

func (s *CycleStats) Total() uint64 { return s.total }

// Summary returns the mean and standard deviation of the window in
// milliseconds, and the frame rate implied by the mean.
func (s *CycleStats) Summary() (meanMs, stdDevMs, fps float64) {
	switch len(s.window) {
	case 0:
		return 0, 0, 0
	case 1:
		meanMs = s.window[0]
	default:
		meanMs, stdDevMs = stat.MeanStdDev(s.window, nil)
	}
	if meanMs > 0 {
		fps = 1000 / meanMs
	}
	return meanMs, stdDevMs, fps
}

// Reset starts a new window.
func (s *CycleStats) Reset() {
	s.window = s.window[:0]
}
