package flow

import (
	"math"

	"go.neose-cxof-flow.gocv-driver/logging"
)

// Displacement is the raw output of an image-registration primitive.
type Displacement struct {
	X        float64
	Y        float64
	Response float64
}

// Registrar computes the sub-pixel translation between two same-sized
// frames. Implementations must not modify either frame.
type Registrar interface {
	ComputeDisplacement(prev, curr *Frame) (Displacement, error)
}

// Result is a registration outcome ready for calibration. Degraded results
// always carry zero translation and zero confidence.
type Result struct {
	XTranslation float64
	YTranslation float64
	Confidence   float64
	Degraded     bool
}

// Estimator turns registrar output into a Result, never failing the cycle.
type Estimator struct {
	registrar   Registrar
	minResponse float64
}

// NewEstimator wraps r. Responses below minResponse are reported as
// degraded; zero keeps every computed displacement.
func NewEstimator(r Registrar, minResponse float64) *Estimator {
	return &Estimator{registrar: r, minResponse: minResponse}
}

func (e *Estimator) Estimate(prev, curr *Frame) Result {
	d, err := e.registrar.ComputeDisplacement(prev, curr)
	if err != nil {
		logging.DEBUGLogger.Printf("registration failed: %v", err)
		return Result{Degraded: true}
	}
	if !finite(d.X) || !finite(d.Y) || !finite(d.Response) {
		logging.DEBUGLogger.Printf("registration returned non-finite values: %+v", d)
		return Result{Degraded: true}
	}
	if e.minResponse > 0 && d.Response < e.minResponse {
		return Result{Degraded: true}
	}

	return Result{
		XTranslation: d.X,
		YTranslation: d.Y,
		Confidence:   clamp(d.Response, 0, 1),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
