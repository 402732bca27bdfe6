package flow

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// Filter smooths raw translations before scaling.
type Filter interface {
	Apply(x, y float64) (float64, float64, error)
	Reset()
}

const (
	FilterNone   = "none"
	FilterEMA    = "ema"
	FilterKalman = "kalman"
)

// NewFilter builds a filter by name. FilterNone returns nil, which keeps the
// calibrated output byte-for-byte identical to the unfiltered stream.
func NewFilter(name string, alpha float64) (Filter, error) {
	switch name {
	case FilterNone, "":
		return nil, nil
	case FilterEMA:
		if alpha <= 0 || alpha > 1 {
			return nil, errors.Errorf("ema alpha must be in (0, 1], got %v", alpha)
		}
		return &EMAFilter{Alpha: alpha}, nil
	case FilterKalman:
		return NewKalmanFilter(), nil
	}
	return nil, errors.Errorf("unknown filter %q", name)
}

// EMAFilter is a first-order exponential low-pass.
type EMAFilter struct {
	Alpha float64

	x, y   float64
	primed bool
}

func (f *EMAFilter) Apply(x, y float64) (float64, float64, error) {
	if !f.primed {
		f.x, f.y, f.primed = x, y, true
		return x, y, nil
	}
	f.x += f.Alpha * (x - f.x)
	f.y += f.Alpha * (y - f.y)
	return f.x, f.y, nil
}

func (f *EMAFilter) Reset() { f.primed = false }

/* Kalman filter props */
const (
	kalmanDt       = 1.0 // one step per acquisition cycle
	kalmanStdDevA  = 2.0
	kalmanStdDevMx = 0.5
	kalmanStdDevMy = 0.5
)

// KalmanFilter tracks the translation with a constant-velocity 2D model.
type KalmanFilter struct {
	kf *kalman_filter.Kalman2D
}

func NewKalmanFilter() *KalmanFilter {
	return &KalmanFilter{}
}

func (f *KalmanFilter) Apply(x, y float64) (float64, float64, error) {
	if f.kf == nil {
		f.kf = kalman_filter.NewKalman2D(kalmanDt, 0, 0, kalmanStdDevA, kalmanStdDevMx, kalmanStdDevMy, kalman_filter.WithState2D(x, y))
		return x, y, nil
	}
	f.kf.Predict()
	if err := f.kf.Update(x, y); err != nil {
		return x, y, errors.Wrap(err, "Can't update flow tracker")
	}
	sx, sy := f.kf.GetState()
	return sx, sy, nil
}

func (f *KalmanFilter) Reset() { f.kf = nil }
