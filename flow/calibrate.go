package flow

import (
	"math"

	"go.neose-cxof-flow.gocv-driver/cxof"
	"go.neose-cxof-flow.gocv-driver/logging"
)

// Default gains for the 64x32 OpenMV-style optics. The gain doubles as the
// noise filter: sub-pixel accuracy below 1/gain pixel is dropped.
const (
	DefaultGainX = 35
	DefaultGainY = 53
)

// Status tags a Measurement as a real estimate or a fallback.
type Status byte

const (
	Valid Status = iota
	Degraded
)

func (s Status) String() string {
	if s == Degraded {
		return "degraded"
	}
	return "valid"
}

// Measurement is a calibrated flow sample. Valid and degraded measurements
// encode identically; Status only exists for local consumers.
type Measurement struct {
	cxof.Measurement
	Status    Status
	Saturated bool
}

// Calibration holds the per-deployment scaling parameters.
type Calibration struct {
	GainX   float64
	GainY   float64
	InvertX bool
	InvertY bool

	// WrapOverflow truncates out-of-range values to 16 bits the way a plain
	// integer cast does, instead of clamping them.
	WrapOverflow bool
}

// DefaultCalibration matches a camera mounted with its x axis opposite to
// the flight controller's.
func DefaultCalibration() Calibration {
	return Calibration{
		GainX:   DefaultGainX,
		GainY:   DefaultGainY,
		InvertX: true,
	}
}

// Calibrator converts registration results into protocol units.
type Calibrator struct {
	cal         Calibration
	filter      Filter
	saturations uint64
}

// NewCalibrator returns a calibrator. filter may be nil.
func NewCalibrator(cal Calibration, filter Filter) *Calibrator {
	return &Calibrator{cal: cal, filter: filter}
}

func (c *Calibrator) Calibrate(r Result) Measurement {
	if r.Degraded {
		return Measurement{Status: Degraded}
	}

	x, y := r.XTranslation, r.YTranslation
	if c.filter != nil {
		fx, fy, err := c.filter.Apply(x, y)
		if err != nil {
			logging.WARNINGLogger.Printf("flow filter: %v; resetting", err)
			c.filter.Reset()
		} else {
			x, y = fx, fy
		}
	}

	dx, satX := c.toInt16(scale(x, c.cal.GainX, c.cal.InvertX))
	dy, satY := c.toInt16(scale(y, c.cal.GainY, c.cal.InvertY))

	m := Measurement{
		Measurement: cxof.Measurement{
			DX:      dx,
			DY:      dy,
			Quality: uint8(math.Round(255 * clamp(r.Confidence, 0, 1))),
		},
		Status:    Valid,
		Saturated: satX || satY,
	}
	if m.Saturated {
		c.saturations++
		logging.DEBUGLogger.Printf("flow saturated: x=%.3f y=%.3f", x, y)
	}
	return m
}

// Saturations is the number of measurements that hit the int16 range.
func (c *Calibrator) Saturations() uint64 { return c.saturations }

func scale(v, gain float64, invert bool) float64 {
	if invert {
		gain = -gain
	}
	return math.Round(gain * v)
}

func (c *Calibrator) toInt16(v float64) (int16, bool) {
	if v >= math.MinInt16 && v <= math.MaxInt16 {
		return int16(v), false
	}
	if c.cal.WrapOverflow {
		return int16(int32(math.Mod(v, 1<<16))), true
	}
	if v > 0 {
		return math.MaxInt16, true
	}
	return math.MinInt16, true
}
