package phasecorr

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"go.neose-cxof-flow.gocv-driver/flow"
)

// DefaultMinContrast is the luminance standard deviation below which a
// frame is considered texture-less.
const DefaultMinContrast = 1.0

// Registrar estimates the translation between two frames with OpenCV's
// phase correlation. The response is the normalized correlation peak in
// [0, 1]; shifts larger than MaxShift of the frame size are rejected.
type Registrar struct {
	// MaxShift is the largest accepted shift as a fraction of the frame
	// dimension. Phase correlation aliases beyond half the frame.
	MaxShift float64
	// MinContrast rejects frames whose luminance standard deviation is
	// lower. A windowed flat frame correlates perfectly with itself.
	MinContrast float64

	window gocv.Mat
	size   image.Point
}

func New() *Registrar {
	return &Registrar{MaxShift: 0.5, MinContrast: DefaultMinContrast, window: gocv.NewMat()}
}

// Close releases the cached Hanning window.
func (r *Registrar) Close() error {
	return r.window.Close()
}

func (r *Registrar) ComputeDisplacement(prev, curr *flow.Frame) (flow.Displacement, error) {
	if !prev.SameShape(curr) {
		return flow.Displacement{}, flow.ErrFrameMismatch
	}

	for _, f := range []*flow.Frame{prev, curr} {
		if c := contrast(f); c < r.MinContrast {
			return flow.Displacement{}, errors.Wrapf(flow.ErrNoDisplacement, "low texture (contrast %.2f)", c)
		}
	}

	a, err := toFloatMat(prev)
	if err != nil {
		return flow.Displacement{}, err
	}
	defer a.Close()
	b, err := toFloatMat(curr)
	if err != nil {
		return flow.Displacement{}, err
	}
	defer b.Close()

	size := image.Pt(prev.Width, prev.Height)
	if r.window.Empty() || r.size != size {
		window, err := hanningWindow(size.X, size.Y)
		if err != nil {
			return flow.Displacement{}, err
		}
		r.window.Close()
		r.window = window
		r.size = size
	}

	shift, response := gocv.PhaseCorrelate(a, b, r.window)
	x, y := float64(shift.X), float64(shift.Y)

	if math.IsNaN(response) || response <= 0 {
		return flow.Displacement{}, errors.Wrap(flow.ErrNoDisplacement, "no correlation peak")
	}
	if math.Abs(x) > r.MaxShift*float64(prev.Width) || math.Abs(y) > r.MaxShift*float64(prev.Height) {
		return flow.Displacement{}, errors.Wrapf(flow.ErrNoDisplacement, "shift %.2f,%.2f out of range", x, y)
	}

	return flow.Displacement{X: x, Y: y, Response: response}, nil
}

// toFloatMat copies the frame's luminance into a new CV_32F matrix.
func toFloatMat(f *flow.Frame) (gocv.Mat, error) {
	gray := f.Gray()
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC1, gray.Pix)
	if err != nil {
		return mat, errors.Wrap(err, "frame to mat")
	}
	defer mat.Close()

	out := gocv.NewMat()
	mat.ConvertTo(&out, gocv.MatTypeCV32F)
	return out, nil
}

func contrast(f *flow.Frame) float64 {
	gray := f.Gray()
	values := make([]float64, len(gray.Pix))
	for i, v := range gray.Pix {
		values[i] = float64(v)
	}
	_, std := stat.MeanStdDev(values, nil)
	return std
}

// hanning returns the n-point Hann window 0.5*(1-cos(2*pi*i/(n-1))).
func hanning(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// hanningWindow builds the 2D window as the outer product of a row and a
// column window, in the CV_32F layout PhaseCorrelate expects.
func hanningWindow(width, height int) (gocv.Mat, error) {
	cols, rows := hanning(width), hanning(height)
	buf := make([]byte, 4*width*height)
	for y, wy := range rows {
		for x, wx := range cols {
			binary.LittleEndian.PutUint32(buf[4*(y*width+x):], math.Float32bits(float32(wy*wx)))
		}
	}
	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV32F, buf)
	if err != nil {
		return mat, errors.Wrap(err, "hanning window")
	}
	// NewMatFromBytes may alias buf
	defer mat.Close()
	return mat.Clone(), nil
}
