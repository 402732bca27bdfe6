package sensor

import (
	"bufio"
	"image"
	"io"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"go.neose-cxof-flow.gocv-driver/flow"
	"go.neose-cxof-flow.gocv-driver/logging"
)

// Sensor is the image source feeding the acquisition loop.
type Sensor interface {
	Configure(format flow.PixelFormat, width, height int) error
	Warmup(d time.Duration) error
	// Capture blocks for the next frame. The returned frame is reused by the
	// following Capture call.
	Capture() (*flow.Frame, error)
	Close() error
}

// Layout is the pixel layout of the raw byte stream.
type Layout byte

const (
	// Gray8 is one luminance byte per pixel.
	Gray8 Layout = iota
	// I420 is planar YUV 4:2:0: a full luma plane followed by quarter-size
	// U and V planes. This is what libcamera-vid emits with --codec yuv420.
	I420
)

// FrameBytes is the size of one raw frame of w x h pixels.
func (l Layout) FrameBytes(w, h int) int {
	if l == I420 {
		cw, ch := (w+1)/2, (h+1)/2
		return w*h + 2*cw*ch
	}
	return w * h
}

// StreamSensor decodes fixed-size raw frames from a byte stream and scales
// them to the configured frame size.
type StreamSensor struct {
	r      *bufio.Reader
	closer io.Closer

	layout Layout
	srcW   int
	srcH   int
	buf    []byte

	frame  *flow.Frame
	gray   *image.Gray
	rgba   *image.RGBA
	scaler draw.Scaler
}

// NewStreamSensor reads srcW x srcH frames in the given layout from r. If r
// is an io.Closer it is closed with the sensor.
func NewStreamSensor(r io.Reader, layout Layout, srcW, srcH int) *StreamSensor {
	s := &StreamSensor{
		r:      bufio.NewReader(r),
		layout: layout,
		srcW:   srcW,
		srcH:   srcH,
		buf:    make([]byte, layout.FrameBytes(srcW, srcH)),
		scaler: draw.ApproxBiLinear,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *StreamSensor) Configure(format flow.PixelFormat, width, height int) error {
	if format != flow.Grayscale && format != flow.RGB565 {
		return errors.Wrapf(ErrUnsupportedFormat, "%s", format)
	}
	if format == flow.RGB565 && s.layout != I420 {
		return errors.Wrap(ErrUnsupportedFormat, "rgb565 needs a colour source")
	}

	frame, err := flow.NewFrame(width, height, format)
	if err != nil {
		return err
	}
	s.frame = frame
	rect := image.Rect(0, 0, width, height)
	if format == flow.Grayscale {
		s.gray = &image.Gray{Pix: frame.Pix, Stride: width, Rect: rect}
		s.rgba = nil
	} else {
		s.gray = nil
		s.rgba = image.NewRGBA(rect)
	}
	logging.INFOLogger.Printf("Sensor configured: %s %dx%d from %dx%d source", format, width, height, s.srcW, s.srcH)
	return nil
}

// Warmup discards frames until d has elapsed, letting exposure settle.
func (s *StreamSensor) Warmup(d time.Duration) error {
	deadline := time.Now().Add(d)
	skipped := 0
	for time.Now().Before(deadline) {
		if err := s.readRaw(); err != nil {
			return errors.Wrap(err, "warmup")
		}
		skipped++
	}
	logging.DEBUGLogger.Printf("Warmup skipped %d frames", skipped)
	return nil
}

func (s *StreamSensor) Capture() (*flow.Frame, error) {
	if s.frame == nil {
		return nil, ErrNotConfigured
	}
	if err := s.readRaw(); err != nil {
		return nil, err
	}

	src := s.decode()
	if s.gray != nil {
		s.scaler.Scale(s.gray, s.gray.Rect, src, src.Bounds(), draw.Src, nil)
	} else {
		s.scaler.Scale(s.rgba, s.rgba.Rect, src, src.Bounds(), draw.Src, nil)
		packRGB565(s.frame.Pix, s.rgba)
	}
	return s.frame, nil
}

func (s *StreamSensor) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *StreamSensor) readRaw() error {
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		return errors.Wrap(err, "read frame")
	}
	return nil
}

// decode wraps the raw buffer in an image without copying.
func (s *StreamSensor) decode() image.Image {
	w, h := s.srcW, s.srcH
	rect := image.Rect(0, 0, w, h)
	luma := s.buf[:w*h]
	if s.layout == Gray8 || s.gray != nil {
		return &image.Gray{Pix: luma, Stride: w, Rect: rect}
	}

	cw, ch := (w+1)/2, (h+1)/2
	return &image.YCbCr{
		Y:              luma,
		Cb:             s.buf[w*h : w*h+cw*ch],
		Cr:             s.buf[w*h+cw*ch : w*h+2*cw*ch],
		YStride:        w,
		CStride:        cw,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           rect,
	}
}

// packRGB565 stores img's pixels as little-endian RGB565 into dst.
func packRGB565(dst []byte, img *image.RGBA) {
	n := img.Rect.Dx() * img.Rect.Dy()
	for i := 0; i < n; i++ {
		r, g, b := img.Pix[4*i], img.Pix[4*i+1], img.Pix[4*i+2]
		px := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
		dst[2*i] = byte(px)
		dst[2*i+1] = byte(px >> 8)
	}
}
