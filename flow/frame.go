package flow

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
)

// PixelFormat is the memory layout of a Frame's pixels.
type PixelFormat byte

const (
	Grayscale PixelFormat = iota
	RGB565
)

func (f PixelFormat) String() string {
	switch f {
	case Grayscale:
		return "grayscale"
	case RGB565:
		return "rgb565"
	}
	return fmt.Sprintf("PixelFormat(%d)", byte(f))
}

// BytesPerPixel returns the storage size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	if f == RGB565 {
		return 2
	}
	return 1
}

// ParsePixelFormat accepts the names returned by String.
func ParsePixelFormat(name string) (PixelFormat, error) {
	switch name {
	case "grayscale", "gray":
		return Grayscale, nil
	case "rgb565":
		return RGB565, nil
	}
	return 0, errors.Errorf("unknown pixel format %q", name)
}

// Frame is a fixed-size image buffer. RGB565 pixels are stored little-endian.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height int, format PixelFormat) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrFrameSize, "%dx%d", width, height)
	}
	return &Frame{
		Width:  width,
		Height: height,
		Format: format,
		Pix:    make([]byte, width*height*format.BytesPerPixel()),
	}, nil
}

// Len is the number of bytes a frame of this shape occupies.
func (f *Frame) Len() int {
	return f.Width * f.Height * f.Format.BytesPerPixel()
}

// SameShape reports whether o has the same dimensions and pixel format.
func (f *Frame) SameShape(o *Frame) bool {
	return o != nil && f.Width == o.Width && f.Height == o.Height && f.Format == o.Format
}

// CopyFrom overwrites f's pixels with src's without reallocating.
func (f *Frame) CopyFrom(src *Frame) error {
	if !f.SameShape(src) {
		return errors.Wrapf(ErrFrameMismatch, "%dx%d %s <- %dx%d %s",
			f.Width, f.Height, f.Format, src.Width, src.Height, src.Format)
	}
	if len(src.Pix) < f.Len() {
		return errors.Wrapf(ErrFrameSize, "source holds %d bytes, want %d", len(src.Pix), f.Len())
	}
	copy(f.Pix, src.Pix[:f.Len()])
	return nil
}

// Gray returns the frame's luminance. Grayscale frames share their pixel
// memory with the result; RGB565 frames are converted into a new image.
func (f *Frame) Gray() *image.Gray {
	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Format == Grayscale {
		return &image.Gray{Pix: f.Pix[:f.Len()], Stride: f.Width, Rect: rect}
	}

	gray := image.NewGray(rect)
	for i := 0; i < f.Width*f.Height; i++ {
		px := uint16(f.Pix[2*i]) | uint16(f.Pix[2*i+1])<<8
		r := int(px>>11&0x1F) * 255 / 31
		g := int(px>>5&0x3F) * 255 / 63
		b := int(px&0x1F) * 255 / 31
		// ITU-R BT.601 luma, integer weights summing to 1000
		gray.Pix[i] = uint8((299*r + 587*g + 114*b) / 1000)
	}
	return gray
}
