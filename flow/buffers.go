package flow

import "github.com/pkg/errors"

// MaxBufferBytes caps the memory both frame buffers may take together.
// Frames on the sensor are tiny (64x32); this guards against misconfiguration.
var MaxBufferBytes = 8 << 20

// FrameBuffers owns the previous and current frame buffers. Both are
// allocated once and swap roles on every Advance.
type FrameBuffers struct {
	prev   *Frame
	curr   *Frame
	seeded bool
}

// NewFrameBuffers allocates the two buffers. Failure is fatal to the caller.
func NewFrameBuffers(width, height int, format PixelFormat) (*FrameBuffers, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrFrameSize, "%dx%d", width, height)
	}
	need := 2 * width * height * format.BytesPerPixel()
	if need > MaxBufferBytes {
		return nil, errors.Wrapf(ErrOutOfMemory, "need %d bytes, budget %d", need, MaxBufferBytes)
	}

	prev, err := NewFrame(width, height, format)
	if err != nil {
		return nil, err
	}
	curr, err := NewFrame(width, height, format)
	if err != nil {
		return nil, err
	}
	return &FrameBuffers{prev: prev, curr: curr}, nil
}

// Seed loads f into both buffers. The first measurement after a seed reports
// roughly zero displacement.
func (b *FrameBuffers) Seed(f *Frame) error {
	if err := b.curr.CopyFrom(f); err != nil {
		return errors.Wrap(err, "seed")
	}
	if err := b.prev.CopyFrom(f); err != nil {
		return errors.Wrap(err, "seed")
	}
	b.seeded = true
	return nil
}

// Advance makes the current buffer the previous one and copies f into the
// freed buffer. An unseeded manager is seeded with f instead.
func (b *FrameBuffers) Advance(f *Frame) (prev, curr *Frame, err error) {
	if !b.seeded {
		if err := b.Seed(f); err != nil {
			return nil, nil, err
		}
		return b.prev, b.curr, nil
	}
	if !b.curr.SameShape(f) {
		return nil, nil, errors.Wrapf(ErrFrameMismatch, "advance with %dx%d %s frame", f.Width, f.Height, f.Format)
	}

	b.prev, b.curr = b.curr, b.prev
	if err := b.curr.CopyFrom(f); err != nil {
		// undo the swap so the pair stays consistent
		b.prev, b.curr = b.curr, b.prev
		return nil, nil, err
	}
	return b.prev, b.curr, nil
}

// Previous returns the previous buffer.
func (b *FrameBuffers) Previous() *Frame { return b.prev }

// Current returns the current buffer.
func (b *FrameBuffers) Current() *Frame { return b.curr }

func (b *FrameBuffers) Seeded() bool { return b.seeded }
