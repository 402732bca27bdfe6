package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.neose-cxof-flow.gocv-driver/cxof"
	"go.neose-cxof-flow.gocv-driver/flow"
	"go.neose-cxof-flow.gocv-driver/link"
	"go.neose-cxof-flow.gocv-driver/logging"
)

// ErrAborted wraps the fatal error that stopped the loop.
var ErrAborted = errors.New("acquisition aborted")

type State byte

const (
	StateInit State = iota
	StateRunning
	StateAborted
	StateStopped
)

var stateNames = [...]string{"INIT", "RUNNING", "ABORTED", "STOPPED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", byte(s))
}

// FrameSource yields camera frames.
type FrameSource interface {
	Capture() (*flow.Frame, error)
}

// Transmitter delivers encoded packets.
type Transmitter interface {
	Transmit(p cxof.Packet) error
	Stats() link.Stats
}

// Telemetry receives per-cycle samples, periodic reports and a snapshot of
// the frame closing each report window.
type Telemetry interface {
	PublishSample(s Sample) error
	PublishReport(r Report) error
	PublishFrame(img *image.Gray) error
}

type Options struct {
	Source      FrameSource
	Buffers     *flow.FrameBuffers
	Estimator   *flow.Estimator
	Calibrator  *flow.Calibrator
	Transmitter Transmitter
	// Telemetry is optional.
	Telemetry Telemetry
	// ReportEvery is the number of cycles between timing reports.
	ReportEvery int
}

// Loop runs acquire, estimate, calibrate, encode and transmit, in that
// order, for every frame.
type Loop struct {
	Options

	state    State
	stats    *CycleStats
	seq      uint64
	degraded uint64
	captured uint64
}

func New(opts Options) *Loop {
	if opts.ReportEvery <= 0 {
		opts.ReportEvery = 30
	}
	return &Loop{
		Options: opts,
		stats:   NewCycleStats(opts.ReportEvery),
	}
}

func (l *Loop) State() State { return l.state }

// cycle carries one measurement from estimation to transmission.
type cycle struct {
	started     time.Time
	measurement flow.Measurement
	packet      cxof.Packet
	saturations uint64
	snapshot    *image.Gray
}

// Start captures the seed frame and enters RUNNING.
func (l *Loop) Start() error {
	switch l.state {
	case StateRunning:
		return nil
	case StateAborted:
		return ErrAborted
	case StateStopped:
		l.state = StateRunning
		return nil
	}
	frame, err := l.Source.Capture()
	if err != nil {
		return l.abort(errors.Wrap(err, "capture seed frame"))
	}
	if err := l.Buffers.Seed(frame); err != nil {
		return l.abort(err)
	}
	l.state = StateRunning
	logging.INFOLogger.Printf("Acquisition running")
	return nil
}

// Run loops until ctx is done or a fatal error occurs.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			l.state = StateStopped
			return err
		}
		c, err := l.measure()
		if err != nil {
			return l.abort(err)
		}
		l.deliver(c)
	}
}

// Step runs a single cycle and returns its measurement.
func (l *Loop) Step() (flow.Measurement, error) {
	if err := l.Start(); err != nil {
		return flow.Measurement{}, err
	}
	c, err := l.measure()
	if err != nil {
		return flow.Measurement{}, l.abort(err)
	}
	l.deliver(c)
	return c.measurement, nil
}

// RunPipelined overlaps acquisition and estimation with transmission. The
// single-slot hand-off blocks the producer while the link is busy, so frames
// never queue up, and delivery order is preserved.
func (l *Loop) RunPipelined(ctx context.Context) error {
	if err := l.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	handoff := make(chan cycle, 1)

	g.Go(func() error {
		defer close(handoff)
		for {
			c, err := l.measure()
			if err != nil {
				return err
			}
			select {
			case handoff <- c:
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		for c := range handoff {
			l.deliver(c)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return l.abort(err)
	}
	l.state = StateStopped
	return ctx.Err()
}

func (l *Loop) measure() (cycle, error) {
	started := time.Now()
	frame, err := l.Source.Capture()
	if err != nil {
		return cycle{}, errors.Wrap(err, "capture")
	}
	prev, curr, err := l.Buffers.Advance(frame)
	if err != nil {
		return cycle{}, err
	}
	result := l.Estimator.Estimate(prev, curr)
	m := l.Calibrator.Calibrate(result)
	c := cycle{
		started:     started,
		measurement: m,
		packet:      cxof.Encode(m.Measurement),
		saturations: l.Calibrator.Saturations(),
	}

	l.captured++
	if l.Telemetry != nil && l.captured%uint64(l.ReportEvery) == 0 {
		// the buffers are reused by the next cycle
		gray := curr.Gray()
		c.snapshot = &image.Gray{
			Pix:    append([]byte(nil), gray.Pix...),
			Stride: gray.Stride,
			Rect:   gray.Rect,
		}
	}
	return c, nil
}

func (l *Loop) deliver(c cycle) {
	if err := l.Transmitter.Transmit(c.packet); err != nil {
		logging.ERRORLogger.Printf("transmit: %v", err)
	}

	elapsed := time.Since(c.started)
	l.stats.Add(elapsed)
	l.seq++
	m := c.measurement
	if m.Status == flow.Degraded {
		l.degraded++
	}

	_, _, fps := l.stats.Summary()
	logging.DEBUGLogger.Printf("%+dx %+dy %d %s %.1f FPS", m.DX, m.DY, m.Quality, m.Status, fps)

	if l.Telemetry != nil {
		err := l.Telemetry.PublishSample(Sample{
			Seq:       l.seq,
			Timestamp: c.started,
			DX:        m.DX,
			DY:        m.DY,
			Quality:   m.Quality,
			Status:    m.Status.String(),
			Saturated: m.Saturated,
			CycleMs:   float64(elapsed) / float64(time.Millisecond),
		})
		if err != nil {
			logging.WARNINGLogger.Printf("telemetry: %v", err)
		}
	}

	if l.stats.Len() >= l.ReportEvery {
		l.report(c.saturations)
	}
	if c.snapshot != nil {
		if err := l.Telemetry.PublishFrame(c.snapshot); err != nil {
			logging.WARNINGLogger.Printf("telemetry frame: %v", err)
		}
	}
}

func (l *Loop) report(saturations uint64) {
	mean, std, fps := l.stats.Summary()
	ls := l.Transmitter.Stats()
	r := Report{
		Cycles:      l.stats.Total(),
		MeanMs:      mean,
		StdDevMs:    std,
		FPS:         fps,
		Sent:        ls.Sent,
		Dropped:     ls.Dropped,
		Degraded:    l.degraded,
		Saturations: saturations,
	}
	logging.INFOLogger.Printf("cycle %.2f±%.2f ms (%.1f FPS), sent %d, dropped %d, degraded %d, saturated %d",
		r.MeanMs, r.StdDevMs, r.FPS, r.Sent, r.Dropped, r.Degraded, r.Saturations)
	if l.Telemetry != nil {
		if err := l.Telemetry.PublishReport(r); err != nil {
			logging.WARNINGLogger.Printf("telemetry: %v", err)
		}
	}
	l.stats.Reset()
}

func (l *Loop) abort(err error) error {
	l.state = StateAborted
	return fmt.Errorf("%w: %w", ErrAborted, err)
}
