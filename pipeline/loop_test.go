package pipeline

import (
	"context"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.neose-cxof-flow.gocv-driver/cxof"
	"go.neose-cxof-flow.gocv-driver/flow"
	"go.neose-cxof-flow.gocv-driver/link"
)

// fakeSource yields 4x4 frames filled with successive values. After the
// values run out it returns io.EOF, or calls onEmpty if set.
type fakeSource struct {
	values  []byte
	frame   *flow.Frame
	onEmpty func()
}

func newFakeSource(t *testing.T, values ...byte) *fakeSource {
	f, err := flow.NewFrame(4, 4, flow.Grayscale)
	require.NoError(t, err)
	return &fakeSource{values: values, frame: f}
}

func (s *fakeSource) Capture() (*flow.Frame, error) {
	if len(s.values) == 0 {
		if s.onEmpty != nil {
			s.onEmpty()
			return s.frame, nil
		}
		return nil, io.EOF
	}
	for i := range s.frame.Pix {
		s.frame.Pix[i] = s.values[0]
	}
	s.values = s.values[1:]
	return s.frame, nil
}

// diffRegistrar reports the change of the first pixel as an x shift. A
// change of 0xFF is treated as unregistrable.
type diffRegistrar struct{}

func (diffRegistrar) ComputeDisplacement(prev, curr *flow.Frame) (flow.Displacement, error) {
	d := int(curr.Pix[0]) - int(prev.Pix[0])
	if d == 0xFF || d == -0xFF {
		return flow.Displacement{}, flow.ErrNoDisplacement
	}
	return flow.Displacement{X: float64(d), Y: float64(d) / 2, Response: 1}, nil
}

type recordingTransmitter struct {
	mutex   sync.Mutex
	packets []cxof.Packet
	err     error
	stats   link.Stats
}

func (r *recordingTransmitter) Transmit(p cxof.Packet) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.packets = append(r.packets, p)
	r.stats.Sent++
	return r.err
}

func (r *recordingTransmitter) Stats() link.Stats {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.stats
}

func (r *recordingTransmitter) Packets() []cxof.Packet {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]cxof.Packet(nil), r.packets...)
}

type fakeTelemetry struct {
	samples []Sample
	reports []Report
	frames  []*image.Gray
}

func (f *fakeTelemetry) PublishSample(s Sample) error {
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeTelemetry) PublishReport(r Report) error {
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeTelemetry) PublishFrame(img *image.Gray) error {
	f.frames = append(f.frames, img)
	return nil
}

func newLoop(t *testing.T, src FrameSource, tx Transmitter) *Loop {
	t.Helper()
	buffers, err := flow.NewFrameBuffers(4, 4, flow.Grayscale)
	require.NoError(t, err)
	return New(Options{
		Source:      src,
		Buffers:     buffers,
		Estimator:   flow.NewEstimator(diffRegistrar{}, 0),
		Calibrator:  flow.NewCalibrator(flow.DefaultCalibration(), nil),
		Transmitter: tx,
		ReportEvery: 3,
	})
}

func TestStepSequence(t *testing.T) {
	tx := &recordingTransmitter{}
	l := newLoop(t, newFakeSource(t, 10, 11, 13, 13), tx)
	assert.Equal(t, StateInit, l.State())

	var got []flow.Measurement
	for i := 0; i < 3; i++ {
		m, err := l.Step()
		require.NoError(t, err)
		got = append(got, m)
	}
	assert.Equal(t, StateRunning, l.State())

	assert.Equal(t, cxof.Measurement{DX: -35, DY: 27, Quality: 255}, got[0].Measurement)
	assert.Equal(t, cxof.Measurement{DX: -70, DY: 53, Quality: 255}, got[1].Measurement)
	assert.Equal(t, cxof.Measurement{DX: 0, DY: 0, Quality: 255}, got[2].Measurement)

	packets := tx.Packets()
	require.Len(t, packets, 3)
	for i, p := range packets {
		assert.Equal(t, cxof.Encode(got[i].Measurement), p)
		assert.True(t, p.Valid())
	}
}

func TestDegradedCycleStillTransmits(t *testing.T) {
	tx := &recordingTransmitter{}
	l := newLoop(t, newFakeSource(t, 0, 0xFF, 0xFE), tx)

	m, err := l.Step()
	require.NoError(t, err)
	assert.Equal(t, flow.Degraded, m.Status)

	m, err = l.Step()
	require.NoError(t, err)
	assert.Equal(t, flow.Valid, m.Status)
	assert.Equal(t, int16(35), m.DX)

	packets := tx.Packets()
	require.Len(t, packets, 2)
	assert.Equal(t, cxof.Packet{0xFE, 0x04, 0, 0, 0, 0, 0, 0, 0xAA}, packets[0])
}

func TestTransmitErrorsDoNotStopTheLoop(t *testing.T) {
	tx := &recordingTransmitter{err: errors.New("port gone")}
	l := newLoop(t, newFakeSource(t, 1, 2, 3), tx)

	_, err := l.Step()
	require.NoError(t, err)
	m, err := l.Step()
	require.NoError(t, err)
	assert.Equal(t, int16(-35), m.DX)
	assert.Len(t, tx.Packets(), 2)
}

func TestTimeoutIsolation(t *testing.T) {
	src := newFakeSource(t, 1, 2, 4, 7)

	ref := newLoop(t, newFakeSource(t, 1, 2, 4, 7), &recordingTransmitter{})
	var want []flow.Measurement
	for i := 0; i < 3; i++ {
		m, err := ref.Step()
		require.NoError(t, err)
		want = append(want, m)
	}

	port := &flakyTransport{failOn: 2}
	reporter := link.NewReporter(port, link.LogIndicator{})
	l := newLoop(t, src, reporter)
	var got []flow.Measurement
	for i := 0; i < 3; i++ {
		m, err := l.Step()
		require.NoError(t, err)
		got = append(got, m)
	}

	assert.Equal(t, want, got)
	assert.Equal(t, link.Stats{Sent: 2, Dropped: 1}, reporter.Stats())
	assert.Equal(t, 3, reporter.Heartbeat().Count())
	assert.Equal(t, byte(7), l.Buffers.Current().Pix[0])
	assert.Equal(t, byte(4), l.Buffers.Previous().Pix[0])
}

// flakyTransport times out on its failOn-th write.
type flakyTransport struct {
	failOn int
	writes int
}

func (f *flakyTransport) Write(p []byte) error {
	f.writes++
	if f.writes == f.failOn {
		return link.ErrWriteTimeout
	}
	return nil
}

func (f *flakyTransport) Close() error { return nil }

func TestCaptureFailureAborts(t *testing.T) {
	tx := &recordingTransmitter{}
	l := newLoop(t, newFakeSource(t, 1, 2), tx)

	err := l.Run(context.Background())
	assert.True(t, errors.Is(err, ErrAborted))
	assert.True(t, errors.Is(err, io.EOF))
	assert.Contains(t, err.Error(), "EOF")
	assert.Equal(t, StateAborted, l.State())
	assert.Len(t, tx.Packets(), 1)

	_, err = l.Step()
	assert.True(t, errors.Is(err, ErrAborted))
}

func TestSeedFailureAborts(t *testing.T) {
	l := newLoop(t, newFakeSource(t), &recordingTransmitter{})
	err := l.Start()
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Equal(t, StateAborted, l.State())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource(t, 1, 2, 3, 4)
	src.onEmpty = cancel
	tx := &recordingTransmitter{}
	l := newLoop(t, src, tx)

	err := l.Run(ctx)
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, StateStopped, l.State())
	// three measured frames plus the repeat of the last frame captured on cancel
	assert.Len(t, tx.Packets(), 4)
}

func TestRunPipelinedPreservesOrder(t *testing.T) {
	values := []byte{0, 1, 3, 6, 10, 15, 21, 28}

	seq := &recordingTransmitter{}
	ref := newLoop(t, newFakeSource(t, values...), seq)
	require.Error(t, ref.Run(context.Background()))

	tx := &recordingTransmitter{}
	l := newLoop(t, newFakeSource(t, values...), tx)
	err := l.RunPipelined(context.Background())
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Equal(t, StateAborted, l.State())

	assert.Equal(t, seq.Packets(), tx.Packets())
	assert.Len(t, tx.Packets(), len(values)-1)
}

func TestRunPipelinedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	src := newFakeSource(t, 1)
	src.onEmpty = func() {}
	l := newLoop(t, src, &recordingTransmitter{})

	err := l.RunPipelined(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Equal(t, StateStopped, l.State())
}

func TestReports(t *testing.T) {
	tel := &fakeTelemetry{}
	l := newLoop(t, newFakeSource(t, 1, 2, 3, 4, 5, 6, 7), &recordingTransmitter{})
	l.Telemetry = tel

	for i := 0; i < 6; i++ {
		_, err := l.Step()
		require.NoError(t, err)
	}

	require.Len(t, tel.samples, 6)
	assert.Equal(t, uint64(1), tel.samples[0].Seq)
	assert.Equal(t, "valid", tel.samples[0].Status)
	assert.Equal(t, int16(-35), tel.samples[0].DX)

	require.Len(t, tel.reports, 2)
	assert.Equal(t, uint64(3), tel.reports[0].Cycles)
	assert.Equal(t, uint64(6), tel.reports[1].Cycles)
	assert.Equal(t, uint64(6), tel.reports[1].Sent)

	require.Len(t, tel.frames, 2)
	assert.Equal(t, byte(4), tel.frames[0].Pix[0])
	assert.Equal(t, byte(7), tel.frames[1].Pix[0])
	assert.Equal(t, image.Rect(0, 0, 4, 4), tel.frames[0].Rect)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "INIT", StateInit.String())
	assert.Equal(t, "STOPPED", StateStopped.String())
	assert.Equal(t, "State(9)", State(9).String())
}
