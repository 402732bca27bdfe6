package link

import (
	"io"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"

	"go.neose-cxof-flow.gocv-driver/cxof"
	"go.neose-cxof-flow.gocv-driver/logging"
)

// DefaultCharTimeout bounds the wait for each character to be queued.
const DefaultCharTimeout = 1000 * time.Millisecond

// Transport is a transmit-only byte link.
type Transport interface {
	Write(p []byte) error
	Close() error
}

// SerialOptions configures the UART.
type SerialOptions struct {
	PortName    string
	BaudRate    uint
	CharTimeout time.Duration
}

// OpenSerial opens the port for 8N1 transmission.
func OpenSerial(opts SerialOptions) (*SerialTransport, error) {
	if opts.BaudRate < cxof.MinBaudRate {
		return nil, errors.Errorf("baud rate %d below CXOF minimum %d", opts.BaudRate, cxof.MinBaudRate)
	}
	port, err := serial.Open(serial.OpenOptions{
		PortName:        opts.PortName,
		BaudRate:        opts.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "serial.Open %s", opts.PortName)
	}
	logging.INFOLogger.Printf("Serial %s open at %d baud", opts.PortName, opts.BaudRate)
	return NewSerialTransport(port, opts.CharTimeout), nil
}

// SerialTransport hands each packet to a dedicated writer goroutine as a
// single port write, so a stalled port never blocks the caller for longer
// than charTimeout per character and a timeout drops whole packets.
type SerialTransport struct {
	port        io.WriteCloser
	charTimeout time.Duration

	req     chan []byte
	res     chan error
	pending bool

	done      chan struct{}
	closeOnce sync.Once
}

func NewSerialTransport(port io.WriteCloser, charTimeout time.Duration) *SerialTransport {
	if charTimeout <= 0 {
		charTimeout = DefaultCharTimeout
	}
	t := &SerialTransport{
		port:        port,
		charTimeout: charTimeout,
		req:         make(chan []byte),
		res:         make(chan error, 1),
		done:        make(chan struct{}),
	}
	go t.writer()
	return t
}

func (t *SerialTransport) writer() {
	for {
		select {
		case <-t.done:
			return
		case p := <-t.req:
			_, err := t.port.Write(p)
			select {
			case t.res <- err:
			case <-t.done:
				return
			}
		}
	}
}

// Write sends p as one unit within len(p) character timeouts. A packet still
// stuck in the port from an earlier timeout is waited for first; if it does
// not clear in time p is dropped before any of its bytes reach the port.
func (t *SerialTransport) Write(p []byte) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	timer := time.NewTimer(time.Duration(len(p)) * t.charTimeout)
	defer timer.Stop()

	if t.pending {
		select {
		case <-t.res:
			t.pending = false
		case <-timer.C:
			return ErrWriteTimeout
		case <-t.done:
			return ErrClosed
		}
	}

	buf := append([]byte(nil), p...)
	select {
	case t.req <- buf:
	case <-timer.C:
		return ErrWriteTimeout
	case <-t.done:
		return ErrClosed
	}

	select {
	case err := <-t.res:
		if err != nil {
			return errors.Wrap(err, "serial write")
		}
		return nil
	case <-timer.C:
		t.pending = true
		return ErrWriteTimeout
	case <-t.done:
		return ErrClosed
	}
}

func (t *SerialTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.port.Close()
	})
	return err
}
