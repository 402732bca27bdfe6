package link

import (
	"github.com/pkg/errors"

	"go.neose-cxof-flow.gocv-driver/cxof"
	"go.neose-cxof-flow.gocv-driver/logging"
)

// Stats counts transmission outcomes.
type Stats struct {
	Sent    uint64
	Dropped uint64
}

// Reporter writes packets to the transport and blinks the heartbeat.
type Reporter struct {
	transport Transport
	indicator Indicator
	heartbeat Heartbeat
	stats     Stats

	ledFailed bool
}

func NewReporter(t Transport, ind Indicator) *Reporter {
	if ind == nil {
		ind = LogIndicator{}
	}
	return &Reporter{transport: t, indicator: ind}
}

// Transmit writes p and advances the heartbeat whatever the outcome. A timed
// out packet is dropped and not reported as an error; the stream is
// unacknowledged and a stale sample is worthless.
func (r *Reporter) Transmit(p cxof.Packet) error {
	err := r.transport.Write(p[:])
	r.advanceHeartbeat()

	switch {
	case err == nil:
		r.stats.Sent++
		return nil
	case errors.Is(err, ErrWriteTimeout):
		r.stats.Dropped++
		logging.DEBUGLogger.Printf("packet dropped: %v", err)
		return nil
	default:
		r.stats.Dropped++
		return err
	}
}

func (r *Reporter) advanceHeartbeat() {
	on, changed := r.heartbeat.Advance()
	if !changed {
		return
	}
	var err error
	if on {
		err = r.indicator.SetOn()
	} else {
		err = r.indicator.SetOff()
	}
	if err != nil && !r.ledFailed {
		// report only the first failure
		logging.WARNINGLogger.Printf("status indicator: %v", err)
		r.ledFailed = true
	}
}

// Heartbeat returns the current heartbeat state.
func (r *Reporter) Heartbeat() Heartbeat { return r.heartbeat }

func (r *Reporter) Stats() Stats { return r.stats }

func (r *Reporter) Close() error { return r.transport.Close() }
