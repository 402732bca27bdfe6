package link

const (
	// HeartbeatPeriod is the number of transmissions per indicator blink.
	HeartbeatPeriod = 20
	heartbeatOnAt   = 10
)

// Heartbeat is the blink state of the liveness indicator. It is advanced
// once per transmission attempt.
type Heartbeat struct {
	count int
	on    bool
}

// Advance steps the counter and reports the indicator state and whether it
// changed on this step.
func (h *Heartbeat) Advance() (on, changed bool) {
	h.count++
	switch {
	case h.count == heartbeatOnAt:
		changed = !h.on
		h.on = true
	case h.count >= HeartbeatPeriod:
		changed = h.on
		h.on = false
		h.count = 0
	}
	return h.on, changed
}

func (h Heartbeat) On() bool { return h.on }

func (h Heartbeat) Count() int { return h.count }
