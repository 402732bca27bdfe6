package link

import (
	"os"

	"github.com/pkg/errors"

	"go.neose-cxof-flow.gocv-driver/logging"
)

// Indicator is a two-state status light.
type Indicator interface {
	SetOn() error
	SetOff() error
}

// SysfsLED drives a Linux LED class device through its brightness file,
// e.g. /sys/class/leds/led0/brightness.
type SysfsLED struct {
	Path string
}

func (l SysfsLED) SetOn() error  { return l.write("1") }
func (l SysfsLED) SetOff() error { return l.write("0") }

func (l SysfsLED) write(v string) error {
	if err := os.WriteFile(l.Path, []byte(v), 0o644); err != nil {
		return errors.Wrap(err, "led")
	}
	return nil
}

// LogIndicator stands in for a LED on hosts without one.
type LogIndicator struct{}

func (LogIndicator) SetOn() error {
	logging.DEBUGLogger.Print("heartbeat on")
	return nil
}

func (LogIndicator) SetOff() error {
	logging.DEBUGLogger.Print("heartbeat off")
	return nil
}
