package config

import (
	"time"

	"github.com/caarlos0/env"
	"github.com/pkg/errors"

	"go.neose-cxof-flow.gocv-driver/cxof"
	"go.neose-cxof-flow.gocv-driver/flow"
)

// Config is read from the environment at startup.
type Config struct {
	SerialPath  string        `env:"CXOF_SERIAL,required"`
	BaudRate    uint          `env:"CXOF_SERIAL_BAUD" envDefault:"115200"`
	CharTimeout time.Duration `env:"CXOF_CHAR_TIMEOUT" envDefault:"1s"`

	GainX        float64 `env:"CXOF_GAIN_X" envDefault:"35"`
	GainY        float64 `env:"CXOF_GAIN_Y" envDefault:"53"`
	InvertX      bool    `env:"CXOF_INVERT_X" envDefault:"true"`
	InvertY      bool    `env:"CXOF_INVERT_Y" envDefault:"false"`
	WrapOverflow bool    `env:"CXOF_WRAP_OVERFLOW" envDefault:"false"`
	Filter       string  `env:"CXOF_FILTER" envDefault:"none"`
	FilterAlpha  float64 `env:"CXOF_FILTER_ALPHA" envDefault:"0.5"`
	MinResponse  float64 `env:"CXOF_MIN_RESPONSE" envDefault:"0"`
	Pipelined    bool    `env:"CXOF_PIPELINED" envDefault:"false"`

	CameraSource    string        `env:"CAMERA_SOURCE" envDefault:"libcamera"`
	Width           int           `env:"CAMERA_WIDTH" envDefault:"64"`
	Height          int           `env:"CAMERA_HEIGHT" envDefault:"32"`
	CaptureWidth    int           `env:"CAMERA_CAPTURE_WIDTH" envDefault:"640"`
	CaptureHeight   int           `env:"CAMERA_CAPTURE_HEIGHT" envDefault:"480"`
	CameraFramerate int           `env:"CAMERA_FRAMERATE" envDefault:"30"`
	PixelFormat     string        `env:"CAMERA_PIXFORMAT" envDefault:"grayscale"`
	Warmup          time.Duration `env:"CAMERA_WARMUP" envDefault:"2s"`

	LEDPath     string `env:"LED_PATH"`
	MQTTBroker  string `env:"MQTT_BROKER"`
	MQTTTopic   string `env:"MQTT_TOPIC" envDefault:"cxof/flow"`
	ReportEvery int    `env:"REPORT_EVERY" envDefault:"30"`
}

// SourceLibcamera selects the live camera; any other CAMERA_SOURCE value is
// a replay file path.
const SourceLibcamera = "libcamera"

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse environment")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.BaudRate < cxof.MinBaudRate {
		return errors.Errorf("CXOF_SERIAL_BAUD %d below protocol minimum %d", c.BaudRate, cxof.MinBaudRate)
	}
	if c.CharTimeout <= 0 {
		return errors.New("CXOF_CHAR_TIMEOUT must be positive")
	}
	if c.GainX <= 0 || c.GainY <= 0 {
		return errors.Errorf("gains must be positive, got %v/%v", c.GainX, c.GainY)
	}
	if c.Width <= 0 || c.Height <= 0 || c.CaptureWidth <= 0 || c.CaptureHeight <= 0 {
		return errors.New("frame sizes must be positive")
	}
	if c.Width > c.CaptureWidth || c.Height > c.CaptureHeight {
		return errors.Errorf("frame %dx%d larger than capture %dx%d", c.Width, c.Height, c.CaptureWidth, c.CaptureHeight)
	}
	if c.MinResponse < 0 || c.MinResponse > 1 {
		return errors.Errorf("CXOF_MIN_RESPONSE %v outside [0, 1]", c.MinResponse)
	}
	if _, err := flow.ParsePixelFormat(c.PixelFormat); err != nil {
		return err
	}
	if _, err := flow.NewFilter(c.Filter, c.FilterAlpha); err != nil {
		return err
	}
	return nil
}

// Calibration returns the flow scaling described by the configuration.
func (c Config) Calibration() flow.Calibration {
	return flow.Calibration{
		GainX:        c.GainX,
		GainY:        c.GainY,
		InvertX:      c.InvertX,
		InvertY:      c.InvertY,
		WrapOverflow: c.WrapOverflow,
	}
}

// Format returns the validated pixel format.
func (c Config) Format() flow.PixelFormat {
	f, _ := flow.ParsePixelFormat(c.PixelFormat)
	return f
}
