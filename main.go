package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.neose-cxof-flow.gocv-driver/config"
	"go.neose-cxof-flow.gocv-driver/flow"
	"go.neose-cxof-flow.gocv-driver/link"
	"go.neose-cxof-flow.gocv-driver/logging"
	"go.neose-cxof-flow.gocv-driver/phasecorr"
	"go.neose-cxof-flow.gocv-driver/pipeline"
	"go.neose-cxof-flow.gocv-driver/sensor"
	"go.neose-cxof-flow.gocv-driver/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.ERRORLogger.Fatal(err)
	}
	if err := run(cfg); err != nil {
		logging.ERRORLogger.Fatal(err)
	}
	logging.INFOLogger.Printf("Acquisition stopped")
}

// run wires the sensor, flow estimation and the serial link, and blocks
// until the loop aborts or a termination signal arrives.
func run(cfg config.Config) error {
	cam, warmup, err := openSensor(cfg)
	if err != nil {
		return err
	}
	defer cam.Close()

	if err := cam.Configure(cfg.Format(), cfg.Width, cfg.Height); err != nil {
		return err
	}
	if err := cam.Warmup(warmup); err != nil {
		return err
	}

	buffers, err := flow.NewFrameBuffers(cfg.Width, cfg.Height, cfg.Format())
	if err != nil {
		return err
	}
	registrar := phasecorr.New()
	defer registrar.Close()

	filter, err := flow.NewFilter(cfg.Filter, cfg.FilterAlpha)
	if err != nil {
		return err
	}

	port, err := link.OpenSerial(link.SerialOptions{
		PortName:    cfg.SerialPath,
		BaudRate:    cfg.BaudRate,
		CharTimeout: cfg.CharTimeout,
	})
	if err != nil {
		return err
	}
	var indicator link.Indicator = link.LogIndicator{}
	if cfg.LEDPath != "" {
		indicator = link.SysfsLED{Path: cfg.LEDPath}
	}
	reporter := link.NewReporter(port, indicator)
	defer reporter.Close()

	opts := pipeline.Options{
		Source:      cam,
		Buffers:     buffers,
		Estimator:   flow.NewEstimator(registrar, cfg.MinResponse),
		Calibrator:  flow.NewCalibrator(cfg.Calibration(), filter),
		Transmitter: reporter,
		ReportEvery: cfg.ReportEvery,
	}
	if cfg.MQTTBroker != "" {
		publisher, err := telemetry.NewPublisher(cfg.MQTTBroker, cfg.MQTTTopic)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts.Telemetry = publisher
	}
	loop := pipeline.New(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Pipelined {
		err = loop.RunPipelined(ctx)
	} else {
		err = loop.Run(ctx)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func openSensor(cfg config.Config) (*sensor.StreamSensor, time.Duration, error) {
	if cfg.CameraSource == config.SourceLibcamera {
		cam, err := sensor.StartLibcamera(sensor.LibcameraOptions{
			Width:     cfg.CaptureWidth,
			Height:    cfg.CaptureHeight,
			Framerate: cfg.CameraFramerate,
		})
		return cam, cfg.Warmup, err
	}
	// replay files hold grayscale frames at capture size and need no warmup
	cam, err := sensor.OpenReplay(cfg.CameraSource, sensor.Gray8, cfg.CaptureWidth, cfg.CaptureHeight)
	return cam, 0, err
}
