package sensor

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"go.neose-cxof-flow.gocv-driver/logging"
)

// LibcameraOptions selects the native capture mode of the camera.
type LibcameraOptions struct {
	Camera    int
	Width     int
	Height    int
	Framerate int
}

type libcameraProcess struct {
	cmd *exec.Cmd
	out io.ReadCloser
}

func (p *libcameraProcess) Read(b []byte) (int, error) { return p.out.Read(b) }

func (p *libcameraProcess) Close() error {
	p.out.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	// the process was killed, its exit status carries no information
	p.cmd.Wait()
	return nil
}

// StartLibcamera runs libcamera-vid streaming uncompressed YUV420 to stdout
// and returns a sensor reading from it.
func StartLibcamera(opts LibcameraOptions) (*StreamSensor, error) {
	cmd := exec.Command(
		"libcamera-vid",
		"--camera", fmt.Sprint(opts.Camera),
		"--width", fmt.Sprint(opts.Width),
		"--height", fmt.Sprint(opts.Height),
		"--framerate", fmt.Sprint(opts.Framerate),
		"--codec", "yuv420",
		"--flush", "1",
		"--nopreview",
		"-t", "0",
		"--denoise", "off",
		"-o", "-",
	)
	cmd.Stderr = os.Stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "libcamera stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start libcamera-vid")
	}
	logging.INFOLogger.Printf("libcamera-vid started (pid %d): %dx%d@%d", cmd.Process.Pid, opts.Width, opts.Height, opts.Framerate)

	return NewStreamSensor(&libcameraProcess{cmd: cmd, out: out}, I420, opts.Width, opts.Height), nil
}

// OpenReplay plays back a file of concatenated raw frames.
func OpenReplay(path string, layout Layout, width, height int) (*StreamSensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open replay")
	}
	return NewStreamSensor(f, layout, width, height), nil
}
