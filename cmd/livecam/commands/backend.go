package commands

import (
	"errors"
	"fmt"

	"github.com/ayusman/livecam/internal/camera"
	"github.com/ayusman/livecam/internal/config"
	"github.com/ayusman/livecam/internal/sdk"
	"github.com/ayusman/livecam/internal/sdk/gocvcam"
	"github.com/ayusman/livecam/internal/sdk/sim"
	"github.com/ayusman/livecam/internal/sdk/v4l2"
)

// newProvider returns the SDK provider for the configured backend.
func newProvider(c *config.Config) (sdk.Provider, error) {
	switch c.Backend {
	case config.BackendSim:
		return sim.NewProvider(simConfig(c.Sim)), nil
	case config.BackendV4L2:
		return v4l2.NewProvider(v4l2.Options{
			DeviceGlob: c.V4L2.DeviceGlob,
			Width:      c.V4L2.Width,
			Height:     c.V4L2.Height,
		}), nil
	case config.BackendGoCV:
		return gocvcam.NewProvider(gocvcam.Options{
			MaxDevices: c.GoCV.MaxDevices,
			Width:      c.GoCV.Width,
			Height:     c.GoCV.Height,
			FPS:        c.GoCV.FPS,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

func simConfig(c config.SimConfig) sim.Config {
	cams := make([]sim.CameraSpec, c.Cameras)
	for i := range cams {
		spec := sim.CameraSpec{
			Name:          fmt.Sprintf("sim-mono-%d", i),
			Sensor:        sdk.SensorMonochrome,
			BitDepth:      c.BitDepth,
			Width:         c.Width,
			Height:        c.Height,
			FrameInterval: c.FrameInterval,
		}
		if c.Color {
			spec.Name = fmt.Sprintf("sim-color-%d", i)
			spec.Sensor = sdk.SensorBayer
			spec.Phase = sdk.PhaseRedGreen
		}
		cams[i] = spec
	}
	return sim.Config{Cameras: cams}
}

// controllerOptions maps the configuration onto camera.Open options.
func controllerOptions(c *config.Config) []camera.Option {
	return []camera.Option{
		camera.WithQueueCapacity(c.QueueCapacity),
		camera.WithArmBuffers(c.ArmBuffers),
		camera.WithPollInterval(c.PollInterval),
	}
}

// startError turns the two "nothing to open" failures into a short message
// and passes everything else through.
func startError(err error) error {
	if errors.Is(err, camera.ErrNoDevices) || errors.Is(err, camera.ErrIndexOutOfRange) {
		return fmt.Errorf("could not start camera: %w", err)
	}
	return err
}
