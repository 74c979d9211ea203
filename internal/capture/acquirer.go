package capture

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/livecam/internal/colorproc"
	"github.com/ayusman/livecam/internal/logger"
	"github.com/ayusman/livecam/internal/ring"
	"github.com/ayusman/livecam/internal/sdk"
	"github.com/rs/zerolog"
)

// ErrAcquisitionFault wraps any error that terminated the acquisition loop.
var ErrAcquisitionFault = errors.New("acquisition fault")

// LoopState is the state of the acquisition loop.
type LoopState int32

const (
	LoopIdle LoopState = iota
	LoopRunning
	LoopStopping
	LoopStopped
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopRunning:
		return "running"
	case LoopStopping:
		return "stopping"
	case LoopStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// AcquirerOptions configures an Acquirer. Zero values select defaults.
type AcquirerOptions struct {
	// QueueCapacity is the output queue depth (default ring.DefaultCapacity).
	QueueCapacity int
	// ColorProcessorFactory builds the demosaic stage for Bayer sensors
	// (default colorproc.New).
	ColorProcessorFactory sdk.ColorProcessorFactory
	// PollInterval is slept after an empty poll. Zero busy-polls.
	PollInterval time.Duration
}

// Acquirer polls a camera on its own goroutine, converts each frame to
// 8-bit pixels and pushes it into a bounded overwrite queue.
type Acquirer struct {
	cam      sdk.Camera
	sensor   sdk.SensorType
	bitDepth int
	width    int
	height   int
	interval time.Duration
	color    sdk.ColorProcessor
	queue    *ring.Queue[Frame]
	log      *zerolog.Logger

	stop      atomic.Bool
	started   atomic.Bool
	state     atomic.Int32
	produced  atomic.Uint64
	lastFrame atomic.Int64
	done      chan struct{}
	err       error // written before done is closed

	seq         uint64 // owned by the loop goroutine
	releaseOnce sync.Once
}

// NewAcquirer prepares an acquisition loop for cam. For Bayer sensors it
// creates the color processor, which is released when the loop ends.
func NewAcquirer(cam sdk.Camera, opts AcquirerOptions) (*Acquirer, error) {
	capacity := opts.QueueCapacity
	if capacity == 0 {
		capacity = ring.DefaultCapacity
	}
	queue, err := ring.New[Frame](capacity)
	if err != nil {
		return nil, err
	}

	a := &Acquirer{
		cam:      cam,
		sensor:   cam.SensorType(),
		bitDepth: cam.BitDepth(),
		width:    cam.Width(),
		height:   cam.Height(),
		interval: opts.PollInterval,
		queue:    queue,
		log:      logger.WithComponent("acquirer"),
		done:     make(chan struct{}),
	}

	if a.sensor == sdk.SensorBayer {
		factory := opts.ColorProcessorFactory
		if factory == nil {
			factory = colorproc.New
		}
		a.color, err = factory(sdk.ColorConfig{
			Phase:           cam.ColorFilterPhase(),
			ColorCorrection: cam.ColorCorrectionMatrix(),
			WhiteBalance:    cam.WhiteBalanceMatrix(),
			BitDepth:        a.bitDepth,
		})
		if err != nil {
			return nil, fmt.Errorf("create color processor: %w", err)
		}
	}

	if err := cam.SetPollTimeout(0); err != nil {
		a.release()
		return nil, fmt.Errorf("set poll timeout: %w", err)
	}

	return a, nil
}

// Queue returns the output queue.
func (a *Acquirer) Queue() *ring.Queue[Frame] {
	return a.queue
}

// Start launches the loop goroutine. Calls after the first, or after Stop,
// do nothing.
func (a *Acquirer) Start() {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	a.state.Store(int32(LoopRunning))
	go a.run()
}

// Stop asks the loop to exit. It returns immediately; use Wait to join.
// Stopping a loop that was never started releases its resources directly.
func (a *Acquirer) Stop() {
	a.stop.Store(true)

	if a.started.CompareAndSwap(false, true) {
		a.finish(nil)
		return
	}
	a.state.CompareAndSwap(int32(LoopRunning), int32(LoopStopping))
}

// Wait blocks until the loop has exited and released its resources.
// Without a prior Stop it waits for a fault.
func (a *Acquirer) Wait() {
	<-a.done
}

// Done is closed once the loop has exited.
func (a *Acquirer) Done() <-chan struct{} {
	return a.done
}

// Err returns the fault that ended the loop, or nil while it runs or after
// a clean stop.
func (a *Acquirer) Err() error {
	select {
	case <-a.done:
		return a.err
	default:
		return nil
	}
}

// State returns the loop state.
func (a *Acquirer) State() LoopState {
	return LoopState(a.state.Load())
}

// Produced returns the number of frames pushed into the queue.
func (a *Acquirer) Produced() uint64 {
	return a.produced.Load()
}

// LastFrameAt returns when the latest frame was produced, or the zero time.
func (a *Acquirer) LastFrameAt() time.Time {
	ns := a.lastFrame.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (a *Acquirer) run() {
	a.log.Debug().Str("sensor", a.sensor.String()).Int("bit_depth", a.bitDepth).Msg("acquisition loop started")

	for !a.stop.Load() {
		raw, err := a.cam.PendingFrame()
		if err != nil {
			a.finish(fmt.Errorf("%w: poll frame: %w", ErrAcquisitionFault, err))
			return
		}
		if raw == nil {
			if a.interval > 0 {
				time.Sleep(a.interval)
			} else {
				runtime.Gosched()
			}
			continue
		}

		frame, err := a.convert(raw)
		if err != nil {
			a.finish(fmt.Errorf("%w: frame %d: %w", ErrAcquisitionFault, a.seq, err))
			return
		}

		frame.Seq = a.seq
		a.seq++
		a.queue.Put(frame)
		a.produced.Add(1)
		a.lastFrame.Store(frame.Timestamp.UnixNano())
	}

	a.finish(nil)
}

func (a *Acquirer) convert(raw *sdk.RawFrame) (Frame, error) {
	width, height := raw.Width, raw.Height
	if width == 0 || height == 0 {
		width, height = a.width, a.height
	}
	if len(raw.Samples) != width*height {
		return Frame{}, fmt.Errorf("got %d samples for %dx%d frame", len(raw.Samples), width, height)
	}

	frame := Frame{
		Width:     width,
		Height:    height,
		Timestamp: time.Now(),
	}

	if a.color != nil {
		pix, err := a.color.Transform24(raw.Samples, width, height)
		if err != nil {
			return Frame{}, fmt.Errorf("color transform: %w", err)
		}
		if len(pix) != width*height*3 {
			return Frame{}, fmt.Errorf("color transform returned %d bytes, want %d", len(pix), width*height*3)
		}
		frame.Pix = pix
		frame.Channels = 3
		return frame, nil
	}

	frame.Pix = ScaleTo8Bit(raw.Samples, a.bitDepth)
	frame.Channels = 1
	return frame, nil
}

// finish records the exit reason, releases resources and closes done.
func (a *Acquirer) finish(err error) {
	if err != nil {
		a.log.Error().Err(err).Uint64("produced", a.produced.Load()).Msg("acquisition loop terminated")
	} else {
		a.log.Debug().Uint64("produced", a.produced.Load()).Msg("acquisition loop stopped")
	}

	a.release()
	a.err = err
	a.state.Store(int32(LoopStopped))
	close(a.done)
}

func (a *Acquirer) release() {
	a.releaseOnce.Do(func() {
		if a.color == nil {
			return
		}
		if err := a.color.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to release color processor")
		}
	})
}
