// Package camera provides the Controller: it opens a camera through an SDK
// provider, runs the acquisition loop, and hands out the latest frames.
package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/livecam/internal/capture"
	"github.com/ayusman/livecam/internal/logger"
	"github.com/ayusman/livecam/internal/ring"
	"github.com/ayusman/livecam/internal/sdk"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultArmBuffers is the frame buffer depth requested when arming.
const DefaultArmBuffers = 2

// State is the controller lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateStreaming
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type options struct {
	queueCapacity int
	armBuffers    int
	colorFactory  sdk.ColorProcessorFactory
	pollInterval  time.Duration
	sessionID     string
}

// Option customizes Open.
type Option func(*options)

// WithQueueCapacity sets the frame queue depth.
func WithQueueCapacity(n int) Option {
	return func(o *options) { o.queueCapacity = n }
}

// WithArmBuffers sets the buffer count passed to Arm.
func WithArmBuffers(n int) Option {
	return func(o *options) { o.armBuffers = n }
}

// WithColorProcessorFactory replaces the demosaic stage for Bayer sensors.
func WithColorProcessorFactory(f sdk.ColorProcessorFactory) Option {
	return func(o *options) { o.colorFactory = f }
}

// WithPollInterval makes the acquisition loop sleep after an empty poll
// instead of busy-polling.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithSessionID sets the session identifier instead of generating one.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// Stats is a point-in-time snapshot of a controller.
type Stats struct {
	SessionID   string    `json:"session_id"`
	CameraName  string    `json:"camera_name"`
	State       string    `json:"state"`
	Produced    uint64    `json:"produced"`
	Dropped     uint64    `json:"dropped"`
	Queued      int       `json:"queued"`
	LastFrameAt time.Time `json:"last_frame_at"`
	Fault       string    `json:"fault,omitempty"`
}

// Controller owns the SDK handle, the camera and the acquisition loop.
// TryGetLatest is safe to call from any goroutine; Close is idempotent.
type Controller struct {
	sessionID string
	log       *zerolog.Logger
	state     atomic.Int32

	// set during Open, read-only afterwards
	handle sdk.SDK
	cam    sdk.Camera
	acq    *capture.Acquirer
	queue  *ring.Queue[capture.Frame]
	name   string

	mu       sync.Mutex // serializes teardown
	released struct {
		loop, camera, sdk bool
	}
}

// Open starts streaming from the camera at index. On failure every resource
// acquired so far is released before the error is returned.
//
// Errors match ErrNoDevices, ErrIndexOutOfRange or ErrInitialization.
func Open(ctx context.Context, provider sdk.Provider, index int, opts ...Option) (*Controller, error) {
	o := options{
		queueCapacity: ring.DefaultCapacity,
		armBuffers:    DefaultArmBuffers,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.New().String()
	}

	c := &Controller{
		sessionID: o.sessionID,
	}
	l := logger.WithComponent("controller").With().Str("session", c.sessionID).Logger()
	c.log = &l
	c.state.Store(int32(StateInitializing))

	if err := c.start(ctx, provider, index, o); err != nil {
		c.log.Error().Err(err).Int("index", index).Msg("failed to start camera")
		c.Close()
		return nil, err
	}

	c.state.Store(int32(StateStreaming))
	c.log.Info().Str("camera", c.name).Msg("stream started")
	return c, nil
}

func (c *Controller) start(ctx context.Context, provider sdk.Provider, index int, o options) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	c.log.Debug().Msg("initializing SDK")
	handle, err := provider.Open()
	if err != nil {
		return fmt.Errorf("%w: open SDK: %w", ErrInitialization, err)
	}
	c.handle = handle

	ids, err := handle.DiscoverCameras()
	if err != nil {
		return fmt.Errorf("%w: discover cameras: %w", ErrInitialization, err)
	}
	if len(ids) == 0 {
		return ErrNoDevices
	}
	if index < 0 || index >= len(ids) {
		return &IndexError{Index: index, Count: len(ids)}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	c.log.Debug().Int("index", index).Str("id", ids[index]).Msg("opening camera")
	cam, err := handle.OpenCamera(ids[index])
	if err != nil {
		return fmt.Errorf("%w: open camera %q: %w", ErrInitialization, ids[index], err)
	}
	c.cam = cam
	c.name = cam.Name()

	acq, err := capture.NewAcquirer(cam, capture.AcquirerOptions{
		QueueCapacity:         o.queueCapacity,
		ColorProcessorFactory: o.colorFactory,
		PollInterval:          o.pollInterval,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	c.acq = acq
	c.queue = acq.Queue()
	acq.Start()

	if err := cam.SetFramesPerTrigger(0); err != nil {
		return fmt.Errorf("%w: set continuous mode: %w", ErrInitialization, err)
	}
	if err := cam.Arm(o.armBuffers); err != nil {
		return fmt.Errorf("%w: arm: %w", ErrInitialization, err)
	}
	if err := cam.IssueSoftwareTrigger(); err != nil {
		return fmt.Errorf("%w: software trigger: %w", ErrInitialization, err)
	}

	return nil
}

// TryGetLatest removes and returns the oldest queued frame without
// blocking. It returns false when there is nothing new: the queue is empty,
// the controller is closed, or the loop has faulted and been drained.
func (c *Controller) TryGetLatest() (capture.Frame, bool) {
	if c.State() == StateClosed || c.queue == nil {
		return capture.Frame{}, false
	}
	return c.queue.TryTake()
}

// Close stops the acquisition loop, disarms and disposes the camera and
// disposes the SDK. It is safe to call repeatedly; release errors are
// logged, never returned.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateClosed {
		return
	}
	c.state.Store(int32(StateStopping))
	c.log.Debug().Msg("closing camera controller")

	if c.acq != nil && !c.released.loop {
		c.released.loop = true
		c.acq.Stop()
		c.acq.Wait()
	}

	if c.cam != nil && !c.released.camera {
		c.released.camera = true
		if c.cam.IsArmed() {
			c.release("disarm camera", c.cam.Disarm)
		}
		c.release("dispose camera", c.cam.Close)
	}

	if c.handle != nil && !c.released.sdk {
		c.released.sdk = true
		c.release("dispose SDK", c.handle.Close)
	}

	c.state.Store(int32(StateClosed))
	c.log.Info().Msg("resources released")
}

func (c *Controller) release(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msgf("failed to %s", what)
		}
	}()

	if err := fn(); err != nil {
		c.log.Warn().Err(err).Msgf("failed to %s", what)
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// SessionID identifies this streaming session.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// CameraName returns the name reported by the camera.
func (c *Controller) CameraName() string {
	return c.name
}

// Err returns the fault that stopped the acquisition loop, if any.
// Frames already queued can still be taken after a fault.
func (c *Controller) Err() error {
	if c.acq == nil {
		return nil
	}
	return c.acq.Err()
}

// Done is closed when the acquisition loop exits, whether by Close or fault.
func (c *Controller) Done() <-chan struct{} {
	if c.acq == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.acq.Done()
}

// Stats returns a snapshot of the controller.
func (c *Controller) Stats() Stats {
	s := Stats{
		SessionID:  c.sessionID,
		CameraName: c.name,
		State:      c.State().String(),
	}
	if c.acq != nil {
		s.Produced = c.acq.Produced()
		s.LastFrameAt = c.acq.LastFrameAt()
		if err := c.acq.Err(); err != nil {
			s.Fault = err.Error()
		}
	}
	if c.queue != nil {
		s.Dropped = c.queue.Dropped()
		s.Queued = c.queue.Len()
	}
	return s
}

// With opens a controller, runs fn and closes the controller exactly once,
// even if fn panics.
func With(ctx context.Context, provider sdk.Provider, index int, fn func(*Controller) error, opts ...Option) error {
	c, err := Open(ctx, provider, index, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}
