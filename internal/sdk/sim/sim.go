// Package sim provides a simulated camera SDK that plays back synthetic
// frames. It backs the "sim" backend and the package tests.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/livecam/internal/sdk"
)

// CameraSpec describes one simulated camera.
type CameraSpec struct {
	Name     string
	Sensor   sdk.SensorType
	BitDepth int
	Width    int
	Height   int
	Phase    sdk.FilterPhase
	// FrameInterval paces frame delivery. Zero delivers a frame on every poll.
	FrameInterval time.Duration
	// MaxFrames stops delivery after this many frames. Zero is unlimited.
	MaxFrames int
	// FailAtFrame makes PendingFrame return an error instead of frame n (1-based).
	FailAtFrame int
	// Frames, when set, are played back in order instead of the generated pattern.
	Frames [][]uint16
}

// DefaultCameraSpec is a small 12-bit monochrome camera.
func DefaultCameraSpec() CameraSpec {
	return CameraSpec{
		Name:     "sim-mono-0",
		Sensor:   sdk.SensorMonochrome,
		BitDepth: 12,
		Width:    64,
		Height:   48,
	}
}

// Config configures a simulated SDK.
type Config struct {
	Cameras []CameraSpec

	// Injected failures, returned by the matching operation.
	OpenErr     error
	DiscoverErr error
	OpenCamErr  error
	ArmErr      error
	TriggerErr  error
}

// Provider opens simulated SDK handles and remembers them for inspection.
type Provider struct {
	cfg Config

	mu      sync.Mutex
	handles []*SDK
}

// NewProvider creates a Provider for cfg.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// Open implements sdk.Provider.
func (p *Provider) Open() (sdk.SDK, error) {
	if p.cfg.OpenErr != nil {
		return nil, p.cfg.OpenErr
	}

	s := &SDK{cfg: p.cfg}

	p.mu.Lock()
	p.handles = append(p.handles, s)
	p.mu.Unlock()

	return s, nil
}

// Handles returns every SDK handle opened so far.
func (p *Provider) Handles() []*SDK {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*SDK(nil), p.handles...)
}

// SDK is a simulated SDK handle.
type SDK struct {
	cfg    Config
	closes atomic.Int32

	mu      sync.Mutex
	cameras []*Camera
}

// DiscoverCameras implements sdk.SDK.
func (s *SDK) DiscoverCameras() ([]string, error) {
	if s.closes.Load() > 0 {
		return nil, sdk.ErrClosed
	}
	if s.cfg.DiscoverErr != nil {
		return nil, s.cfg.DiscoverErr
	}

	ids := make([]string, len(s.cfg.Cameras))
	for i, c := range s.cfg.Cameras {
		ids[i] = c.Name
	}
	return ids, nil
}

// OpenCamera implements sdk.SDK.
func (s *SDK) OpenCamera(id string) (sdk.Camera, error) {
	if s.closes.Load() > 0 {
		return nil, sdk.ErrClosed
	}
	if s.cfg.OpenCamErr != nil {
		return nil, s.cfg.OpenCamErr
	}

	for _, spec := range s.cfg.Cameras {
		if spec.Name != id {
			continue
		}
		cam := &Camera{
			spec:       spec,
			armErr:     s.cfg.ArmErr,
			triggerErr: s.cfg.TriggerErr,
		}
		s.mu.Lock()
		s.cameras = append(s.cameras, cam)
		s.mu.Unlock()
		return cam, nil
	}

	return nil, fmt.Errorf("sim: unknown camera %q", id)
}

// Close implements sdk.SDK.
func (s *SDK) Close() error {
	s.closes.Add(1)
	return nil
}

// Closes reports how many times Close was called.
func (s *SDK) Closes() int {
	return int(s.closes.Load())
}

// Cameras returns every camera opened through this handle.
func (s *SDK) Cameras() []*Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Camera(nil), s.cameras...)
}

// Camera is a simulated camera. It delivers frames only while armed and
// after a software trigger.
type Camera struct {
	spec       CameraSpec
	armErr     error
	triggerErr error

	mu               sync.Mutex
	armed            bool
	triggered        bool
	closed           bool
	pollTimeout      time.Duration
	framesPerTrigger int
	delivered        int
	lastFrame        time.Time
	polls            int

	closes   atomic.Int32
	disarms  atomic.Int32
	armCalls atomic.Int32
}

func (c *Camera) Name() string                       { return c.spec.Name }
func (c *Camera) SensorType() sdk.SensorType         { return c.spec.Sensor }
func (c *Camera) BitDepth() int                      { return c.spec.BitDepth }
func (c *Camera) Width() int                         { return c.spec.Width }
func (c *Camera) Height() int                        { return c.spec.Height }
func (c *Camera) ColorFilterPhase() sdk.FilterPhase  { return c.spec.Phase }
func (c *Camera) ColorCorrectionMatrix() sdk.Matrix3 { return sdk.Identity3 }
func (c *Camera) WhiteBalanceMatrix() sdk.Matrix3    { return sdk.Identity3 }

// SetPollTimeout implements sdk.Camera.
func (c *Camera) SetPollTimeout(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollTimeout = d
	return nil
}

// PollTimeout returns the last configured poll timeout.
func (c *Camera) PollTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollTimeout
}

// SetFramesPerTrigger implements sdk.Camera.
func (c *Camera) SetFramesPerTrigger(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.framesPerTrigger = n
	return nil
}

// Arm implements sdk.Camera.
func (c *Camera) Arm(buffers int) error {
	c.armCalls.Add(1)
	if c.armErr != nil {
		return c.armErr
	}
	if buffers <= 0 {
		return fmt.Errorf("sim: invalid buffer count %d", buffers)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return sdk.ErrClosed
	}
	if c.armed {
		return sdk.ErrArmed
	}
	c.armed = true
	return nil
}

// Disarm implements sdk.Camera.
func (c *Camera) Disarm() error {
	c.disarms.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return sdk.ErrNotArmed
	}
	c.armed = false
	c.triggered = false
	return nil
}

// IsArmed implements sdk.Camera.
func (c *Camera) IsArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// IssueSoftwareTrigger implements sdk.Camera.
func (c *Camera) IssueSoftwareTrigger() error {
	if c.triggerErr != nil {
		return c.triggerErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return sdk.ErrNotArmed
	}
	c.triggered = true
	return nil
}

// PendingFrame implements sdk.Camera.
func (c *Camera) PendingFrame() (*sdk.RawFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.polls++
	if c.closed {
		return nil, sdk.ErrClosed
	}
	if !c.armed || !c.triggered {
		return nil, nil
	}
	if c.spec.MaxFrames > 0 && c.delivered >= c.spec.MaxFrames {
		return nil, nil
	}
	if c.spec.FrameInterval > 0 && !c.lastFrame.IsZero() && time.Since(c.lastFrame) < c.spec.FrameInterval {
		return nil, nil
	}

	n := c.delivered + 1
	if c.spec.FailAtFrame > 0 && n == c.spec.FailAtFrame {
		return nil, errors.New("sim: injected frame failure")
	}

	c.delivered = n
	c.lastFrame = time.Now()

	var samples []uint16
	if len(c.spec.Frames) > 0 {
		src := c.spec.Frames[(n-1)%len(c.spec.Frames)]
		samples = append([]uint16(nil), src...)
	} else {
		samples = Gradient(c.spec.Width, c.spec.Height, c.spec.BitDepth, n)
	}

	return &sdk.RawFrame{
		Samples:    samples,
		Width:      c.spec.Width,
		Height:     c.spec.Height,
		FrameCount: uint64(n),
	}, nil
}

// Close implements sdk.Camera.
func (c *Camera) Close() error {
	c.closes.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.armed = false
	return nil
}

// Delivered returns how many frames were handed out.
func (c *Camera) Delivered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered
}

// Polls returns how many times PendingFrame was called.
func (c *Camera) Polls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls
}

// FramesPerTrigger returns the last configured frames-per-trigger value.
func (c *Camera) FramesPerTrigger() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framesPerTrigger
}

// Closes reports how many times Close was called.
func (c *Camera) Closes() int { return int(c.closes.Load()) }

// Disarms reports how many times Disarm was called.
func (c *Camera) Disarms() int { return int(c.disarms.Load()) }

// ArmCalls reports how many times Arm was called.
func (c *Camera) ArmCalls() int { return int(c.armCalls.Load()) }
