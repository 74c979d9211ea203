// Package v4l2 drives Linux video devices that deliver raw luminance
// (GREY or Y16) frames through github.com/blackjack/webcam.
package v4l2

import (
	"encoding/binary"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ayusman/livecam/internal/sdk"
	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// DefaultDeviceGlob matches the video nodes probed by DiscoverCameras.
const DefaultDeviceGlob = "/dev/video*"

func fourcc(s string) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24)
}

var (
	formatGrey = fourcc("GREY")
	formatY16  = fourcc("Y16 ")
)

// ErrUnsupportedFormat is returned when a device offers neither GREY nor Y16.
var ErrUnsupportedFormat = errors.New("v4l2: device has no raw luminance format")

// device is the part of *webcam.Webcam a Camera uses.
type device interface {
	GetSupportedFormats() map[webcam.PixelFormat]string
	SetImageFormat(f webcam.PixelFormat, width, height uint32) (webcam.PixelFormat, uint32, uint32, error)
	SetBufferCount(count uint32) error
	StartStreaming() error
	StopStreaming() error
	WaitForFrame(timeout uint32) error
	ReadFrame() ([]byte, error)
	Close() error
}

func openWebcam(path string) (device, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

// Options configures a Provider.
type Options struct {
	DeviceGlob string
	// Width and Height request a frame size; zero keeps the device default.
	Width  uint32
	Height uint32
}

// Provider opens V4L2 SDK handles.
type Provider struct {
	opts Options
	open func(path string) (device, error)
}

// NewProvider creates a Provider.
func NewProvider(opts Options) *Provider {
	if opts.DeviceGlob == "" {
		opts.DeviceGlob = DefaultDeviceGlob
	}
	return &Provider{opts: opts, open: openWebcam}
}

// Open implements sdk.Provider.
func (p *Provider) Open() (sdk.SDK, error) {
	return &SDK{opts: p.opts, open: p.open}, nil
}

// SDK enumerates device nodes.
type SDK struct {
	opts Options
	open func(path string) (device, error)

	mu     sync.Mutex
	closed bool
}

// DiscoverCameras returns the device paths matching the configured glob.
func (s *SDK) DiscoverCameras() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, sdk.ErrClosed
	}

	paths, err := filepath.Glob(s.opts.DeviceGlob)
	if err != nil {
		return nil, errors.Wrapf(err, "v4l2: bad device glob %q", s.opts.DeviceGlob)
	}
	sort.Strings(paths)
	return paths, nil
}

// OpenCamera opens the device node and negotiates a raw luminance format,
// preferring Y16 over GREY.
func (s *SDK) OpenCamera(path string) (sdk.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, sdk.ErrClosed
	}

	dev, err := s.open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "v4l2: can not open %s", path)
	}

	cam, err := negotiate(path, dev, s.opts.Width, s.opts.Height)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return cam, nil
}

func negotiate(path string, dev device, width, height uint32) (*Camera, error) {
	formats := dev.GetSupportedFormats()

	var want webcam.PixelFormat
	switch {
	case formats[formatY16] != "":
		want = formatY16
	case formats[formatGrey] != "":
		want = formatGrey
	default:
		return nil, errors.Wrap(ErrUnsupportedFormat, path)
	}

	got, w, h, err := dev.SetImageFormat(want, width, height)
	if err != nil {
		return nil, errors.Wrap(err, "v4l2: can not set image format")
	}
	if got != formatGrey && got != formatY16 {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s: driver chose format %#x", path, uint32(got))
	}

	return &Camera{
		path:   path,
		dev:    dev,
		format: got,
		width:  int(w),
		height: int(h),
	}, nil
}

// Close implements sdk.SDK.
func (s *SDK) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Camera streams from one device node. Arm starts streaming and Disarm
// stops it.
type Camera struct {
	path   string
	format webcam.PixelFormat
	width  int
	height int

	mu               sync.Mutex
	dev              device
	armed            bool
	triggered        bool
	pollTimeout      time.Duration
	framesPerTrigger int
	count            uint64
}

func (c *Camera) Name() string                       { return c.path }
func (c *Camera) SensorType() sdk.SensorType         { return sdk.SensorMonochrome }
func (c *Camera) Width() int                         { return c.width }
func (c *Camera) Height() int                        { return c.height }
func (c *Camera) ColorFilterPhase() sdk.FilterPhase  { return sdk.PhaseRedGreen }
func (c *Camera) ColorCorrectionMatrix() sdk.Matrix3 { return sdk.Identity3 }
func (c *Camera) WhiteBalanceMatrix() sdk.Matrix3    { return sdk.Identity3 }

func (c *Camera) BitDepth() int {
	if c.format == formatY16 {
		return 16
	}
	return 8
}

// SetPollTimeout sets how long PendingFrame waits. The driver only supports
// whole seconds, so the timeout is truncated.
func (c *Camera) SetPollTimeout(d time.Duration) error {
	if d < 0 {
		return errors.Errorf("v4l2: negative poll timeout %v", d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollTimeout = d
	return nil
}

func (c *Camera) SetFramesPerTrigger(n int) error {
	if n != 0 {
		return errors.Errorf("v4l2: only continuous mode is supported, got %d frames per trigger", n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.framesPerTrigger = n
	return nil
}

func (c *Camera) Arm(buffers int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return sdk.ErrClosed
	}
	if c.armed {
		return sdk.ErrArmed
	}
	if buffers <= 0 {
		return errors.Errorf("v4l2: invalid buffer count %d", buffers)
	}

	if err := c.dev.SetBufferCount(uint32(buffers)); err != nil {
		return errors.Wrap(err, "v4l2: can not set buffer count")
	}
	if err := c.dev.StartStreaming(); err != nil {
		return errors.Wrap(err, "v4l2: can not start streaming")
	}
	c.armed = true
	return nil
}

func (c *Camera) Disarm() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return sdk.ErrNotArmed
	}
	c.armed = false
	c.triggered = false
	return errors.Wrap(c.dev.StopStreaming(), "v4l2: can not stop streaming")
}

func (c *Camera) IsArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

func (c *Camera) IssueSoftwareTrigger() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return sdk.ErrNotArmed
	}
	c.triggered = true
	return nil
}

// PendingFrame returns the next frame, or nil when none arrived within the
// poll timeout.
func (c *Camera) PendingFrame() (*sdk.RawFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return nil, sdk.ErrClosed
	}
	if !c.armed || !c.triggered {
		return nil, nil
	}

	err := c.dev.WaitForFrame(uint32(c.pollTimeout / time.Second))
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return nil, nil
	default:
		return nil, errors.Wrap(err, "v4l2: failed when waiting for frame")
	}

	buf, err := c.dev.ReadFrame()
	if err != nil {
		return nil, errors.Wrap(err, "v4l2: can not read frame")
	}
	if len(buf) == 0 {
		return nil, nil
	}

	samples, err := c.decode(buf)
	if err != nil {
		return nil, err
	}

	c.count++
	return &sdk.RawFrame{
		Samples:    samples,
		Width:      c.width,
		Height:     c.height,
		FrameCount: c.count,
	}, nil
}

func (c *Camera) decode(buf []byte) ([]uint16, error) {
	n := c.width * c.height
	switch c.format {
	case formatY16:
		if len(buf) < n*2 {
			return nil, errors.Errorf("v4l2: short Y16 frame: %d bytes for %dx%d", len(buf), c.width, c.height)
		}
		out := make([]uint16, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(buf[i*2:])
		}
		return out, nil
	default:
		if len(buf) < n {
			return nil, errors.Errorf("v4l2: short GREY frame: %d bytes for %dx%d", len(buf), c.width, c.height)
		}
		out := make([]uint16, n)
		for i := range out {
			out[i] = uint16(buf[i])
		}
		return out, nil
	}
}

// Close stops streaming if needed and closes the device node.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return nil
	}
	if c.armed {
		c.dev.StopStreaming()
		c.armed = false
	}
	err := c.dev.Close()
	c.dev = nil
	return errors.Wrap(err, "v4l2: can not close device")
}
