// Package gocvcam exposes ordinary video devices (webcams, capture cards)
// through the sdk interfaces using GoCV (OpenCV). Frames are reported as an
// 8-bit monochrome sensor.
package gocvcam

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ayusman/livecam/internal/sdk"
	"gocv.io/x/gocv"
)

// Default capture settings
const (
	DefaultFPS        = 30
	DefaultWidth      = 640
	DefaultHeight     = 480
	DefaultMaxDevices = 4
)

// ErrReadFailed is returned when the device produces no image.
var ErrReadFailed = errors.New("gocvcam: failed to read frame from device")

// Options configures the devices opened by a Provider.
type Options struct {
	// Devices lists device indices to expose. Empty probes 0..MaxDevices-1.
	Devices    []int
	MaxDevices int
	Width      int
	Height     int
	FPS        int
}

func (o Options) withDefaults() Options {
	if o.MaxDevices <= 0 {
		o.MaxDevices = DefaultMaxDevices
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	return o
}

// Provider opens GoCV-backed SDK handles.
type Provider struct {
	opts Options
}

// NewProvider creates a Provider.
func NewProvider(opts Options) *Provider {
	return &Provider{opts: opts.withDefaults()}
}

// Open implements sdk.Provider.
func (p *Provider) Open() (sdk.SDK, error) {
	return &SDK{opts: p.opts}, nil
}

// SDK enumerates video devices.
type SDK struct {
	opts Options

	mu     sync.Mutex
	closed bool
}

// DiscoverCameras implements sdk.SDK. Without configured devices it probes
// indices by briefly opening each one.
func (s *SDK) DiscoverCameras() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, sdk.ErrClosed
	}

	if len(s.opts.Devices) > 0 {
		ids := make([]string, len(s.opts.Devices))
		for i, d := range s.opts.Devices {
			ids[i] = strconv.Itoa(d)
		}
		return ids, nil
	}

	var ids []string
	for i := 0; i < s.opts.MaxDevices; i++ {
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		if vc.IsOpened() {
			ids = append(ids, strconv.Itoa(i))
		}
		vc.Close()
	}
	return ids, nil
}

// OpenCamera implements sdk.SDK. id is a device index as returned by
// DiscoverCameras.
func (s *SDK) OpenCamera(id string) (sdk.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, sdk.ErrClosed
	}

	deviceID, err := strconv.Atoi(id)
	if err != nil {
		return nil, fmt.Errorf("gocvcam: invalid device id %q: %w", id, err)
	}

	vc, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("gocvcam: open device %d: %w", deviceID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("gocvcam: device %d did not open", deviceID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(s.opts.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(s.opts.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(s.opts.FPS))

	return newCamera(deviceID, vc), nil
}

// Close implements sdk.SDK.
func (s *SDK) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// capturer is the part of gocv.VideoCapture a Camera uses.
type capturer interface {
	Read(m *gocv.Mat) bool
	Get(prop gocv.VideoCaptureProperties) float64
	Close() error
}

// Camera adapts a gocv.VideoCapture. Read blocks for the next frame, so the
// poll timeout is recorded but not enforced.
type Camera struct {
	deviceID int
	width    int
	height   int

	mu               sync.Mutex
	vc               capturer
	armed            bool
	triggered        bool
	pollTimeout      time.Duration
	framesPerTrigger int
	count            uint64
}

func newCamera(deviceID int, vc capturer) *Camera {
	return &Camera{
		deviceID: deviceID,
		vc:       vc,
		width:    int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height:   int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}
}

func (c *Camera) Name() string                       { return fmt.Sprintf("video%d", c.deviceID) }
func (c *Camera) SensorType() sdk.SensorType         { return sdk.SensorMonochrome }
func (c *Camera) BitDepth() int                      { return 8 }
func (c *Camera) Width() int                         { return c.width }
func (c *Camera) Height() int                        { return c.height }
func (c *Camera) ColorFilterPhase() sdk.FilterPhase  { return sdk.PhaseRedGreen }
func (c *Camera) ColorCorrectionMatrix() sdk.Matrix3 { return sdk.Identity3 }
func (c *Camera) WhiteBalanceMatrix() sdk.Matrix3    { return sdk.Identity3 }

func (c *Camera) SetPollTimeout(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollTimeout = d
	return nil
}

func (c *Camera) SetFramesPerTrigger(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.framesPerTrigger = n
	return nil
}

func (c *Camera) Arm(buffers int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return sdk.ErrClosed
	}
	if c.armed {
		return sdk.ErrArmed
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
	return nil
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

// PendingFrame reads the next image and converts it to grayscale samples.
func (c *Camera) PendingFrame() (*sdk.RawFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil, sdk.ErrClosed
	}
	if !c.armed || !c.triggered {
		return nil, nil
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := c.vc.Read(&mat); !ok {
		return nil, ErrReadFailed
	}
	if mat.Empty() {
		return nil, nil
	}

	gray := mat
	if mat.Channels() != 1 {
		gray = gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
	}

	c.count++
	return &sdk.RawFrame{
		Samples:    widen(gray.ToBytes()),
		Width:      gray.Cols(),
		Height:     gray.Rows(),
		FrameCount: c.count,
	}, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	c.armed = false
	return err
}

func widen(pix []byte) []uint16 {
	out := make([]uint16, len(pix))
	for i, v := range pix {
		out[i] = uint16(v)
	}
	return out
}
