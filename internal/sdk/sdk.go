// Package sdk describes the camera SDK boundary consumed by livecam.
//
// Backends (sim, v4l2, gocvcam) implement these interfaces; the rest of the
// module never talks to a device directly.
package sdk

import (
	"errors"
	"time"
)

// Backend errors shared by implementations.
var (
	ErrClosed    = errors.New("sdk: handle is closed")
	ErrNotArmed  = errors.New("sdk: camera is not armed")
	ErrArmed     = errors.New("sdk: camera is already armed")
	ErrNoCameras = errors.New("sdk: no cameras available")
)

// SensorType identifies how raw samples must be converted to pixels.
type SensorType int

const (
	SensorMonochrome SensorType = iota
	SensorBayer
)

func (s SensorType) String() string {
	switch s {
	case SensorMonochrome:
		return "monochrome"
	case SensorBayer:
		return "bayer"
	default:
		return "unknown"
	}
}

// FilterPhase is the color of the top-left pixel of the Bayer mosaic.
type FilterPhase int

const (
	PhaseRedGreen FilterPhase = iota
	PhaseGreenRed
	PhaseGreenBlue
	PhaseBlueGreen
)

func (p FilterPhase) String() string {
	switch p {
	case PhaseRedGreen:
		return "RGGB"
	case PhaseGreenRed:
		return "GRBG"
	case PhaseGreenBlue:
		return "GBRG"
	case PhaseBlueGreen:
		return "BGGR"
	default:
		return "unknown"
	}
}

// Matrix3 is a row-major 3x3 color matrix.
type Matrix3 [9]float32

// Identity3 is the neutral color matrix.
var Identity3 = Matrix3{1, 0, 0, 0, 1, 0, 0, 0, 1}

// Mul returns m x n.
func (m Matrix3) Mul(n Matrix3) Matrix3 {
	var out Matrix3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float32
			for k := 0; k < 3; k++ {
				sum += m[r*3+k] * n[k*3+c]
			}
			out[r*3+c] = sum
		}
	}
	return out
}

// RawFrame is one pending frame as delivered by the SDK.
// Samples hold Width*Height values of BitDepth significant bits.
type RawFrame struct {
	Samples []uint16
	Width   int
	Height  int
	// FrameCount is the SDK's own counter, informational only.
	FrameCount uint64
}

// Provider opens the SDK. Opening is the first step of a controller's
// lifecycle; the returned handle must be closed exactly once.
type Provider interface {
	Open() (SDK, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() (SDK, error)

// Open calls f.
func (f ProviderFunc) Open() (SDK, error) { return f() }

// SDK is an open SDK handle.
type SDK interface {
	// DiscoverCameras returns the identifiers of available cameras.
	DiscoverCameras() ([]string, error)
	// OpenCamera opens the camera with the given identifier.
	OpenCamera(id string) (Camera, error)
	Close() error
}

// Camera is an open camera handle.
type Camera interface {
	Name() string
	SensorType() SensorType
	BitDepth() int
	Width() int
	Height() int
	ColorFilterPhase() FilterPhase
	ColorCorrectionMatrix() Matrix3
	WhiteBalanceMatrix() Matrix3

	// SetPollTimeout bounds PendingFrame; zero means return immediately.
	SetPollTimeout(d time.Duration) error
	// SetFramesPerTrigger sets frames delivered per trigger; zero means unlimited.
	SetFramesPerTrigger(n int) error
	Arm(buffers int) error
	Disarm() error
	IsArmed() bool
	IssueSoftwareTrigger() error

	// PendingFrame returns the next frame, or nil when none is ready.
	PendingFrame() (*RawFrame, error)

	Close() error
}

// ColorConfig carries the calibration needed to build a ColorProcessor.
type ColorConfig struct {
	Phase           FilterPhase
	ColorCorrection Matrix3
	WhiteBalance    Matrix3
	BitDepth        int
}

// ColorProcessor converts raw Bayer samples into interleaved RGB bytes.
type ColorProcessor interface {
	// Transform24 returns width*height*3 bytes in R, G, B order.
	Transform24(samples []uint16, width, height int) ([]byte, error)
	Close() error
}

// ColorProcessorFactory builds a ColorProcessor for a camera.
type ColorProcessorFactory func(cfg ColorConfig) (ColorProcessor, error)
