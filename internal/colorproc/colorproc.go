// Package colorproc converts raw Bayer frames into interleaved 8-bit RGB
// using OpenCV's demosaicing through GoCV.
package colorproc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ayusman/livecam/internal/sdk"
	"gocv.io/x/gocv"
)

// ErrClosed is returned by Transform24 after Close.
var ErrClosed = errors.New("colorproc: processor is closed")

// Processor demosaics Bayer samples and applies the camera's color
// correction and white balance.
type Processor struct {
	code     gocv.ColorConversionCode
	matrix   sdk.Matrix3
	identity bool
	scale    float32

	mu     sync.Mutex
	closed bool
	raw    []byte
}

// New creates a Processor. It satisfies sdk.ColorProcessorFactory.
func New(cfg sdk.ColorConfig) (sdk.ColorProcessor, error) {
	if cfg.BitDepth < 8 || cfg.BitDepth > 16 {
		return nil, fmt.Errorf("colorproc: unsupported bit depth %d", cfg.BitDepth)
	}

	code, err := bayerCode(cfg.Phase)
	if err != nil {
		return nil, err
	}

	// white balance is applied first, then color correction
	m := cfg.ColorCorrection.Mul(cfg.WhiteBalance)

	return &Processor{
		code:     code,
		matrix:   m,
		identity: m == sdk.Identity3,
		scale:    1 / float32(int(1)<<(cfg.BitDepth-8)),
	}, nil
}

// OpenCV names Bayer patterns after the second row, so RGGB is "BG".
func bayerCode(phase sdk.FilterPhase) (gocv.ColorConversionCode, error) {
	switch phase {
	case sdk.PhaseRedGreen:
		return gocv.ColorBayerBGToRGB, nil
	case sdk.PhaseGreenRed:
		return gocv.ColorBayerGBToRGB, nil
	case sdk.PhaseGreenBlue:
		return gocv.ColorBayerGRToRGB, nil
	case sdk.PhaseBlueGreen:
		return gocv.ColorBayerRGToRGB, nil
	default:
		return 0, fmt.Errorf("colorproc: unknown filter phase %d", phase)
	}
}

// Transform24 implements sdk.ColorProcessor.
func (p *Processor) Transform24(samples []uint16, width, height int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if width < 2 || height < 2 {
		return nil, fmt.Errorf("colorproc: frame %dx%d too small to demosaic", width, height)
	}
	if len(samples) != width*height {
		return nil, fmt.Errorf("colorproc: got %d samples for %dx%d frame", len(samples), width, height)
	}

	if cap(p.raw) < len(samples)*2 {
		p.raw = make([]byte, len(samples)*2)
	}
	raw := p.raw[:len(samples)*2]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], s)
	}

	bayer, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV16UC1, raw)
	if err != nil {
		return nil, fmt.Errorf("colorproc: wrap raw frame: %w", err)
	}
	defer bayer.Close()

	rgb16 := gocv.NewMat()
	defer rgb16.Close()
	gocv.CvtColor(bayer, &rgb16, p.code)

	rgb8 := gocv.NewMat()
	defer rgb8.Close()
	rgb16.ConvertToWithParams(&rgb8, gocv.MatTypeCV8U, p.scale, 0)

	out := rgb8.ToBytes()
	if len(out) != width*height*3 {
		return nil, fmt.Errorf("colorproc: demosaic produced %d bytes, want %d", len(out), width*height*3)
	}

	if !p.identity {
		applyMatrix(out, p.matrix)
	}
	return out, nil
}

// Close implements sdk.ColorProcessor. It is safe to call more than once.
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.raw = nil
	return nil
}

func applyMatrix(pix []byte, m sdk.Matrix3) {
	for i := 0; i+2 < len(pix); i += 3 {
		r, g, b := float32(pix[i]), float32(pix[i+1]), float32(pix[i+2])
		pix[i] = clamp8(m[0]*r + m[1]*g + m[2]*b)
		pix[i+1] = clamp8(m[3]*r + m[4]*g + m[5]*b)
		pix[i+2] = clamp8(m[6]*r + m[7]*g + m[8]*b)
	}
}

func clamp8(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v + 0.5)
	}
}
