package sim

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ayusman/livecam/internal/sdk"
)

// Gradient returns a width*height diagonal ramp of bitDepth-bit samples,
// shifted by offset so consecutive frames differ.
func Gradient(width, height, bitDepth, offset int) []uint16 {
	maxVal := 1<<bitDepth - 1
	samples := make([]uint16, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			samples[y*width+x] = uint16((x*16 + y*16 + offset) & maxVal)
		}
	}
	return samples
}

// Constant returns width*height samples all set to v.
func Constant(width, height int, v uint16) []uint16 {
	samples := make([]uint16, width*height)
	for i := range samples {
		samples[i] = v
	}
	return samples
}

// Mosaic returns a Bayer mosaic of a uniform color. r, g, b are raw sample
// values placed on the sites of the matching color for the given phase.
func Mosaic(width, height int, phase sdk.FilterPhase, r, g, b uint16) []uint16 {
	samples := make([]uint16, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var v uint16
			switch siteColor(phase, x, y) {
			case 0:
				v = r
			case 1:
				v = g
			default:
				v = b
			}
			samples[y*width+x] = v
		}
	}
	return samples
}

// siteColor returns 0, 1, 2 for the red, green, blue site at (x, y).
func siteColor(phase sdk.FilterPhase, x, y int) int {
	// layout of the 2x2 tile: [top-left, top-right, bottom-left, bottom-right]
	var tile [4]int
	switch phase {
	case sdk.PhaseRedGreen:
		tile = [4]int{0, 1, 1, 2}
	case sdk.PhaseGreenRed:
		tile = [4]int{1, 0, 2, 1}
	case sdk.PhaseGreenBlue:
		tile = [4]int{1, 2, 0, 1}
	default:
		tile = [4]int{2, 1, 1, 0}
	}
	return tile[(y%2)*2+x%2]
}

// ColorProcessor is a pure-Go nearest-neighbor demosaic used where OpenCV is
// unavailable. It counts Close calls and can fail on a chosen call.
type ColorProcessor struct {
	cfg sdk.ColorConfig
	// FailOnCall makes the n-th Transform24 call (1-based) return an error.
	FailOnCall int

	calls  atomic.Int32
	closes atomic.Int32
}

// ProcessorRecorder hands out ColorProcessors and keeps them for inspection.
type ProcessorRecorder struct {
	// FailOnCall is copied into every processor created.
	FailOnCall int
	// CreateErr, when set, is returned instead of a processor.
	CreateErr error

	mu         sync.Mutex
	processors []*ColorProcessor
}

// Factory implements sdk.ColorProcessorFactory.
func (r *ProcessorRecorder) Factory(cfg sdk.ColorConfig) (sdk.ColorProcessor, error) {
	if r.CreateErr != nil {
		return nil, r.CreateErr
	}
	p := &ColorProcessor{cfg: cfg, FailOnCall: r.FailOnCall}

	r.mu.Lock()
	r.processors = append(r.processors, p)
	r.mu.Unlock()

	return p, nil
}

// Processors returns every processor created.
func (r *ProcessorRecorder) Processors() []*ColorProcessor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ColorProcessor(nil), r.processors...)
}

// NewColorProcessor implements sdk.ColorProcessorFactory without recording.
func NewColorProcessor(cfg sdk.ColorConfig) (sdk.ColorProcessor, error) {
	return &ColorProcessor{cfg: cfg}, nil
}

// Transform24 implements sdk.ColorProcessor. Each 2x2 tile becomes one
// RGB value repeated over its four pixels.
func (p *ColorProcessor) Transform24(samples []uint16, width, height int) ([]byte, error) {
	n := int(p.calls.Add(1))
	if p.closes.Load() > 0 {
		return nil, sdk.ErrClosed
	}
	if p.FailOnCall > 0 && n == p.FailOnCall {
		return nil, errors.New("sim: injected color transform failure")
	}
	if len(samples) != width*height {
		return nil, errors.New("sim: sample count does not match dimensions")
	}

	shift := 0
	if p.cfg.BitDepth > 8 {
		shift = p.cfg.BitDepth - 8
	}

	out := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		ty := y &^ 1
		for x := 0; x < width; x++ {
			tx := x &^ 1
			var rgb [3]int
			var count [3]int
			for dy := 0; dy < 2 && ty+dy < height; dy++ {
				for dx := 0; dx < 2 && tx+dx < width; dx++ {
					c := siteColor(p.cfg.Phase, tx+dx, ty+dy)
					rgb[c] += int(samples[(ty+dy)*width+tx+dx])
					count[c]++
				}
			}
			i := (y*width + x) * 3
			for c := 0; c < 3; c++ {
				if count[c] > 0 {
					out[i+c] = byte((rgb[c] / count[c]) >> shift)
				}
			}
		}
	}
	return out, nil
}

// Close implements sdk.ColorProcessor.
func (p *ColorProcessor) Close() error {
	p.closes.Add(1)
	return nil
}

// Calls returns how many times Transform24 was called.
func (p *ColorProcessor) Calls() int { return int(p.calls.Load()) }

// Closes returns how many times Close was called.
func (p *ColorProcessor) Closes() int { return int(p.closes.Load()) }
