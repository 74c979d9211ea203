// Package capture turns raw SDK frames into 8-bit pixel buffers on a
// dedicated acquisition goroutine.
package capture

import (
	"fmt"
	"image"
	"time"
)

// Frame is one acquired and converted image.
//
// Pix is row-major: Height x Width samples for monochrome frames and
// Height x Width x 3 interleaved R, G, B samples for color frames.
// A Frame taken from the queue is owned by the caller; the acquisition
// loop never touches its Pix again.
type Frame struct {
	Pix       []byte
	Width     int
	Height    int
	Channels  int
	Seq       uint64
	Timestamp time.Time
}

// IsColor reports whether the frame has three channels.
func (f Frame) IsColor() bool {
	return f.Channels == 3
}

// Shape returns the array shape: (height, width) or (height, width, 3).
func (f Frame) Shape() []int {
	if f.IsColor() {
		return []int{f.Height, f.Width, 3}
	}
	return []int{f.Height, f.Width}
}

// At returns channel c of the pixel at (x, y).
func (f Frame) At(x, y, c int) byte {
	return f.Pix[(y*f.Width+x)*f.Channels+c]
}

// Image returns the frame as an image.Image. Monochrome frames share Pix;
// color frames are copied into an RGBA image.
func (f Frame) Image() image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	if !f.IsColor() {
		return &image.Gray{Pix: f.Pix, Stride: f.Width, Rect: rect}
	}

	rgba := image.NewRGBA(rect)
	for i, j := 0, 0; i+2 < len(f.Pix); i, j = i+3, j+4 {
		rgba.Pix[j] = f.Pix[i]
		rgba.Pix[j+1] = f.Pix[i+1]
		rgba.Pix[j+2] = f.Pix[i+2]
		rgba.Pix[j+3] = 0xff
	}
	return rgba
}

func (f Frame) String() string {
	return fmt.Sprintf("frame #%d %dx%dx%d", f.Seq, f.Width, f.Height, f.Channels)
}
