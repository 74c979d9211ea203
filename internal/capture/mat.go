package capture

import (
	"fmt"

	"gocv.io/x/gocv"
)

// BGRMat copies the frame into a Mat in OpenCV channel order: 8UC1 for
// monochrome frames, 8UC3 BGR for color frames. The caller closes it.
func (f Frame) BGRMat() (gocv.Mat, error) {
	switch f.Channels {
	case 1:
		src, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC1, f.Pix)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("wrap %v: %w", f, err)
		}
		defer src.Close()
		return src.Clone(), nil
	case 3:
		src, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pix)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("wrap %v: %w", f, err)
		}
		defer src.Close()
		dst := gocv.NewMat()
		gocv.CvtColor(src, &dst, gocv.ColorRGBToBGR)
		return dst, nil
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d", f.Channels)
	}
}
