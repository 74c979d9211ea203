package v4l2

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/livecam/internal/sdk"
	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

type fakeDevice struct {
	formats  map[webcam.PixelFormat]string
	width    uint32
	height   uint32
	frames   [][]byte
	timeouts int

	buffers   uint32
	streaming bool
	closes    int
	waits     []uint32
}

func (f *fakeDevice) GetSupportedFormats() map[webcam.PixelFormat]string { return f.formats }

func (f *fakeDevice) SetImageFormat(p webcam.PixelFormat, w, h uint32) (webcam.PixelFormat, uint32, uint32, error) {
	if w == 0 {
		w, h = f.width, f.height
	}
	f.width, f.height = w, h
	return p, w, h, nil
}

func (f *fakeDevice) SetBufferCount(n uint32) error { f.buffers = n; return nil }
func (f *fakeDevice) StartStreaming() error         { f.streaming = true; return nil }
func (f *fakeDevice) StopStreaming() error          { f.streaming = false; return nil }
func (f *fakeDevice) Close() error                  { f.closes++; return nil }

func (f *fakeDevice) WaitForFrame(timeout uint32) error {
	f.waits = append(f.waits, timeout)
	if f.timeouts > 0 {
		f.timeouts--
		return new(webcam.Timeout)
	}
	if len(f.frames) == 0 {
		return new(webcam.Timeout)
	}
	return nil
}

func (f *fakeDevice) ReadFrame() ([]byte, error) {
	buf := f.frames[0]
	f.frames = f.frames[1:]
	return buf, nil
}

func providerWith(dev *fakeDevice, glob string) *Provider {
	p := NewProvider(Options{DeviceGlob: glob})
	p.open = func(string) (device, error) { return dev, nil }
	return p
}

func openArmed(t *testing.T, dev *fakeDevice) sdk.Camera {
	t.Helper()

	h, _ := providerWith(dev, "").Open()
	cam, err := h.OpenCamera("/dev/video0")
	if err != nil {
		t.Fatalf("OpenCamera() error = %v", err)
	}
	if err := cam.Arm(2); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	if err := cam.IssueSoftwareTrigger(); err != nil {
		t.Fatalf("IssueSoftwareTrigger() error = %v", err)
	}
	return cam
}

func TestFourcc(t *testing.T) {
	if uint32(formatGrey) != 0x59455247 {
		t.Errorf("GREY = %#x, want 0x59455247", uint32(formatGrey))
	}
	if uint32(formatY16) != 0x20363159 {
		t.Errorf("Y16 = %#x, want 0x20363159", uint32(formatY16))
	}
}

func TestDiscoverCameras_Glob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video2", "video0", "other"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	h, _ := NewProvider(Options{DeviceGlob: filepath.Join(dir, "video*")}).Open()
	ids, err := h.DiscoverCameras()
	if err != nil {
		t.Fatalf("DiscoverCameras() error = %v", err)
	}
	if len(ids) != 2 || filepath.Base(ids[0]) != "video0" || filepath.Base(ids[1]) != "video2" {
		t.Errorf("DiscoverCameras() = %v, want sorted video0, video2", ids)
	}

	h.Close()
	if _, err := h.DiscoverCameras(); !errors.Is(err, sdk.ErrClosed) {
		t.Errorf("DiscoverCameras() after Close error = %v, want ErrClosed", err)
	}
}

func TestOpenCamera_FormatNegotiation(t *testing.T) {
	tests := []struct {
		name      string
		formats   map[webcam.PixelFormat]string
		wantDepth int
		wantErr   bool
	}{
		{name: "grey", formats: map[webcam.PixelFormat]string{formatGrey: "Greyscale"}, wantDepth: 8},
		{name: "prefers y16", formats: map[webcam.PixelFormat]string{formatGrey: "Greyscale", formatY16: "16-bit Greyscale"}, wantDepth: 16},
		{name: "mjpeg only", formats: map[webcam.PixelFormat]string{fourcc("MJPG"): "Motion-JPEG"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{formats: tt.formats, width: 4, height: 2}
			h, _ := providerWith(dev, "").Open()

			cam, err := h.OpenCamera("/dev/video0")
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("OpenCamera() error = %v, want ErrUnsupportedFormat", err)
				}
				if dev.closes != 1 {
					t.Errorf("device closed %d times after failed negotiation, want 1", dev.closes)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenCamera() error = %v", err)
			}
			if cam.BitDepth() != tt.wantDepth {
				t.Errorf("BitDepth() = %d, want %d", cam.BitDepth(), tt.wantDepth)
			}
			if cam.Width() != 4 || cam.Height() != 2 || cam.Name() != "/dev/video0" {
				t.Errorf("camera = %s %dx%d", cam.Name(), cam.Width(), cam.Height())
			}
		})
	}
}

func TestCamera_GreyFrames(t *testing.T) {
	dev := &fakeDevice{
		formats:  map[webcam.PixelFormat]string{formatGrey: "Greyscale"},
		width:    2,
		height:   2,
		frames:   [][]byte{{1, 2, 3, 4}},
		timeouts: 1,
	}
	cam := openArmed(t, dev)

	if dev.buffers != 2 || !dev.streaming {
		t.Errorf("Arm() buffers = %d streaming = %v", dev.buffers, dev.streaming)
	}

	f, err := cam.PendingFrame()
	if err != nil || f != nil {
		t.Fatalf("PendingFrame() on timeout = (%v, %v), want (nil, nil)", f, err)
	}

	f, err = cam.PendingFrame()
	if err != nil {
		t.Fatalf("PendingFrame() error = %v", err)
	}
	if f == nil || len(f.Samples) != 4 || f.Samples[3] != 4 || f.FrameCount != 1 {
		t.Errorf("PendingFrame() = %+v", f)
	}
	if dev.waits[0] != 0 {
		t.Errorf("WaitForFrame timeout = %d, want 0", dev.waits[0])
	}
}

func TestCamera_Y16Frames(t *testing.T) {
	dev := &fakeDevice{
		formats: map[webcam.PixelFormat]string{formatY16: "16-bit Greyscale"},
		width:   2,
		height:  1,
		frames:  [][]byte{{0x34, 0x12, 0xFF, 0xFF}, {0x00}},
	}
	cam := openArmed(t, dev)

	f, err := cam.PendingFrame()
	if err != nil {
		t.Fatalf("PendingFrame() error = %v", err)
	}
	if f.Samples[0] != 0x1234 || f.Samples[1] != 0xFFFF {
		t.Errorf("samples = %#x, want [0x1234 0xffff]", f.Samples)
	}

	if _, err := cam.PendingFrame(); err == nil {
		t.Error("PendingFrame() with a short frame should fail")
	}
}

func TestCamera_Lifecycle(t *testing.T) {
	dev := &fakeDevice{formats: map[webcam.PixelFormat]string{formatGrey: "Greyscale"}, width: 2, height: 2}
	cam := openArmed(t, dev)

	if err := cam.SetFramesPerTrigger(0); err != nil {
		t.Errorf("SetFramesPerTrigger(0) error = %v", err)
	}
	if err := cam.SetFramesPerTrigger(5); err == nil {
		t.Error("SetFramesPerTrigger(5) should fail")
	}
	if err := cam.Arm(2); !errors.Is(err, sdk.ErrArmed) {
		t.Errorf("second Arm() error = %v, want ErrArmed", err)
	}

	if err := cam.Disarm(); err != nil {
		t.Fatalf("Disarm() error = %v", err)
	}
	if dev.streaming {
		t.Error("device still streaming after Disarm")
	}
	if err := cam.Disarm(); !errors.Is(err, sdk.ErrNotArmed) {
		t.Errorf("second Disarm() error = %v, want ErrNotArmed", err)
	}

	if err := cam.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	cam.Close()
	if dev.closes != 1 {
		t.Errorf("device closed %d times, want 1", dev.closes)
	}
	if _, err := cam.PendingFrame(); !errors.Is(err, sdk.ErrClosed) {
		t.Errorf("PendingFrame() after Close error = %v, want ErrClosed", err)
	}
}
