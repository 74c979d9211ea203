package server

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ayusman/livecam/internal/capture"
)

// FrameHub holds the most recent frame for HTTP clients. The acquisition
// side publishes; stream and snapshot handlers read.
type FrameHub struct {
	paused atomic.Bool

	mu      sync.Mutex
	frame   capture.Frame
	version uint64
	changed chan struct{}
}

// NewFrameHub creates an empty hub.
func NewFrameHub() *FrameHub {
	return &FrameHub{changed: make(chan struct{})}
}

// Publish replaces the current frame and wakes waiting readers. Frames are
// discarded while the hub is paused.
func (h *FrameHub) Publish(f capture.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused.Load() {
		return
	}

	h.frame = f
	h.version++
	close(h.changed)
	h.changed = make(chan struct{})
}

// Latest returns the current frame and its version. Version 0 means no
// frame has been published yet.
func (h *FrameHub) Latest() (capture.Frame, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame, h.version
}

// Next blocks until a frame newer than version is published or ctx ends.
func (h *FrameHub) Next(ctx context.Context, version uint64) (capture.Frame, uint64, error) {
	for {
		h.mu.Lock()
		if h.version > version {
			f, v := h.frame, h.version
			h.mu.Unlock()
			return f, v, nil
		}
		changed := h.changed
		h.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return capture.Frame{}, version, ctx.Err()
		}
	}
}

// SetPaused freezes the hub on its current frame.
func (h *FrameHub) SetPaused(paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused.Store(paused)
}

// Paused reports whether publishing is paused.
func (h *FrameHub) Paused() bool {
	return h.paused.Load()
}
