package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ayusman/livecam/internal/capture"
	"github.com/ayusman/livecam/internal/logger"
	"gocv.io/x/gocv"
)

// DefaultJPEGQuality is used when Config.JPEGQuality is zero.
const DefaultJPEGQuality = 85

// EncodeJPEG encodes a frame as JPEG through OpenCV.
func EncodeJPEG(f capture.Frame, quality int) ([]byte, error) {
	mat, err := f.BGRMat()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode %v: %w", f, err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

// StreamHandler serves the hub as an MJPEG stream.
type StreamHandler struct {
	hub      *FrameHub
	quality  int
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler. maxFPS limits the frame rate
// sent to each client; zero sends every published frame.
func NewStreamHandler(hub *FrameHub, quality, maxFPS int) *StreamHandler {
	h := &StreamHandler{hub: hub, quality: quality}
	if maxFPS > 0 {
		h.interval = time.Second / time.Duration(maxFPS)
	}
	return h
}

// ServeHTTP streams MJPEG frames until the client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("server")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	var version uint64
	for {
		frame, v, err := h.hub.Next(ctx, version)
		if err != nil {
			return
		}
		version = v

		buf, err := EncodeJPEG(frame, h.quality)
		if err != nil {
			log.Warn().Err(err).Msg("failed to encode stream frame")
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
		if _, err := w.Write(buf); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		if h.interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(h.interval):
			}
		}
	}
}

// SnapshotHandler serves the current frame as a single JPEG.
type SnapshotHandler struct {
	hub     *FrameHub
	quality int
}

// NewSnapshotHandler creates a SnapshotHandler.
func NewSnapshotHandler(hub *FrameHub, quality int) *SnapshotHandler {
	return &SnapshotHandler{hub: hub, quality: quality}
}

func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	frame, version := h.hub.Latest()
	if version == 0 {
		http.Error(w, "No frame available yet", http.StatusNotFound)
		return
	}

	buf, err := EncodeJPEG(frame, h.quality)
	if err != nil {
		http.Error(w, "Failed to encode frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.Write(buf)
}
