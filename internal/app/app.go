// Package app wires a camera controller to the frame hub, the journal and
// the tray for the serve command.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/livecam/internal/camera"
	"github.com/ayusman/livecam/internal/capture"
	"github.com/ayusman/livecam/internal/journal"
	"github.com/ayusman/livecam/internal/logger"
	"github.com/ayusman/livecam/internal/sdk"
	"github.com/ayusman/livecam/internal/server"
	"github.com/rs/zerolog"
)

// DefaultDrainInterval is how often the pipeline takes frames from the
// controller.
const DefaultDrainInterval = 10 * time.Millisecond

// Config holds configuration options for the application.
type Config struct {
	Provider    sdk.Provider
	Backend     string
	CameraIndex int
	Options     []camera.Option

	// Journal is optional; sessions are recorded when set.
	Journal *journal.Journal
	// Frames receives every drained frame. A new hub is created when nil.
	Frames        *server.FrameHub
	DrainInterval time.Duration
}

// App owns one streaming session.
type App struct {
	config     Config
	log        *zerolog.Logger
	controller *camera.Controller
	frames     *server.FrameHub
	onFrame    func(capture.Frame)

	mu     sync.RWMutex
	stopCh chan struct{}
	done   chan struct{}
	last   capture.Frame
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.DrainInterval <= 0 {
		config.DrainInterval = DefaultDrainInterval
	}
	if config.Frames == nil {
		config.Frames = server.NewFrameHub()
	}

	return &App{
		config: config,
		log:    logger.WithComponent("app"),
		frames: config.Frames,
	}
}

// OnFrame registers a callback run on the pipeline goroutine for every
// drained frame. It must be set before Start.
func (a *App) OnFrame(fn func(capture.Frame)) {
	a.onFrame = fn
}

// Start opens the camera, records the session and starts the pipeline.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	ctrl, err := camera.Open(ctx, a.config.Provider, a.config.CameraIndex, a.config.Options...)
	if err != nil {
		return err
	}
	a.controller = ctrl

	if a.config.Journal != nil {
		s := &journal.Session{
			ID:          ctrl.SessionID(),
			Backend:     a.config.Backend,
			CameraIndex: a.config.CameraIndex,
			CameraName:  ctrl.CameraName(),
		}
		if err := a.config.Journal.Sessions().Start(s); err != nil {
			a.log.Warn().Err(err).Msg("failed to record session start")
		}
	}

	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(ctrl, a.stopCh, a.done)

	a.log.Info().Str("camera", ctrl.CameraName()).Str("session", ctrl.SessionID()).Msg("pipeline started")
	return nil
}

// Stop halts the pipeline, closes the camera and finishes the session.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh == nil {
		return
	}
	close(a.stopCh)
	<-a.done
	a.stopCh = nil

	a.controller.Close()

	if a.config.Journal != nil {
		st := a.controller.Stats()
		sum := journal.Summary{Produced: st.Produced, Dropped: st.Dropped, Fault: st.Fault}
		if err := a.config.Journal.Sessions().Finish(st.SessionID, sum); err != nil {
			a.log.Warn().Err(err).Msg("failed to record session end")
		}
	}

	a.log.Info().Msg("pipeline stopped")
}

// SetEnabled pauses or resumes the live view. Frames keep being drained
// while paused so the controller queue never backs up.
func (a *App) SetEnabled(enabled bool) {
	a.frames.SetPaused(!enabled)
}

// IsEnabled reports whether the live view is running.
func (a *App) IsEnabled() bool {
	return !a.frames.Paused()
}

// Controller returns the running controller, or nil before Start.
func (a *App) Controller() *camera.Controller {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.controller
}

// Stats returns the controller stats. It satisfies server.StatsProvider.
func (a *App) Stats() camera.Stats {
	if c := a.Controller(); c != nil {
		return c.Stats()
	}
	return camera.Stats{State: camera.StateUninitialized.String()}
}

// Frames returns the hub fed by the pipeline.
func (a *App) Frames() *server.FrameHub {
	return a.frames
}

// LastFrame returns the most recently drained frame.
func (a *App) LastFrame() (capture.Frame, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.last.Pix != nil
}
