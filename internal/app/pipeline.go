package app

import (
	"time"

	"github.com/ayusman/livecam/internal/camera"
)

// runPipeline drains the controller on a ticker and publishes the newest
// frame to the hub. An acquisition fault is logged once; frames queued
// before the fault are still drained.
func (a *App) runPipeline(ctrl *camera.Controller, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.config.DrainInterval)
	defer ticker.Stop()

	loopDone := ctrl.Done()
	for {
		select {
		case <-stopCh:
			return
		case <-loopDone:
			if err := ctrl.Err(); err != nil {
				a.log.Error().Err(err).Msg("acquisition stopped, live view will freeze")
			}
			loopDone = nil
			continue
		case <-ticker.C:
		}

		for {
			frame, ok := ctrl.TryGetLatest()
			if !ok {
				break
			}

			a.mu.Lock()
			a.last = frame
			a.mu.Unlock()

			a.frames.Publish(frame)
			if a.onFrame != nil {
				a.onFrame(frame)
			}
		}
	}
}
