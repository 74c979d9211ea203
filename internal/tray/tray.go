// Package tray provides a system tray menu for the livecam viewer.
package tray

import (
	"fmt"
	"sync"

	"github.com/ayusman/livecam/internal/capture"
	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(live bool)
	onOpen   func()
	onQuit   func()
	live     bool
	camera   string
	mu       sync.RWMutex

	menuToggle    *systray.MenuItem
	menuLastFrame *systray.MenuItem
	menuCamera    *systray.MenuItem
}

// New creates a new Tray in the live state.
func New() *Tray {
	return &Tray{
		live: true,
	}
}

// OnToggle sets the callback run when live view is paused or resumed.
func (t *Tray) OnToggle(fn func(live bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpenStream sets the callback run when "Open Stream..." is clicked.
func (t *Tray) OnOpenStream(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback run when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray. It blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray from outside the menu, e.g. on a signal.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("livecam")
	systray.SetTooltip("livecam camera viewer")

	t.mu.Lock()
	t.menuCamera = systray.AddMenuItem(cameraTitle(t.camera), "Active camera")
	t.menuCamera.Disable()
	systray.AddSeparator()

	t.menuToggle = systray.AddMenuItem(toggleTitle(t.live), "Pause or resume the live view")
	t.menuLastFrame = systray.AddMenuItem("Last frame: none", "Most recent frame")
	t.menuLastFrame.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Stream...", "Open the live stream in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit livecam")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func cameraTitle(name string) string {
	if name == "" {
		return "Camera: none"
	}
	return "Camera: " + name
}

func toggleTitle(live bool) string {
	if live {
		return "● Live"
	}
	return "○ Paused"
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.live = !t.live
	live := t.live
	t.menuToggle.SetTitle(toggleTitle(live))
	callback := t.onToggle
	t.mu.Unlock()

	// outside the lock: the callback may call back into the tray
	if callback != nil {
		callback(live)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetCamera shows the active camera name. It may be called before Run.
func (t *Tray) SetCamera(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.camera = name
	if t.menuCamera != nil {
		t.menuCamera.SetTitle(cameraTitle(name))
	}
}

// SetLastFrame updates the last frame display in the menu.
func (t *Tray) SetLastFrame(f capture.Frame) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastFrame != nil {
		t.menuLastFrame.SetTitle(fmt.Sprintf("Last frame: #%d %dx%d", f.Seq, f.Width, f.Height))
	}
}

// IsLive returns the current toggle state.
func (t *Tray) IsLive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}
