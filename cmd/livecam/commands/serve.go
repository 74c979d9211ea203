package commands

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/livecam/internal/app"
	"github.com/ayusman/livecam/internal/capture"
	"github.com/ayusman/livecam/internal/config"
	"github.com/ayusman/livecam/internal/journal"
	"github.com/ayusman/livecam/internal/logger"
	"github.com/ayusman/livecam/internal/server"
	"github.com/ayusman/livecam/internal/tray"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
)

// trayRefresh limits how often the tray's last-frame item is rewritten.
const trayRefresh = 500 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the live view over HTTP",
	Long: `Open the selected camera and serve its frames as an MJPEG stream.

Endpoints:
  /api/health     camera state
  /api/stats      controller counters
  /api/stream     MJPEG live view
  /api/snapshot   latest frame as JPEG
  /api/ws         stats pushed over a WebSocket
  /api/sessions   journal of past sessions`,
	Example: `  # Serve the simulated camera on the default address
  livecam serve

  # Serve a V4L2 camera with a tray icon
  LIVECAM_TRAY=true livecam serve --backend v4l2`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (default 127.0.0.1:8090)")
	serveCmd.Flags().Bool("tray", false, "show a system tray icon")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli")

	v.BindPFlag("http_addr", cmd.Flags().Lookup("addr"))
	v.BindPFlag("tray", cmd.Flags().Lookup("tray"))
	addr := v.GetString("http_addr")
	useTray := v.GetBool("tray")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var j *journal.Journal
	if cfg.JournalPath != "" {
		var err error
		j, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()
		log.Debug().Str("path", j.Path()).Msg("journal opened")
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	a := app.New(app.Config{
		Provider:    provider,
		Backend:     cfg.Backend,
		CameraIndex: cfg.CameraIndex,
		Options:     controllerOptions(cfg),
		Journal:     j,
	})

	var t *tray.Tray
	if useTray {
		t = tray.New()
		var last time.Time
		a.OnFrame(func(f capture.Frame) {
			if time.Since(last) < trayRefresh {
				return
			}
			last = time.Now()
			t.SetLastFrame(f)
		})
	}

	if err := a.Start(ctx); err != nil {
		return startError(err)
	}
	defer a.Stop()

	srv := server.New(server.Config{
		StaticDir: findWebDir(),
		Journal:   j,
		Stats:     a,
		Frames:    a.Frames(),
	})

	errCh := make(chan error, 1)
	go func() {
		err := srv.Run(ctx, addr)
		if err != nil {
			stop()
		}
		errCh <- err
	}()

	daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info().
		Str("camera", a.Controller().CameraName()).
		Str("stream", "http://"+addr+"/api/stream").
		Msg("livecam is running, press Ctrl+C to stop")

	if t != nil {
		t.SetCamera(a.Controller().CameraName())
		t.OnToggle(a.SetEnabled)
		t.OnOpenStream(func() {
			if err := openBrowser("http://" + addr + "/api/stream"); err != nil {
				log.Warn().Err(err).Msg("failed to open browser")
			}
		})
		t.OnQuit(stop)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()

		// systray needs the main goroutine
		t.Run()
		stop()
	}

	err = <-errCh
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info().Msg("shutting down")
	return err
}

// findWebDir searches for a web directory in common locations.
// It checks: "web", "../web", "../../web", and the config directory.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	dir, err := config.Dir()
	if err != nil {
		return ""
	}
	web := filepath.Join(dir, "web")
	if info, err := os.Stat(web); err == nil && info.IsDir() {
		return web
	}
	return ""
}

func openBrowser(url string) error {
	var name string
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		name = "xdg-open"
	}
	return exec.Command(name, url).Start()
}
