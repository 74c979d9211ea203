package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayusman/livecam/internal/camera"
	"github.com/ayusman/livecam/internal/logger"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

// viewPollDelay is the WaitKey delay between TryGetLatest polls.
const viewPollDelay = 10 * time.Millisecond

var viewMaxFrames int

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the live view in a window",
	Long: `Open the selected camera and show its frames in an OpenCV window.

Press q in the window to quit.`,
	Example: `  # View the first simulated camera
  livecam view

  # View the second V4L2 device
  livecam view --backend v4l2 --camera 1`,
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().IntVarP(&viewMaxFrames, "frames", "n", 0, "quit after this many frames (0 runs until q)")
}

func runView(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli")

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = camera.With(ctx, provider, cfg.CameraIndex, func(c *camera.Controller) error {
		log.Info().Str("camera", c.CameraName()).Msg("streaming, press q to quit")
		return viewLoop(ctx, c)
	}, controllerOptions(cfg)...)

	return startError(err)
}

func viewLoop(ctx context.Context, c *camera.Controller) error {
	window := gocv.NewWindow("livecam")
	defer window.Close()

	shown := 0
	for ctx.Err() == nil {
		if f, ok := c.TryGetLatest(); ok {
			mat, err := f.BGRMat()
			if err != nil {
				return err
			}
			window.IMShow(mat)
			mat.Close()

			fmt.Println(f.Seq)
			shown++
			if viewMaxFrames > 0 && shown >= viewMaxFrames {
				return nil
			}
		}

		if key := window.WaitKey(int(viewPollDelay / time.Millisecond)); key == 'q' {
			return nil
		}
	}
	return nil
}
