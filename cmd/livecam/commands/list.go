package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ayusman/livecam/internal/logger"
	"github.com/spf13/cobra"
)

var listDetails bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cameras of the selected backend",
	Example: `  # List simulated cameras
  livecam list

  # List V4L2 devices with their negotiated format
  livecam list --backend v4l2 --details`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVarP(&listDetails, "details", "d", false, "open each camera and show its properties")
}

func runList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli")

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	handle, err := provider.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s SDK: %w", cfg.Backend, err)
	}
	defer handle.Close()

	ids, err := handle.DiscoverCameras()
	if err != nil {
		return fmt.Errorf("failed to discover cameras: %w", err)
	}
	if len(ids) == 0 {
		fmt.Println("No cameras found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if !listDetails {
		fmt.Fprintln(w, "INDEX\tID")
		for i, id := range ids {
			fmt.Fprintf(w, "%d\t%s\n", i, id)
		}
		return nil
	}

	fmt.Fprintln(w, "INDEX\tID\tSENSOR\tBITS\tSIZE")
	for i, id := range ids {
		cam, err := handle.OpenCamera(id)
		if err != nil {
			log.Warn().Err(err).Str("id", id).Msg("failed to open camera")
			fmt.Fprintf(w, "%d\t%s\t-\t-\t-\n", i, id)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%dx%d\n", i, id, cam.SensorType(), cam.BitDepth(), cam.Width(), cam.Height())
		cam.Close()
	}
	return nil
}
