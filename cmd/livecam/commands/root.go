// Package commands implements the livecam command line.
package commands

import (
	"fmt"
	"os"

	"github.com/ayusman/livecam/internal/config"
	"github.com/ayusman/livecam/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	// v and cfg are set by loadConfig before any subcommand runs.
	v   *viper.Viper
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "livecam",
		Short: "livecam - live view for scientific cameras",
		Long: `livecam streams frames from a camera SDK through a small bounded queue
so a viewer always sees the most recent image.

Backends:
  • sim   simulated mono or Bayer camera
  • v4l2  Linux video devices (GREY and Y16)
  • gocv  any camera OpenCV can open`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentPreRunE = loadConfig

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/livecam/config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("backend", "", "camera backend (sim, v4l2, gocv)")
	flags.Int("camera", 0, "camera index")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	v = config.NewViper(cfgFile)

	flags := rootCmd.PersistentFlags()
	v.BindPFlag("log_level", flags.Lookup("log-level"))
	v.BindPFlag("backend", flags.Lookup("backend"))
	v.BindPFlag("camera_index", flags.Lookup("camera"))

	c, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = c

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
