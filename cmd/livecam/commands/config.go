package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect livecam configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Display the configuration after merging defaults, the config file, LIVECAM_* variables and flags.`,
	Example: `  # Show configuration as YAML (default)
  livecam config show

  # Show configuration as JSON
  livecam config show --format json`,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	switch formatFlag {
	case "yaml", "yml":
		return cfg.WriteYAML(os.Stdout)
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	default:
		return fmt.Errorf("invalid format: %s (use yaml or json)", formatFlag)
	}
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if used := v.ConfigFileUsed(); used != "" {
		fmt.Println(used)
		return nil
	}
	fmt.Println("No config file in use; defaults and environment only.")
	return nil
}
