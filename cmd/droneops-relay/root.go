package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"droneops-relay/internal/config"
)

var (
	rootConfigPath string
	rootSchemaPath string
)

var rootCmd = &cobra.Command{
	Use:          "droneops-relay",
	Short:        "DroneOps point-cloud relay",
	Long:         "droneops-relay ingests lidar scan batches from drones and relays them to live viewers over push or pull.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the file named by --config and applies env overrides.
func loadConfig() (*config.RelayConfig, error) {
	cfg, err := config.Load(rootConfigPath, rootSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Path to relay configuration YAML (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&rootSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(viewerCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(keysCmd)
}
