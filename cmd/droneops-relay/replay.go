package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"droneops-relay/internal/edge"
	"droneops-relay/internal/logging"
	"droneops-relay/internal/scan"
)

var (
	replayInput  string
	replaySpeed  float64
	replayServer string
	replayKey    string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded scan file",
	Long:  "replay re-submits scans recorded by emit --record to a relay, keeping their original spacing scaled by --speed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, logCloser, err := logging.NewWithOptions(os.Stdout, cfg.Logging)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		server := replayServer
		if server == "" {
			server = cfg.Viewer.ServerURL
		}
		client := edge.NewClient(server)
		var sub edge.Submitter = client
		if replayKey != "" {
			sub = edge.SubmitterFunc(func(ctx context.Context, s *scan.Submission) error {
				s.APIKey = replayKey
				return client.Submit(ctx, s)
			})
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		n, err := edge.ReplayFile(ctx, replayInput, sub, replaySpeed)
		logger.Info("replay finished", "input", replayInput, "submitted", n)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a JSONL scan recording")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 = no delay)")
	replayCmd.Flags().StringVar(&replayServer, "server", "", "Relay base URL (defaults to viewer.server_url)")
	replayCmd.Flags().StringVar(&replayKey, "key", "", "Override the recorded API key")
	replayCmd.MarkFlagRequired("input")
}
