package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"droneops-relay/internal/edge"
	"droneops-relay/internal/logging"
)

var (
	emitServer   string
	emitDrone    string
	emitKey      string
	emitInterval time.Duration
	emitCount    int
	emitSeed     int64
	emitPoints   int
	emitRecord   string
)

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Simulate a drone posting lidar scans",
	Long:  "emit generates synthetic rotating-lidar scans and posts them to a relay, optionally recording each submission as JSONL.",
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

		server := emitServer
		if server == "" {
			server = cfg.Viewer.ServerURL
		}
		g := edge.NewGenerator(emitDrone, emitKey, emitSeed)
		g.PointsPerScan = emitPoints

		var sub edge.Submitter = edge.NewClient(server)
		if emitRecord != "" {
			rec, err := edge.NewRecorder(emitRecord)
			if err != nil {
				return err
			}
			defer rec.Close()
			sub = edge.Tee{rec, sub}
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		logger.Info("emitting scans", "drone_id", emitDrone, "server", server, "interval", emitInterval)
		st, err := edge.Emit(logging.NewContext(ctx, logger), g, sub, emitInterval, emitCount)
		logger.Info("emitter stopped", "sent", st.Sent, "rejected", st.Rejected, "failed", st.Failed)
		return err
	},
}

func init() {
	emitCmd.Flags().StringVar(&emitServer, "server", "", "Relay base URL (defaults to viewer.server_url)")
	emitCmd.Flags().StringVar(&emitDrone, "drone", "", "Drone ID to report")
	emitCmd.Flags().StringVar(&emitKey, "key", "", "API key bound to the drone")
	emitCmd.Flags().DurationVar(&emitInterval, "interval", time.Second, "Scan interval (e.g. 200ms, 1s)")
	emitCmd.Flags().IntVar(&emitCount, "count", 0, "Number of scans to send (0 = until interrupted)")
	emitCmd.Flags().Int64Var(&emitSeed, "seed", 1, "Random seed for the synthetic scene")
	emitCmd.Flags().IntVar(&emitPoints, "points", 360, "Samples per rotation")
	emitCmd.Flags().StringVar(&emitRecord, "record", "", "Append every submission to this JSONL file")
	emitCmd.MarkFlagRequired("drone")
	emitCmd.MarkFlagRequired("key")
}
