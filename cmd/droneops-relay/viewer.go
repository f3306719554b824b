package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"droneops-relay/internal/logging"
	"droneops-relay/internal/viewer"
)

var (
	viewerDrone  string
	viewerServer string
	viewerPlain  bool
	viewerPoll   time.Duration
)

var viewerCmd = &cobra.Command{
	Use:   "viewer",
	Short: "Follow one drone's scans",
	Long:  "viewer subscribes to a drone over the push websocket and falls back to polling the relay when push is unavailable.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if viewerServer != "" {
			cfg.Viewer.ServerURL = viewerServer
		}
		if viewerPoll > 0 {
			cfg.Viewer.PollInterval = viewerPoll
		}
		interactive := !viewerPlain && term.IsTerminal(int(os.Stdout.Fd()))

		// Log lines would tear the TUI, so they only go to the log file there.
		var logOut io.Writer = os.Stderr
		if interactive {
			logOut = io.Discard
		}
		logger, logCloser, err := logging.NewWithOptions(logOut, cfg.Logging)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		wsURL, err := viewer.PushURL(cfg.Viewer.ServerURL)
		if err != nil {
			return fmt.Errorf("server url: %w", err)
		}
		n := viewer.New(viewerDrone,
			&viewer.WSDialer{URL: wsURL, ReadLimit: cfg.Push.MaxMessageBytes},
			&viewer.HTTPPuller{BaseURL: cfg.Viewer.ServerURL},
			viewer.Options{
				PollInterval:      cfg.Viewer.PollInterval,
				HandshakeTimeout:  cfg.Viewer.HandshakeTimeout,
				ReconnectInterval: cfg.Viewer.ReconnectInterval,
				Logger:            logger,
			})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if interactive {
			return viewer.RunTUI(ctx, n)
		}
		return viewer.RunLines(ctx, n, os.Stdout)
	},
}

func init() {
	viewerCmd.Flags().StringVar(&viewerDrone, "drone", "", "Drone ID to follow")
	viewerCmd.Flags().StringVar(&viewerServer, "server", "", "Relay base URL (overrides viewer.server_url)")
	viewerCmd.Flags().BoolVar(&viewerPlain, "plain", false, "Print one line per update instead of the TUI")
	viewerCmd.Flags().DurationVar(&viewerPoll, "poll", 0, "Poll interval while push is unavailable (overrides viewer.poll_interval)")
	viewerCmd.MarkFlagRequired("drone")
}
