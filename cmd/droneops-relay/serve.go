package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"droneops-relay/internal/api"
	"droneops-relay/internal/cache"
	"droneops-relay/internal/config"
	"droneops-relay/internal/hub"
	"droneops-relay/internal/ingest"
	"droneops-relay/internal/logging"
	"droneops-relay/internal/metrics"
	"droneops-relay/internal/scan"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long:  "serve accepts scan batches over HTTP and JSON-RPC, fans them out to websocket viewers and answers pull requests from the last-known cache.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveListen != "" {
			cfg.Server.ListenAddr = serveListen
		}
		logger, logCloser, err := logging.NewWithOptions(os.Stdout, cfg.Logging)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, cleanup, err := newRelay(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		logger.Info("backends ready", "store", cfg.Store.Backend, "credentials", cfg.Credentials.Backend)
		return srv.Start(ctx, cfg.Server.ListenAddr, cfg.Server.ShutdownTimeout)
	},
}

// newRelay assembles the server from cfg. cleanup closes the backends.
func newRelay(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) (*api.Server, func(), error) {
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := b.Close(); err != nil {
			logger.Warn("closing backends", "err", err)
		}
	}

	lk := cache.New()
	reg := hub.NewRegistry()
	m := metrics.New(lk.Len)
	bc := hub.NewBroadcaster(reg, m, logger)
	svc := ingest.New(ingest.Deps{
		Credentials: b.creds,
		Drones:      b.records,
		Scans:       b.scans,
		Cache:       lk,
		Publisher:   ingest.PublisherFunc(func(batch *scan.Batch) { bc.Publish(batch) }),
		Observer:    m,
		Logger:      logger,
	})
	push := hub.NewServer(reg, hub.SessionConfig{
		SendBuffer:      cfg.Push.SendBuffer,
		WriteTimeout:    cfg.Push.WriteTimeout,
		PingInterval:    cfg.Push.PingInterval,
		MaxMessageBytes: cfg.Push.MaxMessageBytes,
		OriginPatterns:  cfg.Server.AllowedOrigins,
	}, m, logger)
	srv := api.NewServer(api.Deps{
		Ingest:         svc,
		Cache:          lk,
		Registry:       reg,
		Push:           push,
		Query:          b.records,
		Metrics:        m,
		Logger:         logger,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		LivenessWindow: cfg.LivenessWindow,
	})
	return srv, cleanup, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides server.listen_addr)")
}
