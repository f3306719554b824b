package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"droneops-relay/internal/config"
	"droneops-relay/internal/logging"
	"droneops-relay/internal/scan"
	"droneops-relay/internal/store"
)

var (
	keysDrone    string
	keysKey      string
	keysInactive bool
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Provision and revoke drone API keys",
}

var keysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Bind an API key to a drone",
	RunE: func(cmd *cobra.Command, args []string) error {
		key := keysKey
		if key == "" {
			key = uuid.NewString()
		}
		err := withCredentials(cmd.Context(), func(ctx context.Context, w credentialBackend) error {
			return w.PutCredential(ctx, scan.Credential{Key: key, DroneID: keysDrone, Active: !keysInactive})
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, keysDrone)
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Deactivate an API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := withCredentials(cmd.Context(), func(ctx context.Context, w credentialBackend) error {
			return w.RevokeCredential(ctx, keysKey)
		})
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("key %q not found", keysKey)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", keysKey)
		return nil
	},
}

// withCredentials opens the configured credential backend, runs fn and
// closes it. The memory backend is rejected since keys written there
// would vanish with the process.
func withCredentials(ctx context.Context, fn func(context.Context, credentialBackend) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, logCloser, err := logging.NewWithOptions(os.Stderr, cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	creds, closer, err := openCredentials(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()
	return fn(ctx, creds)
}

func openCredentials(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) (credentialBackend, io.Closer, error) {
	if cfg.Credentials.Backend != "redis" && (cfg.Store.Backend == "" || cfg.Store.Backend == "memory") {
		return nil, nil, errors.New("memory credentials are seeded from credentials.seed; configure sqlite, mongo or redis to provision keys")
	}
	if cfg.Credentials.Backend == "redis" {
		return credentialsFor(ctx, cfg, nil)
	}
	records, err := openRecords(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	creds, _, err := credentialsFor(ctx, cfg, records)
	if err != nil {
		_ = records.Close()
		return nil, nil, err
	}
	return creds, records, nil
}

func init() {
	keysAddCmd.Flags().StringVar(&keysDrone, "drone", "", "Drone ID the key authenticates as")
	keysAddCmd.Flags().StringVar(&keysKey, "key", "", "Key value (random UUID when empty)")
	keysAddCmd.Flags().BoolVar(&keysInactive, "inactive", false, "Provision the key disabled")
	keysAddCmd.MarkFlagRequired("drone")
	keysRevokeCmd.Flags().StringVar(&keysKey, "key", "", "Key to revoke")
	keysRevokeCmd.MarkFlagRequired("key")
	keysCmd.AddCommand(keysAddCmd)
	keysCmd.AddCommand(keysRevokeCmd)
}
