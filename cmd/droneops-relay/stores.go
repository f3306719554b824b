package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"droneops-relay/internal/config"
	"droneops-relay/internal/scan"
	"droneops-relay/internal/store"
)

// credentialBackend is a credential store that can also be provisioned.
type credentialBackend interface {
	store.CredentialStore
	store.CredentialWriter
}

// backends is everything the relay persists to.
type backends struct {
	records store.RecordStore
	creds   credentialBackend
	scans   *store.MultiSink
	closers []io.Closer
}

// Close releases every backend, newest first.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// openRecords opens the primary record store selected by cfg.
func openRecords(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) (store.RecordStore, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.OpenSQLite(cfg.Store.SQLitePath, logger)
	case "mongo":
		client, err := store.NewMongoConnection(ctx, cfg.Store.MongoURI)
		if err != nil {
			return nil, err
		}
		m, err := store.NewMongo(ctx, client, cfg.Store.MongoDatabase)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// credentialsFor returns the credential backend selected by cfg. With
// the "store" backend the record store doubles as the credential store;
// the returned closer is nil in that case.
func credentialsFor(ctx context.Context, cfg *config.RelayConfig, records store.RecordStore) (credentialBackend, io.Closer, error) {
	if cfg.Credentials.Backend == "redis" {
		c := cfg.Credentials
		r, err := store.NewRedisCredentials(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	}
	cb, ok := records.(credentialBackend)
	if !ok {
		return nil, nil, fmt.Errorf("store backend %q cannot hold credentials", cfg.Store.Backend)
	}
	return cb, nil, nil
}

// openBackends wires the record store, credential store and scan sinks
// from cfg, then provisions the configured seed keys.
func openBackends(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) (*backends, error) {
	b := &backends{}
	records, err := openRecords(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	b.records = records
	b.closers = append(b.closers, records)

	creds, closer, err := credentialsFor(ctx, cfg, records)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.creds = creds
	if closer != nil {
		b.closers = append(b.closers, closer)
	}

	sinks := []store.ScanSink{records}
	if g := cfg.Sinks.Greptime; g.Endpoint != "" {
		gs, err := store.NewGreptimeSinkFromEndpoint(g.Endpoint, g.Database, g.Table, logger)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("greptime sink: %w", err)
		}
		logger.Info("mirroring scans to greptimedb", "endpoint", g.Endpoint, "table", g.Table)
		sinks = append(sinks, gs)
	}
	if cfg.Sinks.File != "" {
		fs, err := store.NewFileSink(cfg.Sinks.File)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		logger.Info("mirroring scans to file", "path", cfg.Sinks.File)
		sinks = append(sinks, fs)
		b.closers = append(b.closers, fs)
	}
	b.scans = store.NewMultiSink(sinks...)
	logger.Info("scan sinks ready", "sinks", b.scans.Len())

	if err := seedKeys(ctx, b.creds, cfg.Credentials.Seed); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func seedKeys(ctx context.Context, w store.CredentialWriter, seed []config.SeedKey) error {
	for _, k := range seed {
		c := scan.Credential{Key: k.APIKey, DroneID: k.DroneID, Active: k.IsActive()}
		if err := w.PutCredential(ctx, c); err != nil {
			return fmt.Errorf("seed key for %s: %w", k.DroneID, err)
		}
	}
	return nil
}
