// Package store defines the durable collaborators of the relay and their
// backends.
package store

import (
	"context"
	"errors"
	"time"

	"droneops-relay/internal/scan"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("not found")

// CredentialStore resolves API keys.
type CredentialStore interface {
	LookupKey(ctx context.Context, key string) (scan.Credential, error)
}

// CredentialWriter provisions and revokes API keys.
type CredentialWriter interface {
	PutCredential(ctx context.Context, c scan.Credential) error
	RevokeCredential(ctx context.Context, key string) error
}

// DroneStore keeps one liveness row per drone.
type DroneStore interface {
	UpsertDrone(ctx context.Context, droneID string, seen time.Time) error
}

// ScanSink appends scan summary rows.
type ScanSink interface {
	InsertScan(ctx context.Context, rec scan.ScanRecord) error
}

// Querier serves the read side of the record store.
type Querier interface {
	ListDrones(ctx context.Context) ([]scan.Drone, error)
	RecentScans(ctx context.Context, droneID string, limit int) ([]scan.ScanRecord, error)
}

// RecordStore is the primary durable store.
type RecordStore interface {
	DroneStore
	ScanSink
	Querier
	Close() error
}
