package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"droneops-relay/internal/scan"
)

// maxMemoryScans bounds the per-drone history kept by Memory.
const maxMemoryScans = 1024

// Memory is a process-local RecordStore and credential store used for
// development and tests.
type Memory struct {
	mu     sync.RWMutex
	drones map[string]scan.Drone
	scans  map[string][]scan.ScanRecord
	creds  map[string]scan.Credential
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		drones: make(map[string]scan.Drone),
		scans:  make(map[string][]scan.ScanRecord),
		creds:  make(map[string]scan.Credential),
	}
}

// UpsertDrone creates the drone row or refreshes its liveness.
func (m *Memory) UpsertDrone(_ context.Context, droneID string, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.drones[droneID]
	d.ID = droneID
	d.LastSeen = seen.UTC()
	d.Active = true
	m.drones[droneID] = d
	return nil
}

// InsertScan appends a scan summary row.
func (m *Memory) InsertScan(_ context.Context, rec scan.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := append(m.scans[rec.DroneID], rec)
	if len(rows) > maxMemoryScans {
		rows = rows[len(rows)-maxMemoryScans:]
	}
	m.scans[rec.DroneID] = rows
	return nil
}

// ListDrones returns all drones ordered by id.
func (m *Memory) ListDrones(_ context.Context) ([]scan.Drone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]scan.Drone, 0, len(m.drones))
	for _, d := range m.drones {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecentScans returns up to limit rows for droneID, newest first.
func (m *Memory) RecentScans(_ context.Context, droneID string, limit int) ([]scan.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.scans[droneID]
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	out := make([]scan.ScanRecord, 0, limit)
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}

// LookupKey implements CredentialStore.
func (m *Memory) LookupKey(_ context.Context, key string) (scan.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[key]
	if !ok {
		return scan.Credential{}, ErrNotFound
	}
	return c, nil
}

// PutCredential implements CredentialWriter.
func (m *Memory) PutCredential(_ context.Context, c scan.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.Key] = c
	return nil
}

// RevokeCredential implements CredentialWriter.
func (m *Memory) RevokeCredential(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[key]
	if !ok {
		return ErrNotFound
	}
	c.Active = false
	m.creds[key] = c
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
