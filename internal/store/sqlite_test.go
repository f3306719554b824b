package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"droneops-relay/internal/scan"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "relay.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteDronesAndScans(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	seen := time.Unix(1700000000, 0).UTC()

	if err := s.UpsertDrone(ctx, "d1", seen); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertDrone(ctx, "d1", seen.Add(time.Minute)); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	drones, err := s.ListDrones(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(drones) != 1 || drones[0].ID != "d1" || !drones[0].Active {
		t.Fatalf("unexpected drones: %#v", drones)
	}
	if !drones[0].LastSeen.Equal(seen.Add(time.Minute)) {
		t.Fatalf("last seen = %v", drones[0].LastSeen)
	}

	for i := 1; i <= 3; i++ {
		rec := scan.ScanRecord{
			DroneID:    "d1",
			Timestamp:  fmt.Sprintf("2024-01-01T00:00:%02dZ", i),
			PointCount: float64(i * 100),
			AvgQuality: 10,
			ReceivedAt: seen.Add(time.Duration(i) * time.Second),
		}
		if err := s.InsertScan(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	rows, err := s.RecentScans(ctx, "d1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].PointCount != 300 || rows[1].PointCount != 200 {
		t.Fatalf("rows not newest first: %#v", rows)
	}
	if rows[0].Timestamp != "2024-01-01T00:00:03Z" || rows[0].AvgQuality != 10 {
		t.Fatalf("row fields lost: %#v", rows[0])
	}
}

func TestSQLiteCredentials(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	if _, err := s.LookupKey(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.PutCredential(ctx, scan.Credential{Key: "k1", DroneID: "d1", Active: true}); err != nil {
		t.Fatalf("put: %v", err)
	}
	c, err := s.LookupKey(ctx, "k1")
	if err != nil || c.DroneID != "d1" || !c.Active {
		t.Fatalf("lookup = %#v, %v", c, err)
	}
	if err := s.RevokeCredential(ctx, "k1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if c, _ := s.LookupKey(ctx, "k1"); c.Active {
		t.Fatalf("credential still active")
	}
	if err := s.RevokeCredential(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoke unknown: %v", err)
	}
}
