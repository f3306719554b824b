package store

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"droneops-relay/internal/scan"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS drones (
  drone_id  TEXT PRIMARY KEY,
  name      TEXT NOT NULL DEFAULT '',
  last_seen INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS scans (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  drone_id     TEXT NOT NULL,
  timestamp    TEXT NOT NULL,
  point_count  REAL NOT NULL,
  valid_points REAL NOT NULL,
  min_distance REAL NOT NULL,
  max_distance REAL NOT NULL,
  avg_distance REAL NOT NULL,
  avg_quality  REAL NOT NULL,
  received_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS scans_by_drone ON scans (drone_id, id);
CREATE TABLE IF NOT EXISTS api_keys (
  api_key   TEXT PRIMARY KEY,
  drone_id  TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1
);
`

// SQLite is an embedded RecordStore and credential store.
type SQLite struct {
	pool   *sqlitex.Pool
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := runtime.NumCPU()
	if size < 4 {
		size = 4
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}
	logger.Info("sqlite store opened", "path", path, "pool_size", size)
	return &SQLite{pool: pool, path: path, logger: logger}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
}

func (s *SQLite) with(ctx context.Context, fn func(*sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// UpsertDrone implements DroneStore.
func (s *SQLite) UpsertDrone(ctx context.Context, droneID string, seen time.Time) error {
	return s.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
INSERT INTO drones (drone_id, last_seen, is_active) VALUES (?, ?, 1)
ON CONFLICT(drone_id) DO UPDATE SET last_seen = excluded.last_seen, is_active = 1`,
			&sqlitex.ExecOptions{Args: []any{droneID, seen.UTC().UnixNano()}})
	})
}

// InsertScan implements ScanSink.
func (s *SQLite) InsertScan(ctx context.Context, r scan.ScanRecord) error {
	return s.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
INSERT INTO scans (drone_id, timestamp, point_count, valid_points, min_distance, max_distance, avg_distance, avg_quality, received_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				r.DroneID, r.Timestamp, r.PointCount, r.ValidPoints, r.MinDistance,
				r.MaxDistance, r.AvgDistance, r.AvgQuality, r.ReceivedAt.UTC().UnixNano(),
			}})
	})
}

// ListDrones implements Querier.
func (s *SQLite) ListDrones(ctx context.Context) ([]scan.Drone, error) {
	var out []scan.Drone
	err := s.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT drone_id, name, last_seen, is_active FROM drones ORDER BY drone_id`,
			&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scan.Drone{
					ID:       stmt.ColumnText(0),
					Name:     stmt.ColumnText(1),
					LastSeen: time.Unix(0, stmt.ColumnInt64(2)).UTC(),
					Active:   stmt.ColumnInt64(3) != 0,
				})
				return nil
			}})
	})
	return out, err
}

// RecentScans implements Querier.
func (s *SQLite) RecentScans(ctx context.Context, droneID string, limit int) ([]scan.ScanRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	var out []scan.ScanRecord
	err := s.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
SELECT drone_id, timestamp, point_count, valid_points, min_distance, max_distance, avg_distance, avg_quality, received_at
FROM scans WHERE drone_id = ? ORDER BY id DESC LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{droneID, int64(limit)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					out = append(out, scan.ScanRecord{
						DroneID:     stmt.ColumnText(0),
						Timestamp:   stmt.ColumnText(1),
						PointCount:  stmt.ColumnFloat(2),
						ValidPoints: stmt.ColumnFloat(3),
						MinDistance: stmt.ColumnFloat(4),
						MaxDistance: stmt.ColumnFloat(5),
						AvgDistance: stmt.ColumnFloat(6),
						AvgQuality:  stmt.ColumnFloat(7),
						ReceivedAt:  time.Unix(0, stmt.ColumnInt64(8)).UTC(),
					})
					return nil
				},
			})
	})
	return out, err
}

// LookupKey implements CredentialStore.
func (s *SQLite) LookupKey(ctx context.Context, key string) (scan.Credential, error) {
	var (
		cred  scan.Credential
		found bool
	)
	err := s.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT api_key, drone_id, is_active FROM api_keys WHERE api_key = ?`,
			&sqlitex.ExecOptions{
				Args: []any{key},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					cred = scan.Credential{
						Key:     stmt.ColumnText(0),
						DroneID: stmt.ColumnText(1),
						Active:  stmt.ColumnInt64(2) != 0,
					}
					return nil
				},
			})
	})
	if err != nil {
		return scan.Credential{}, err
	}
	if !found {
		return scan.Credential{}, ErrNotFound
	}
	return cred, nil
}

// PutCredential implements CredentialWriter.
func (s *SQLite) PutCredential(ctx context.Context, c scan.Credential) error {
	active := int64(0)
	if c.Active {
		active = 1
	}
	return s.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
INSERT INTO api_keys (api_key, drone_id, is_active) VALUES (?, ?, ?)
ON CONFLICT(api_key) DO UPDATE SET drone_id = excluded.drone_id, is_active = excluded.is_active`,
			&sqlitex.ExecOptions{Args: []any{c.Key, c.DroneID, active}})
	})
}

// RevokeCredential implements CredentialWriter.
func (s *SQLite) RevokeCredential(ctx context.Context, key string) error {
	return s.with(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `UPDATE api_keys SET is_active = 0 WHERE api_key = ?`,
			&sqlitex.ExecOptions{Args: []any{key}}); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Close closes the connection pool.
func (s *SQLite) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite: closing %s: %w", s.path, err)
	}
	s.logger.Info("sqlite store closed", "path", s.path)
	return nil
}
