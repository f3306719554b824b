package store

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"droneops-relay/internal/scan"
)

// DefaultGreptimeTable is the table scan summaries are written to.
const DefaultGreptimeTable = "drone_scans"

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeSink mirrors scan summary rows into GreptimeDB as time series.
type GreptimeSink struct {
	client greptimeClient
	table  string
	logger *slog.Logger
}

// NewGreptimeSink creates a GreptimeDB ingester client. The table is
// created by GreptimeDB on first write.
func NewGreptimeSink(host string, port int, database, tableName string, logger *slog.Logger) (*GreptimeSink, error) {
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port > 0 {
		cfg = cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if tableName == "" {
		tableName = DefaultGreptimeTable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GreptimeSink{client: client, table: tableName, logger: logger}, nil
}

// NewGreptimeSinkFromEndpoint accepts "host" or "host:port".
func NewGreptimeSinkFromEndpoint(endpoint, database, tableName string, logger *slog.Logger) (*GreptimeSink, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	return NewGreptimeSink(host, port, database, tableName, logger)
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, 0, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint %q: bad port: %w", endpoint, err)
	}
	return host, port, nil
}

// InsertScan implements ScanSink.
func (g *GreptimeSink) InsertScan(ctx context.Context, rec scan.ScanRecord) error {
	return g.InsertScans(ctx, []scan.ScanRecord{rec})
}

// InsertScans writes several rows in one request.
func (g *GreptimeSink) InsertScans(ctx context.Context, rows []scan.ScanRecord) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := g.buildTable(rows)
	if err != nil {
		return err
	}
	if _, err := g.client.Write(ctx, tbl); err != nil {
		g.logger.Error("greptime write failed", "table", g.table, "err", err)
		return err
	}
	g.logger.Debug("greptime rows written", "table", g.table, "rows", len(rows))
	return nil
}

func (g *GreptimeSink) buildTable(rows []scan.ScanRecord) (*table.Table, error) {
	tbl, err := table.New(g.table)
	if err != nil {
		return nil, err
	}
	steps := []func() error{
		func() error { return tbl.AddTagColumn("drone_id", types.STRING) },
		func() error { return tbl.AddFieldColumn("scan_ts", types.STRING) },
		func() error { return tbl.AddFieldColumn("point_count", types.FLOAT64) },
		func() error { return tbl.AddFieldColumn("valid_points", types.FLOAT64) },
		func() error { return tbl.AddFieldColumn("min_distance", types.FLOAT64) },
		func() error { return tbl.AddFieldColumn("max_distance", types.FLOAT64) },
		func() error { return tbl.AddFieldColumn("avg_distance", types.FLOAT64) },
		func() error { return tbl.AddFieldColumn("avg_quality", types.FLOAT64) },
		func() error { return tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	for _, r := range rows {
		if err := tbl.AddRow(
			r.DroneID, r.Timestamp, r.PointCount, r.ValidPoints, r.MinDistance,
			r.MaxDistance, r.AvgDistance, r.AvgQuality, r.ReceivedAt,
		); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
