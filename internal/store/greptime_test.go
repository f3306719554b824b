package store

import (
	"context"
	"errors"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"droneops-relay/internal/scan"
)

type mockGreptimeClient struct {
	table *table.Table
	err   error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, m.err
}

func TestGreptimeSinkInsertScan(t *testing.T) {
	m := &mockGreptimeClient{}
	g := &GreptimeSink{client: m, table: DefaultGreptimeTable, logger: discardLogger()}

	rec := scan.ScanRecord{
		DroneID:    "d1",
		Timestamp:  "2024-01-01T00:00:00Z",
		PointCount: 360,
		ReceivedAt: time.Unix(0, 0).UTC(),
	}
	if err := g.InsertScan(context.Background(), rec); err != nil {
		t.Fatalf("InsertScan: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}
	rows := m.table.GetRows()
	if len(rows.Schema) != 9 {
		t.Fatalf("schema length = %d, want 9", len(rows.Schema))
	}
	if rows.Schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("drone_id should be a tag, got %v", rows.Schema[0].SemanticType)
	}
	vals := rows.Rows[0].Values
	if got := vals[0].GetStringValue(); got != "d1" {
		t.Fatalf("drone_id = %s, want d1", got)
	}
	if got := vals[1].GetStringValue(); got != rec.Timestamp {
		t.Fatalf("scan_ts = %s", got)
	}
	if got := vals[2].GetF64Value(); got != 360 {
		t.Fatalf("point_count = %v, want 360", got)
	}
}

func TestGreptimeSinkWriteError(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	g := &GreptimeSink{client: m, table: DefaultGreptimeTable, logger: discardLogger()}
	if err := g.InsertScan(context.Background(), scan.ScanRecord{DroneID: "d1"}); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
		err  bool
	}{
		{"localhost:4001", "localhost", 4001, false},
		{"greptime", "greptime", 0, false},
		{"db:abc", "", 0, true},
	}
	for _, tc := range cases {
		host, port, err := splitEndpoint(tc.in)
		if (err != nil) != tc.err {
			t.Fatalf("%s: err = %v", tc.in, err)
		}
		if !tc.err && (host != tc.host || port != tc.port) {
			t.Fatalf("%s: got %s:%d", tc.in, host, port)
		}
	}
}
