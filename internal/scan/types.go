// Scan batch structures shared by ingest, cache, fan-out and viewers
package scan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Point is one ranged lidar sample. Angle is in degrees as sent by the
// producer; the relay never normalizes it.
type Point struct {
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"`
	Quality  float64 `json:"quality"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// Stats summarizes a batch. Values are trusted as given by the producer.
type Stats struct {
	PointCount  float64 `json:"point_count"`
	ValidPoints float64 `json:"valid_points"`
	MinDistance float64 `json:"min_distance"`
	MaxDistance float64 `json:"max_distance"`
	AvgDistance float64 `json:"avg_distance"`
	AvgQuality  float64 `json:"avg_quality"`
}

// Batch is the unit of ingestion, caching and broadcast.
//
// Points holds the producer's JSON array untouched so that cached and
// broadcast batches are byte-identical to what was accepted.
type Batch struct {
	DroneID   string          `json:"drone_id"`
	Timestamp string          `json:"timestamp"`
	Points    json.RawMessage `json:"points"`
	Stats     Stats           `json:"stats"`
}

// NewBatch builds a batch from typed points.
func NewBatch(droneID string, ts time.Time, points []Point, stats Stats) (*Batch, error) {
	if points == nil {
		points = []Point{}
	}
	raw, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("encode points: %w", err)
	}
	return &Batch{
		DroneID:   droneID,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Points:    raw,
		Stats:     stats,
	}, nil
}

// DecodePoints decodes the raw point array.
func (b *Batch) DecodePoints() ([]Point, error) {
	if len(b.Points) == 0 {
		return nil, nil
	}
	var pts []Point
	if err := json.Unmarshal(b.Points, &pts); err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}
	return pts, nil
}

// Equal reports whether two batches carry the same content.
func (b *Batch) Equal(o *Batch) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.DroneID == o.DroneID &&
		b.Timestamp == o.Timestamp &&
		b.Stats == o.Stats &&
		bytes.Equal(b.Points, o.Points)
}

// Summary returns the lightweight dashboard view of the batch.
func (b *Batch) Summary() Summary {
	return Summary{
		DroneID:    b.DroneID,
		Timestamp:  b.Timestamp,
		PointCount: b.Stats.PointCount,
	}
}

// Summary is the cross-source dashboard event payload.
type Summary struct {
	DroneID    string  `json:"drone_id"`
	Timestamp  string  `json:"timestamp"`
	PointCount float64 `json:"point_count"`
}

// Submission is what an edge device sends: a batch plus its API key.
type Submission struct {
	APIKey string `json:"api_key"`
	Batch
}
