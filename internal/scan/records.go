package scan

import "time"

// Drone is the liveness record kept for every source that has ever
// delivered an accepted batch.
type Drone struct {
	ID       string    `json:"drone_id" bson:"_id"`
	Name     string    `json:"name,omitempty" bson:"name,omitempty"`
	LastSeen time.Time `json:"last_seen" bson:"last_seen"`
	Active   bool      `json:"is_active" bson:"is_active"`
}

// Online reports whether the drone was seen within window of now.
func (d Drone) Online(now time.Time, window time.Duration) bool {
	if !d.Active {
		return false
	}
	if window <= 0 {
		return true
	}
	return now.Sub(d.LastSeen) <= window
}

// Credential binds an API key to a drone identity.
type Credential struct {
	Key     string `json:"api_key" bson:"_id"`
	DroneID string `json:"drone_id" bson:"drone_id"`
	Active  bool   `json:"is_active" bson:"is_active"`
}

// ScanRecord is the append-only summary row persisted per accepted batch.
type ScanRecord struct {
	DroneID     string    `json:"drone_id" bson:"drone_id"`
	Timestamp   string    `json:"timestamp" bson:"timestamp"`
	PointCount  float64   `json:"point_count" bson:"point_count"`
	ValidPoints float64   `json:"valid_points" bson:"valid_points"`
	MinDistance float64   `json:"min_distance" bson:"min_distance"`
	MaxDistance float64   `json:"max_distance" bson:"max_distance"`
	AvgDistance float64   `json:"avg_distance" bson:"avg_distance"`
	AvgQuality  float64   `json:"avg_quality" bson:"avg_quality"`
	ReceivedAt  time.Time `json:"received_at" bson:"received_at"`
}

// RecordFor derives the persisted summary row for b.
func RecordFor(b *Batch, receivedAt time.Time) ScanRecord {
	return ScanRecord{
		DroneID:     b.DroneID,
		Timestamp:   b.Timestamp,
		PointCount:  b.Stats.PointCount,
		ValidPoints: b.Stats.ValidPoints,
		MinDistance: b.Stats.MinDistance,
		MaxDistance: b.Stats.MaxDistance,
		AvgDistance: b.Stats.AvgDistance,
		AvgQuality:  b.Stats.AvgQuality,
		ReceivedAt:  receivedAt.UTC(),
	}
}
