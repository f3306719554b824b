// Package edge is the producer side of the relay: a synthetic rotating
// lidar, an ingest client and JSONL recording and replay of submissions.
package edge

import (
	"math"
	"math/rand"
	"time"

	"droneops-relay/internal/scan"
)

// Generator simulates a 2D rotating lidar mounted on a drone flying
// through a rectangular hall.
type Generator struct {
	DroneID string
	APIKey  string
	// PointsPerScan is the number of samples in one full rotation.
	PointsPerScan int
	// MaxRange is the sensor range in millimetres; samples beyond it are
	// reported as invalid (distance 0, quality 0).
	MaxRange float64
	// DropoutRate is the fraction of samples that fail to return.
	DropoutRate float64

	rng     *rand.Rand
	heading float64
	posX    float64
	posY    float64
	now     func() time.Time
}

const (
	hallHalfWidth  = 6000.0
	hallHalfLength = 9000.0
	maxQuality     = 47.0
)

// NewGenerator creates a generator for droneID. The same seed yields the
// same sequence of scans.
func NewGenerator(droneID, apiKey string, seed int64) *Generator {
	return &Generator{
		DroneID:       droneID,
		APIKey:        apiKey,
		PointsPerScan: 360,
		MaxRange:      12000,
		DropoutRate:   0.05,
		rng:           rand.New(rand.NewSource(seed)),
		now:           time.Now,
	}
}

// Next advances the drone and returns one scan ready for submission.
func (g *Generator) Next() (*scan.Submission, error) {
	g.drift()
	n := g.PointsPerScan
	if n <= 0 {
		n = 360
	}
	points := make([]scan.Point, 0, n)
	var valid, minD, maxD, sumD, sumQ float64
	for i := 0; i < n; i++ {
		angle := float64(i) * 360 / float64(n)
		d := g.rangeAt(angle)
		p := scan.Point{Angle: round2(angle)}
		if d > 0 && d <= g.MaxRange && g.rng.Float64() >= g.DropoutRate {
			p.Distance = round2(d + g.rng.NormFloat64()*15)
			p.Quality = math.Round(maxQuality * (1 - 0.6*p.Distance/g.MaxRange))
			rad := (angle + g.heading) * math.Pi / 180
			p.X = round2(p.Distance * math.Cos(rad))
			p.Y = round2(p.Distance * math.Sin(rad))
			if valid == 0 || p.Distance < minD {
				minD = p.Distance
			}
			if p.Distance > maxD {
				maxD = p.Distance
			}
			sumD += p.Distance
			sumQ += p.Quality
			valid++
		}
		points = append(points, p)
	}
	stats := scan.Stats{
		PointCount:  float64(len(points)),
		ValidPoints: valid,
		MinDistance: minD,
		MaxDistance: maxD,
	}
	if valid > 0 {
		stats.AvgDistance = round2(sumD / valid)
		stats.AvgQuality = round2(sumQ / valid)
	}
	b, err := scan.NewBatch(g.DroneID, g.now(), points, stats)
	if err != nil {
		return nil, err
	}
	return &scan.Submission{APIKey: g.APIKey, Batch: *b}, nil
}

// drift moves the drone a little and turns it, staying inside the hall.
func (g *Generator) drift() {
	g.heading = math.Mod(g.heading+g.rng.Float64()*6-3+360, 360)
	step := g.rng.Float64() * 200
	rad := g.heading * math.Pi / 180
	g.posX = clamp(g.posX+step*math.Cos(rad), -hallHalfLength*0.8, hallHalfLength*0.8)
	g.posY = clamp(g.posY+step*math.Sin(rad), -hallHalfWidth*0.8, hallHalfWidth*0.8)
}

// rangeAt casts a ray from the drone to the hall walls.
func (g *Generator) rangeAt(angle float64) float64 {
	rad := (angle + g.heading) * math.Pi / 180
	dx, dy := math.Cos(rad), math.Sin(rad)
	best := math.Inf(1)
	if dx > 1e-9 {
		best = math.Min(best, (hallHalfLength-g.posX)/dx)
	} else if dx < -1e-9 {
		best = math.Min(best, (-hallHalfLength-g.posX)/dx)
	}
	if dy > 1e-9 {
		best = math.Min(best, (hallHalfWidth-g.posY)/dy)
	} else if dy < -1e-9 {
		best = math.Min(best, (-hallHalfWidth-g.posY)/dy)
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
