package edge

import (
	"context"
	"errors"
	"time"

	"droneops-relay/internal/logging"
)

// EmitStats counts the outcome of an Emit run.
type EmitStats struct {
	Sent     int
	Rejected int
	Failed   int
}

// Emit generates a scan every interval and submits it until ctx ends or
// count scans have been attempted (count <= 0 means no limit). Failed
// submissions are logged to the context logger and skipped: the next scan
// supersedes them.
func Emit(ctx context.Context, g *Generator, s Submitter, interval time.Duration, count int) (EmitStats, error) {
	var st EmitStats
	log := logging.FromContext(ctx).With("drone_id", g.DroneID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for attempt := 0; count <= 0 || attempt < count; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return st, nil
			case <-ticker.C:
			}
		}
		sub, err := g.Next()
		if err != nil {
			return st, err
		}
		err = s.Submit(ctx, sub)
		var rej *RejectedError
		switch {
		case err == nil:
			st.Sent++
			log.Debug("scan accepted", "timestamp", sub.Timestamp, "points", sub.Stats.PointCount)
		case errors.As(err, &rej):
			st.Rejected++
			log.Warn("scan rejected", "reason", rej.Reason, "field", rej.Field, "err", err)
		case ctx.Err() != nil:
			return st, nil
		default:
			st.Failed++
			log.Warn("scan submission failed", "err", err)
		}
	}
	return st, nil
}
