package edge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"droneops-relay/internal/scan"
)

// Replay submits recorded submissions from r. A speed >0 scales the
// recorded spacing between scans; speed <= 0 inserts no delay. It returns
// the number of scans submitted.
func Replay(ctx context.Context, r io.Reader, s Submitter, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	sent := 0
	for {
		var sub scan.Submission
		if err := dec.Decode(&sub); err != nil {
			if errors.Is(err, io.EOF) {
				return sent, nil
			}
			return sent, fmt.Errorf("decode recording entry %d: %w", sent+1, err)
		}
		ts, perr := time.Parse(time.RFC3339Nano, sub.Timestamp)
		if perr == nil && !prev.IsZero() && speed > 0 {
			diff := ts.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if err := sleep(ctx, diff); err != nil {
				return sent, err
			}
		}
		if perr == nil {
			prev = ts
		}
		if err := s.Submit(ctx, &sub); err != nil {
			return sent, fmt.Errorf("submit %s@%s: %w", sub.DroneID, sub.Timestamp, err)
		}
		sent++
	}
}

// ReplayFile opens path and replays it.
func ReplayFile(ctx context.Context, path string, s Submitter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Replay(ctx, f, s, speed)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
