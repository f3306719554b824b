package store

import (
	"context"
	"fmt"

	"droneops-relay/internal/scan"
)

// MultiSink fans scan rows out to several sinks in order. The first
// failure stops the sequence and is returned.
type MultiSink struct {
	sinks []ScanSink
}

// NewMultiSink returns a MultiSink over sinks, skipping nil entries.
func NewMultiSink(sinks ...ScanSink) *MultiSink {
	ms := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			ms.sinks = append(ms.sinks, s)
		}
	}
	return ms
}

// InsertScan sends rec to every sink.
func (m *MultiSink) InsertScan(ctx context.Context, rec scan.ScanRecord) error {
	for i, s := range m.sinks {
		if err := s.InsertScan(ctx, rec); err != nil {
			return fmt.Errorf("scan sink %d (%T): %w", i, s, err)
		}
	}
	return nil
}

// Len returns the number of sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }
