package store

import (
	"context"
	"errors"
	"testing"

	"droneops-relay/internal/scan"
)

type stubSink struct {
	got []scan.ScanRecord
	err error
}

func (s *stubSink) InsertScan(_ context.Context, rec scan.ScanRecord) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, rec)
	return nil
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &stubSink{}, &stubSink{}
	ms := NewMultiSink(a, nil, b)
	if ms.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ms.Len())
	}
	if err := ms.InsertScan(context.Background(), scan.ScanRecord{DroneID: "d1"}); err != nil {
		t.Fatalf("InsertScan: %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("rows not forwarded: %d %d", len(a.got), len(b.got))
	}
}

func TestMultiSinkStopsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	a, b := &stubSink{err: boom}, &stubSink{}
	ms := NewMultiSink(a, b)
	err := ms.InsertScan(context.Background(), scan.ScanRecord{DroneID: "d1"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(b.got) != 0 {
		t.Fatalf("second sink should not run after failure")
	}
}
