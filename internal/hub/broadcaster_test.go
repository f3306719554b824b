package hub

import (
	"encoding/json"
	"testing"

	"droneops-relay/internal/scan"
)

type countingObserver struct {
	delivered map[string]int
	dropped   map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{delivered: map[string]int{}, dropped: map[string]int{}}
}

func (c *countingObserver) Delivered(kind string) { c.delivered[kind]++ }
func (c *countingObserver) Dropped(kind string)   { c.dropped[kind]++ }

func testBatch(drone string) *scan.Batch {
	return &scan.Batch{
		DroneID:   drone,
		Timestamp: "2024-01-01T00:00:00Z",
		Points:    json.RawMessage(`[{"angle":1,"distance":2,"quality":3,"x":4,"y":5}]`),
		Stats:     scan.Stats{PointCount: 1},
	}
}

func TestPublishScopesScansAndSummaries(t *testing.T) {
	r := NewRegistry()
	subX := &fakeSub{id: "x"}
	subY := &fakeSub{id: "y"}
	idle := &fakeSub{id: "idle"}
	for _, s := range []*fakeSub{subX, subY, idle} {
		r.Register(s)
	}
	_ = r.Join("x", "d1")
	_ = r.Join("y", "d2")

	obs := newCountingObserver()
	b := NewBroadcaster(r, obs, nil)
	d := b.Publish(testBatch("d1"))

	if d.Scans != 1 || d.Summaries != 3 || d.Dropped != 0 {
		t.Fatalf("delivery = %+v", d)
	}
	gotX := subX.received()
	if len(gotX) != 2 || gotX[0].Type != EventScan || gotX[0].Batch.DroneID != "d1" {
		t.Fatalf("subscriber of d1 got %+v", gotX)
	}
	for _, s := range []*fakeSub{subY, idle} {
		evs := s.received()
		if len(evs) != 1 || evs[0].Type != EventSummary {
			t.Fatalf("%s got %+v, want only a summary", s.id, evs)
		}
		if evs[0].Summary.DroneID != "d1" || evs[0].Summary.PointCount != 1 {
			t.Fatalf("summary = %+v", evs[0].Summary)
		}
	}
	if obs.delivered["scan"] != 1 || obs.delivered["summary"] != 3 {
		t.Fatalf("observer = %+v", obs.delivered)
	}
}

func TestPublishSkipsSlowSubscriber(t *testing.T) {
	r := NewRegistry()
	slow := &fakeSub{id: "slow", full: true}
	fast := &fakeSub{id: "fast"}
	r.Register(slow)
	r.Register(fast)
	_ = r.Join("slow", "d1")
	_ = r.Join("fast", "d1")

	obs := newCountingObserver()
	d := NewBroadcaster(r, obs, nil).Publish(testBatch("d1"))
	if d.Dropped != 2 {
		t.Fatalf("dropped = %d, want 2", d.Dropped)
	}
	if got := fast.received(); len(got) != 2 {
		t.Fatalf("fast subscriber got %d events, want 2", len(got))
	}
	if obs.dropped["scan"] != 1 || obs.dropped["summary"] != 1 {
		t.Fatalf("dropped = %+v", obs.dropped)
	}
}

func TestSessionDeliverNonBlocking(t *testing.T) {
	s := newSession(1)
	if !s.Deliver(Event{Type: EventSummary}) {
		t.Fatalf("first deliver should fit the buffer")
	}
	if s.Deliver(Event{Type: EventSummary}) {
		t.Fatalf("second deliver should be dropped")
	}
	<-s.send
	s.close()
	s.close()
	if s.Deliver(Event{Type: EventSummary}) {
		t.Fatalf("closed session accepted an event")
	}
}
