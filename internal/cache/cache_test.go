package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"droneops-relay/internal/scan"
)

func batch(drone, ts string, count float64) *scan.Batch {
	return &scan.Batch{
		DroneID:   drone,
		Timestamp: ts,
		Points:    json.RawMessage(`[]`),
		Stats:     scan.Stats{PointCount: count},
	}
}

func TestGetAbsent(t *testing.T) {
	c := New()
	if b, ok := c.Get("d1"); ok || b != nil {
		t.Fatalf("expected absent, got %#v", b)
	}
}

func TestPutOverwrites(t *testing.T) {
	c := New()
	b1 := batch("d1", "2024-01-01T00:00:00Z", 1)
	b2 := batch("d1", "2024-01-01T00:00:01Z", 2)
	c.Put("d1", b1)
	c.Put("d1", b2)

	got, ok := c.Get("d1")
	if !ok {
		t.Fatalf("expected entry for d1")
	}
	if got != b2 {
		t.Fatalf("got %#v, want second batch", got)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestEmptyBatchIsPresent(t *testing.T) {
	c := New()
	c.Put("d1", &scan.Batch{})
	if _, ok := c.Get("d1"); !ok {
		t.Fatalf("cached empty batch reported absent")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		id := fmt.Sprintf("d%d", i%8)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put(id, batch(id, "ts", float64(j)))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Get(id)
			}
		}()
	}
	wg.Wait()
	if c.Len() != 8 {
		t.Fatalf("Len = %d, want 8", c.Len())
	}
}
