package hub

import (
	"log/slog"

	"droneops-relay/internal/scan"
)

// Observer receives per-delivery outcomes.
type Observer interface {
	Delivered(kind string)
	Dropped(kind string)
}

type nopObserver struct{}

func (nopObserver) Delivered(string) {}
func (nopObserver) Dropped(string)   {}

// Delivery counts the outcome of one Publish.
type Delivery struct {
	Scans     int
	Summaries int
	Dropped   int
}

// Broadcaster pushes accepted batches to subscribers and a summary to
// every connection. Delivery never blocks on a slow connection.
type Broadcaster struct {
	reg    *Registry
	obs    Observer
	logger *slog.Logger
}

// NewBroadcaster returns a broadcaster over reg. obs may be nil.
func NewBroadcaster(reg *Registry, obs Observer, logger *slog.Logger) *Broadcaster {
	if obs == nil {
		obs = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{reg: reg, obs: obs, logger: logger}
}

// Publish delivers b to members of its drone and its summary to all
// connections. Snapshots are taken first so no registry lock is held
// while delivering.
func (p *Broadcaster) Publish(b *scan.Batch) Delivery {
	var d Delivery
	members := p.reg.MembersOf(b.DroneID)
	all := p.reg.AllConnections()

	scanEv := ScanEvent(b)
	for _, sub := range members {
		if p.deliver(sub, scanEv) {
			d.Scans++
		} else {
			d.Dropped++
		}
	}
	sumEv := SummaryEvent(b)
	for _, sub := range all {
		if p.deliver(sub, sumEv) {
			d.Summaries++
		} else {
			d.Dropped++
		}
	}
	if d.Dropped > 0 {
		p.logger.Debug("fan-out dropped events", "drone_id", b.DroneID, "dropped", d.Dropped)
	}
	return d
}

func (p *Broadcaster) deliver(sub Subscriber, ev Event) bool {
	kind := string(ev.Type)
	if sub.Deliver(ev) {
		p.obs.Delivered(kind)
		return true
	}
	p.obs.Dropped(kind)
	return false
}
