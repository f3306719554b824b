// Package hub tracks live push connections, their per-drone subscriptions,
// and fans accepted batches out to them.
package hub

import "droneops-relay/internal/scan"

// EventType names a server to viewer message.
type EventType string

const (
	EventReady        EventType = "ready"
	EventScan         EventType = "scan"
	EventSummary      EventType = "summary"
	EventSubscribed   EventType = "subscribed"
	EventUnsubscribed EventType = "unsubscribed"
	EventError        EventType = "error"
)

// Event is the JSON envelope written to push connections.
type Event struct {
	Type    EventType     `json:"type"`
	ConnID  string        `json:"conn_id,omitempty"`
	DroneID string        `json:"drone_id,omitempty"`
	Batch   *scan.Batch   `json:"batch,omitempty"`
	Summary *scan.Summary `json:"summary,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Viewer to server commands.
const (
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
)

// Command is a viewer to server message.
type Command struct {
	Type    string `json:"type"`
	DroneID string `json:"drone_id"`
}

// ScanEvent wraps a full batch for subscribers of its drone.
func ScanEvent(b *scan.Batch) Event {
	return Event{Type: EventScan, DroneID: b.DroneID, Batch: b}
}

// SummaryEvent wraps the dashboard summary of b.
func SummaryEvent(b *scan.Batch) Event {
	s := b.Summary()
	return Event{Type: EventSummary, DroneID: b.DroneID, Summary: &s}
}
