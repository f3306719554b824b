package hub

import (
	"errors"
	"hash/fnv"
	"sync"
)

// ErrUnknownConnection is returned when joining with a connection id that
// was never registered or has already been removed.
var ErrUnknownConnection = errors.New("unknown connection")

// Subscriber is a live connection that can take events without blocking.
type Subscriber interface {
	ID() string
	// Deliver queues ev and reports whether it was accepted.
	Deliver(ev Event) bool
}

const memberShards = 16

type memberShard struct {
	mu      sync.RWMutex
	members map[string]map[string]Subscriber // drone id -> conn id -> subscriber
}

// Registry maps drone ids to the connections subscribed to them. Each
// connection holds at most one subscription.
//
// Lock order: connMu, then a member shard. Publishing only takes shard
// read locks (MembersOf) or a connMu read lock (AllConnections).
type Registry struct {
	connMu  sync.RWMutex
	conns   map[string]Subscriber
	current map[string]string // conn id -> drone id

	shards [memberShards]memberShard
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		conns:   make(map[string]Subscriber),
		current: make(map[string]string),
	}
	for i := range r.shards {
		r.shards[i].members = make(map[string]map[string]Subscriber)
	}
	return r
}

func (r *Registry) shardFor(droneID string) *memberShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(droneID))
	return &r.shards[h.Sum32()%memberShards]
}

// Register adds a connection with no subscription.
func (r *Registry) Register(sub Subscriber) {
	r.connMu.Lock()
	r.conns[sub.ID()] = sub
	r.connMu.Unlock()
}

// Join subscribes connID to droneID, leaving any previous subscription.
func (r *Registry) Join(connID, droneID string) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	sub, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if old, ok := r.current[connID]; ok {
		if old == droneID {
			return nil
		}
		r.removeMember(old, connID)
	}
	s := r.shardFor(droneID)
	s.mu.Lock()
	set := s.members[droneID]
	if set == nil {
		set = make(map[string]Subscriber)
		s.members[droneID] = set
	}
	set[connID] = sub
	s.mu.Unlock()
	r.current[connID] = droneID
	return nil
}

// Leave drops connID's subscription to droneID. Leaving a drone the
// connection is not subscribed to is a no-op; the result reports whether a
// subscription was removed.
func (r *Registry) Leave(connID, droneID string) bool {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if cur, ok := r.current[connID]; !ok || cur != droneID {
		return false
	}
	r.removeMember(droneID, connID)
	delete(r.current, connID)
	return true
}

// Remove forgets connID and all of its memberships. Called by the transport
// when it detects the connection is gone.
func (r *Registry) Remove(connID string) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if droneID, ok := r.current[connID]; ok {
		r.removeMember(droneID, connID)
		delete(r.current, connID)
	}
	delete(r.conns, connID)
}

// removeMember must be called with connMu held.
func (r *Registry) removeMember(droneID, connID string) {
	s := r.shardFor(droneID)
	s.mu.Lock()
	if set := s.members[droneID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(s.members, droneID)
		}
	}
	s.mu.Unlock()
}

// MembersOf returns a snapshot of the connections subscribed to droneID.
func (r *Registry) MembersOf(droneID string) []Subscriber {
	s := r.shardFor(droneID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.members[droneID]
	out := make([]Subscriber, 0, len(set))
	for _, sub := range set {
		out = append(out, sub)
	}
	return out
}

// AllConnections returns a snapshot of every registered connection.
func (r *Registry) AllConnections() []Subscriber {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	out := make([]Subscriber, 0, len(r.conns))
	for _, sub := range r.conns {
		out = append(out, sub)
	}
	return out
}

// SubscriptionOf returns the drone connID is subscribed to, if any.
func (r *Registry) SubscriptionOf(connID string) (string, bool) {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	d, ok := r.current[connID]
	return d, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	return len(r.conns)
}
