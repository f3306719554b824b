// Package viewer is the consuming side of the relay. A Negotiator keeps
// one drone's latest batch flowing to a viewer, over the push websocket
// when it can and by polling the pull fallback when it cannot.
package viewer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"droneops-relay/internal/hub"
	"droneops-relay/internal/scan"
)

// ErrNoData is returned by a Puller when the relay has nothing cached for
// the drone yet.
var ErrNoData = errors.New("no data yet")

// State is a transport state of a viewing session.
type State int32

const (
	Connecting State = iota
	Pushing
	Polling
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Pushing:
		return "Pushing"
	case Polling:
		return "Polling"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// PushConn is an established push connection.
type PushConn interface {
	Subscribe(ctx context.Context, droneID string) error
	Unsubscribe(ctx context.Context, droneID string) error
	// Next blocks for the next server event.
	Next(ctx context.Context) (hub.Event, error)
	Close() error
}

// Dialer opens push connections. Dial returns once the server has
// acknowledged the connection.
type Dialer interface {
	Dial(ctx context.Context) (PushConn, error)
}

// Puller reads the pull fallback.
type Puller interface {
	Latest(ctx context.Context, droneID string) (*scan.Batch, error)
}

// Update is what a Negotiator reports to its viewer. Exactly one of
// Batch or Summary is set for data updates; both are nil for state
// changes.
type Update struct {
	State   State
	Batch   *scan.Batch
	Summary *scan.Summary
	// Waiting is set while polling and the relay has no data yet.
	Waiting bool
}

// Options tune a Negotiator.
type Options struct {
	PollInterval      time.Duration
	HandshakeTimeout  time.Duration
	ReconnectInterval time.Duration
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 3 * time.Second
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Negotiator runs the Connecting -> Pushing <-> Polling -> Closed state
// machine for one drone.
type Negotiator struct {
	droneID string
	dialer  Dialer
	puller  Puller
	opts    Options
	log     *slog.Logger

	state   atomic.Int32
	last    *scan.Batch
	waiting bool
}

// New returns a Negotiator for droneID.
func New(droneID string, d Dialer, p Puller, opts Options) *Negotiator {
	opts = opts.withDefaults()
	n := &Negotiator{
		droneID: droneID,
		dialer:  d,
		puller:  p,
		opts:    opts,
		log:     opts.Logger.With("drone_id", droneID),
	}
	n.state.Store(int32(Connecting))
	return n
}

// State returns the current transport state.
func (n *Negotiator) State() State { return State(n.state.Load()) }

// DroneID is the source this session follows.
func (n *Negotiator) DroneID() string { return n.droneID }

// Run drives the session until ctx is cancelled. emit is called from the
// Run goroutine only. Run returns after every goroutine it started has
// exited and the push subscription, if any, has been released.
func (n *Negotiator) Run(ctx context.Context, emit func(Update)) error {
	if emit == nil {
		emit = func(Update) {}
	}
	defer n.enter(Closed, emit)

	n.enter(Connecting, emit)
	conn, err := n.handshake(ctx)
	if err != nil && ctx.Err() == nil {
		n.log.Info("push unavailable, falling back to polling", "err", err)
	}
	for {
		if conn != nil {
			n.enter(Pushing, emit)
			n.push(ctx, conn, emit)
			conn = nil
		}
		if ctx.Err() != nil {
			return nil
		}
		n.enter(Polling, emit)
		conn = n.poll(ctx, emit)
		if conn == nil {
			return nil
		}
		n.log.Info("push restored")
	}
}

func (n *Negotiator) enter(s State, emit func(Update)) {
	n.state.Store(int32(s))
	n.log.Debug("transport state", "state", s.String())
	emit(Update{State: s, Waiting: s == Polling && n.waiting})
}

// handshake dials and subscribes within the handshake timeout.
func (n *Negotiator) handshake(ctx context.Context) (PushConn, error) {
	hctx, cancel := context.WithTimeout(ctx, n.opts.HandshakeTimeout)
	defer cancel()
	conn, err := n.dialer.Dial(hctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Subscribe(hctx, n.droneID); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

type pushed struct {
	ev  hub.Event
	err error
}

// push relays events from conn until it fails or ctx ends.
func (n *Negotiator) push(ctx context.Context, conn PushConn, emit func(Update)) {
	// The read side must outlive ctx so that unsubscribe can still be
	// written on teardown.
	readCtx, cancelRead := context.WithCancel(context.WithoutCancel(ctx))
	events := make(chan pushed)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, err := conn.Next(readCtx)
			select {
			case events <- pushed{ev: ev, err: err}:
			case <-readCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer func() {
		cancelRead()
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			n.release(conn)
			return
		case p := <-events:
			if p.err != nil {
				n.log.Info("push connection lost", "err", p.err)
				_ = conn.Close()
				return
			}
			n.handleEvent(p.ev, emit)
		}
	}
}

// release drops the subscription held by conn and closes it. It runs on
// teardown, after ctx is done, so it uses its own deadline.
func (n *Negotiator) release(conn PushConn) {
	uctx, cancel := context.WithTimeout(context.Background(), n.opts.HandshakeTimeout)
	defer cancel()
	if err := conn.Unsubscribe(uctx, n.droneID); err != nil {
		n.log.Debug("unsubscribe failed", "err", err)
	}
	_ = conn.Close()
}

func (n *Negotiator) handleEvent(ev hub.Event, emit func(Update)) {
	switch ev.Type {
	case hub.EventScan:
		if ev.Batch == nil || ev.Batch.DroneID != n.droneID {
			return
		}
		n.last = ev.Batch
		n.waiting = false
		emit(Update{State: Pushing, Batch: ev.Batch})
	case hub.EventSummary:
		if ev.Summary != nil {
			emit(Update{State: Pushing, Summary: ev.Summary})
		}
	case hub.EventError:
		n.log.Warn("relay reported error", "message", ev.Message)
	}
}

type dialResult struct {
	conn PushConn
	err  error
}

// poll pulls on a fixed cadence and retries push in the background. It
// returns a subscribed connection once push is back, or nil when ctx
// ends.
func (n *Negotiator) poll(ctx context.Context, emit func(Update)) PushConn {
	pollTicker := time.NewTicker(n.opts.PollInterval)
	defer pollTicker.Stop()
	retry := time.NewTicker(n.opts.ReconnectInterval)
	defer retry.Stop()

	var attempt chan dialResult
	n.pollOnce(ctx, emit)
	for {
		select {
		case <-ctx.Done():
			if attempt != nil {
				if res := <-attempt; res.conn != nil {
					n.release(res.conn)
				}
			}
			return nil
		case <-pollTicker.C:
			n.pollOnce(ctx, emit)
		case <-retry.C:
			if attempt != nil {
				continue
			}
			attempt = make(chan dialResult, 1)
			go func(out chan<- dialResult) {
				conn, err := n.handshake(ctx)
				out <- dialResult{conn: conn, err: err}
			}(attempt)
		case res := <-attempt:
			attempt = nil
			if res.err == nil {
				return res.conn
			}
			n.log.Debug("push reconnect failed", "err", res.err)
		}
	}
}

func (n *Negotiator) pollOnce(ctx context.Context, emit func(Update)) {
	pctx, cancel := context.WithTimeout(ctx, n.opts.HandshakeTimeout)
	defer cancel()
	b, err := n.puller.Latest(pctx, n.droneID)
	switch {
	case errors.Is(err, ErrNoData):
		if !n.waiting {
			n.waiting = true
			emit(Update{State: Polling, Waiting: true})
		}
	case err != nil:
		if ctx.Err() == nil {
			n.log.Debug("poll failed", "err", err)
		}
	case !b.Equal(n.last):
		n.last = b
		n.waiting = false
		emit(Update{State: Polling, Batch: b})
	}
}
