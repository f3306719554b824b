package hub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// SessionConfig tunes websocket push sessions.
type SessionConfig struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	OriginPatterns  []string
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 4 << 20
	}
	return c
}

// ConnObserver is told when push connections open and close.
type ConnObserver interface {
	ConnectionOpened()
	ConnectionClosed()
}

type nopConnObserver struct{}

func (nopConnObserver) ConnectionOpened() {}
func (nopConnObserver) ConnectionClosed() {}

// session is one websocket viewer. Events are queued on send and written
// by the serving goroutine.
type session struct {
	id   string
	send chan Event
	done chan struct{}
	once sync.Once
}

func newSession(buffer int) *session {
	return &session{
		id:   uuid.NewString(),
		send: make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

func (s *session) ID() string { return s.id }

// Deliver queues ev unless the buffer is full or the session is closed.
func (s *session) Deliver(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.once.Do(func() { close(s.done) })
}

// Server accepts websocket viewers and wires them into the registry.
type Server struct {
	reg    *Registry
	cfg    SessionConfig
	obs    ConnObserver
	logger *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer returns a push endpoint backed by reg. obs may be nil.
func NewServer(reg *Registry, cfg SessionConfig, obs ConnObserver, logger *slog.Logger) *Server {
	if obs == nil {
		obs = nopConnObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{reg: reg, cfg: cfg.withDefaults(), obs: obs, logger: logger, closing: make(chan struct{})}
}

// Shutdown closes every live session with StatusGoingAway and refuses new
// ones. http.Server.Shutdown does not reach hijacked connections, so the
// HTTP server registers this with RegisterOnShutdown.
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// ServeHTTP upgrades the request and serves the session until the viewer
// disconnects, a write or ping fails, the server shuts down or the
// request context ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.closing:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	opts := &websocket.AcceptOptions{}
	if len(s.cfg.OriginPatterns) > 0 {
		opts.OriginPatterns = s.cfg.OriginPatterns
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	sess := newSession(s.cfg.SendBuffer)
	log := s.logger.With("conn_id", sess.id)
	s.reg.Register(sess)
	s.obs.ConnectionOpened()
	log.Info("push connection opened", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		sess.close()
		s.reg.Remove(sess.id)
		wg.Wait()
		s.obs.ConnectionClosed()
		log.Info("push connection closed")
	}()

	if err := s.write(ctx, conn, Event{Type: EventReady, ConnID: sess.id}); err != nil {
		conn.CloseNow()
		return
	}

	readErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr <- s.readLoop(ctx, conn, sess, log)
	}()

	var pings <-chan time.Time
	if s.cfg.PingInterval > 0 {
		t := time.NewTicker(s.cfg.PingInterval)
		defer t.Stop()
		pings = t.C
	}

	for {
		select {
		case <-s.closing:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case err := <-readErr:
			if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug("push read ended", "err", err)
			}
			conn.CloseNow()
			return
		case ev := <-sess.send:
			if err := s.write(ctx, conn, ev); err != nil {
				log.Debug("push write failed", "err", err)
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		case <-pings:
			pingCtx, cancelPing := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := conn.Ping(pingCtx)
			cancelPing()
			if err != nil {
				log.Info("push ping failed", "err", err)
				conn.CloseNow()
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, ev)
}

// readLoop applies viewer commands until the connection fails.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *session, log *slog.Logger) error {
	for {
		var cmd Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			return err
		}
		switch cmd.Type {
		case CommandSubscribe:
			if cmd.DroneID == "" {
				sess.Deliver(Event{Type: EventError, Message: "drone_id is required"})
				continue
			}
			if err := s.reg.Join(sess.id, cmd.DroneID); err != nil {
				return err
			}
			log.Debug("subscribed", "drone_id", cmd.DroneID)
			sess.Deliver(Event{Type: EventSubscribed, DroneID: cmd.DroneID})
		case CommandUnsubscribe:
			droneID := cmd.DroneID
			if droneID == "" {
				// An empty drone_id leaves whatever the session follows.
				droneID, _ = s.reg.SubscriptionOf(sess.id)
			}
			s.reg.Leave(sess.id, droneID)
			log.Debug("unsubscribed", "drone_id", droneID)
			sess.Deliver(Event{Type: EventUnsubscribed, DroneID: droneID})
		default:
			sess.Deliver(Event{Type: EventError, Message: "unknown command " + cmd.Type})
		}
	}
}
