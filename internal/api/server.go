// Package api is the relay's HTTP surface: plain and JSON-RPC ingest, the
// pull fallback, the push websocket, drone queries, health and metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"droneops-relay/internal/cache"
	"droneops-relay/internal/hub"
	"droneops-relay/internal/ingest"
	"droneops-relay/internal/logging"
	"droneops-relay/internal/metrics"
	"droneops-relay/internal/store"
)

// Deps are the components served by the API.
type Deps struct {
	Ingest         *ingest.Service
	Cache          *cache.LastKnown
	Registry       *hub.Registry
	Push           http.Handler
	Query          store.Querier
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	MaxBodyBytes   int64
	LivenessWindow time.Duration
	Now            func() time.Time
}

type Server struct {
	d      Deps
	router chi.Router
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 8 << 20
	}
	s := &Server{d: d}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(s.requestLogger)
		r.Post("/api/scans", s.handleSubmit)
		r.Post("/rpc", s.handleRPC)
		r.Get("/api/scans/{droneID}/latest", s.handleLatest)
		r.Get("/api/drones", s.handleDrones)
		r.Get("/api/drones/{droneID}/scans", s.handleRecentScans)
	})
	if s.d.Push != nil {
		r.Method(http.MethodGet, "/ws", s.d.Push)
	}
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.d.Metrics.Handler())
	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Start on an existing listener. Push sessions are hijacked
// connections that http.Server.Shutdown does not track, so a Push handler
// with a Shutdown method is told to close them.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if sh, ok := s.d.Push.(interface{ Shutdown() }); ok {
		srv.RegisterOnShutdown(sh.Shutdown)
	}
	errCh := make(chan error, 1)
	go func() {
		s.d.Logger.Info("relay listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.d.Logger.Info("relay stopped")
	return nil
}

// requestLogger attaches a request scoped logger to the context and logs
// one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := s.d.Logger.With("request_id", middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(logging.NewContext(r.Context(), l)))
		l.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
