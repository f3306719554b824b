// Package ingest sequences credential check, batch validation and the
// commit side effects for one submitted scan batch. Every transport calls
// Service.Submit so authorization logic exists once.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"droneops-relay/internal/auth"
	"droneops-relay/internal/logging"
	"droneops-relay/internal/scan"
	"droneops-relay/internal/store"
	"droneops-relay/internal/validate"
)

// Stage is a state of the ingest state machine.
type Stage int

const (
	Received Stage = iota
	AuthValidated
	PayloadValidated
	Committed
	Acknowledged
)

func (s Stage) String() string {
	switch s {
	case Received:
		return "Received"
	case AuthValidated:
		return "AuthValidated"
	case PayloadValidated:
		return "PayloadValidated"
	case Committed:
		return "Committed"
	case Acknowledged:
		return "Acknowledged"
	default:
		return "Unknown"
	}
}

// Cache is the last-known cache write side.
type Cache interface {
	Put(droneID string, b *scan.Batch)
}

// Publisher fans an accepted batch out to live viewers.
type Publisher interface {
	Publish(b *scan.Batch)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(*scan.Batch)

func (f PublisherFunc) Publish(b *scan.Batch) { f(b) }

// Observer counts outcomes; result is "ok" or a Reason.
type Observer interface {
	IngestResult(result string)
}

// Receipt echoes an accepted batch.
type Receipt struct {
	DroneID    string    `json:"drone_id"`
	Timestamp  string    `json:"timestamp"`
	PointCount float64   `json:"point_count"`
	ReceivedAt time.Time `json:"-"`
}

// Deps are the collaborators of a Service. Scans usually is a
// store.MultiSink over the record store and any mirrors.
type Deps struct {
	Credentials store.CredentialStore
	Drones      store.DroneStore
	Scans       store.ScanSink
	Cache       Cache
	Publisher   Publisher
	Observer    Observer
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service is the ingestion endpoint.
type Service struct {
	keys      *auth.Validator
	drones    store.DroneStore
	scans     store.ScanSink
	cache     Cache
	publisher Publisher
	obs       Observer
	logger    *slog.Logger
	now       func() time.Time
}

// New wires a Service. Publisher and Observer may be nil.
func New(d Deps) *Service {
	s := &Service{
		keys:      auth.NewValidator(d.Credentials),
		drones:    d.Drones,
		scans:     d.Scans,
		cache:     d.Cache,
		publisher: d.Publisher,
		obs:       d.Observer,
		logger:    d.Logger,
		now:       d.Now,
	}
	if s.publisher == nil {
		s.publisher = PublisherFunc(func(*scan.Batch) {})
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Submit runs one batch through the state machine. apiKey is the
// credential presented by the transport and raw the decoded body. On any
// failure the error is a *Rejection.
//
// Commit writes run in order: drone liveness, scan row, cache, fan-out.
// A store failure stops the sequence before the cache and fan-out so the
// pull path never shows data that failed to persist. Once validation has
// passed the commit ignores caller cancellation.
func (s *Service) Submit(ctx context.Context, apiKey string, raw validate.Raw) (*Receipt, error) {
	log := logging.FromContextOr(ctx, s.logger)
	stage := Received

	droneID, err := s.keys.Validate(ctx, apiKey)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidAPIKey) {
			return nil, s.reject(log, &Rejection{Reason: InvalidAPIKey, Message: "invalid or inactive API key", Stage: stage, Err: err})
		}
		return nil, s.reject(log, &Rejection{Reason: InternalError, Message: "credential store unavailable", Stage: stage, Err: err})
	}
	stage = AuthValidated
	log = log.With("drone_id", droneID)

	batch, err := validate.Batch(raw, raw.String("drone_id"), droneID)
	if err != nil {
		return nil, s.reject(log, fromValidation(err, stage))
	}
	stage = PayloadValidated

	cctx := context.WithoutCancel(ctx)
	receivedAt := s.now().UTC()
	if err := s.drones.UpsertDrone(cctx, droneID, receivedAt); err != nil {
		return nil, s.reject(log, &Rejection{Reason: InternalError, Message: "failed to update drone record", Stage: stage, Err: err})
	}
	if err := s.scans.InsertScan(cctx, scan.RecordFor(batch, receivedAt)); err != nil {
		return nil, s.reject(log, &Rejection{Reason: InternalError, Message: "failed to store scan", Stage: stage, Err: err})
	}
	s.cache.Put(droneID, batch)
	s.publisher.Publish(batch)

	if s.obs != nil {
		s.obs.IngestResult("ok")
	}
	log.Debug("batch accepted", "state", Committed.String(), "timestamp", batch.Timestamp, "point_count", batch.Stats.PointCount)
	return &Receipt{
		DroneID:    batch.DroneID,
		Timestamp:  batch.Timestamp,
		PointCount: batch.Stats.PointCount,
		ReceivedAt: receivedAt,
	}, nil
}

func (s *Service) reject(log *slog.Logger, r *Rejection) *Rejection {
	if s.obs != nil {
		s.obs.IngestResult(string(r.Reason))
	}
	if r.Reason == InternalError {
		log.Error("ingest failed", "state", r.Stage.String(), "reason", r.Reason, "err", r.Err)
	} else {
		log.Info("batch rejected", "state", r.Stage.String(), "reason", r.Reason, "field", r.Field)
	}
	return r
}
