package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"droneops-relay/internal/ingest"
	"droneops-relay/internal/logging"
	"droneops-relay/internal/scan"
	"droneops-relay/internal/validate"
)

const (
	defaultScanLimit = 20
	maxScanLimit     = 500
)

// success is the plain HTTP ingest acknowledgement.
type success struct {
	Success bool `json:"success"`
	ingest.Receipt
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, s.d.MaxBodyBytes))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, failure{Error: string(ingest.MalformedPayload), Message: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, failure{Error: string(ingest.MalformedPayload), Message: "cannot read request body"})
		return
	}
	raw, err := validate.ParseRaw(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Error: string(ingest.MalformedPayload), Message: "body must be a JSON object"})
		return
	}
	key := raw.String("api_key")
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	rcpt, err := s.d.Ingest.Submit(r.Context(), key, raw)
	if err != nil {
		rej := ingest.AsRejection(err)
		writeJSON(w, httpStatus(rej.Reason), rejectionBody(rej))
		return
	}
	writeJSON(w, http.StatusOK, success{Success: true, Receipt: *rcpt})
}

// droneParam returns the decoded {droneID} path segment. chi matches on
// the raw path, so an escaped "/" arrives still encoded.
func droneParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "droneID"))
	if err != nil || id == "" {
		writeJSON(w, http.StatusBadRequest, failure{Error: string(ingest.MalformedPayload), Field: "drone_id", Message: "invalid drone id in path"})
		return "", false
	}
	return id, true
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	droneID, ok := droneParam(w, r)
	if !ok {
		return
	}
	b, hit := s.d.Cache.Get(droneID)
	s.d.Metrics.Pull(hit)
	if !hit {
		writeJSON(w, http.StatusNotFound, failure{Error: "NoData", Message: "no data received for drone " + droneID})
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// droneView is a registry row with live status.
type droneView struct {
	scan.Drone
	Online  bool `json:"online"`
	HasData bool `json:"has_data"`
}

func (s *Server) handleDrones(w http.ResponseWriter, r *http.Request) {
	drones, err := s.d.Query.ListDrones(r.Context())
	if err != nil {
		logging.FromContextOr(r.Context(), s.d.Logger).Error("list drones failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, failure{Error: string(ingest.InternalError), Message: "internal error"})
		return
	}
	now := s.d.Now()
	out := make([]droneView, 0, len(drones))
	for _, d := range drones {
		_, has := s.d.Cache.Get(d.ID)
		out = append(out, droneView{Drone: d, Online: d.Online(now, s.d.LivenessWindow), HasData: has})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecentScans(w http.ResponseWriter, r *http.Request) {
	droneID, ok := droneParam(w, r)
	if !ok {
		return
	}
	limit := defaultScanLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, failure{Error: string(ingest.MalformedPayload), Field: "limit", Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxScanLimit)
	}
	rows, err := s.d.Query.RecentScans(r.Context(), droneID, limit)
	if err != nil {
		logging.FromContextOr(r.Context(), s.d.Logger).Error("recent scans failed", "drone_id", droneID, "err", err)
		writeJSON(w, http.StatusInternalServerError, failure{Error: string(ingest.InternalError), Message: "internal error"})
		return
	}
	if rows == nil {
		rows = []scan.ScanRecord{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	conns := 0
	if s.d.Registry != nil {
		conns = s.d.Registry.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": conns,
		"cached":      s.d.Cache.Len(),
	})
}
