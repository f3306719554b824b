package edge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"droneops-relay/internal/scan"
)

// Recorder appends each submission as one JSON line.
type Recorder struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewRecorder opens path for appending.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open recording %s: %w", path, err)
	}
	return &Recorder{f: f, enc: json.NewEncoder(f)}, nil
}

// Submit implements Submitter.
func (r *Recorder) Submit(_ context.Context, sub *scan.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(sub)
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

// Tee submits to every submitter in order and joins their errors. A
// failure in one does not stop the others.
type Tee []Submitter

// Submit implements Submitter.
func (t Tee) Submit(ctx context.Context, sub *scan.Submission) error {
	var errs []error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Submit(ctx, sub); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
