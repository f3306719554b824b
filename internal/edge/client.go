package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"droneops-relay/internal/scan"
)

// Submitter accepts scans from a producer.
type Submitter interface {
	Submit(ctx context.Context, sub *scan.Submission) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, sub *scan.Submission) error

// Submit implements Submitter.
func (f SubmitterFunc) Submit(ctx context.Context, sub *scan.Submission) error { return f(ctx, sub) }

// Ack is the relay's success response.
type Ack struct {
	DroneID    string  `json:"drone_id"`
	Timestamp  string  `json:"timestamp"`
	PointCount float64 `json:"point_count"`
}

// RejectedError is a non-2xx response from the relay.
type RejectedError struct {
	Status  int
	Reason  string `json:"error"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *RejectedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("relay rejected scan: %d %s (%s): %s", e.Status, e.Reason, e.Field, e.Message)
	}
	return fmt.Sprintf("relay rejected scan: %d %s: %s", e.Status, e.Reason, e.Message)
}

// Client posts scans to POST /api/scans.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the relay at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/"), HTTP: http.DefaultClient}
}

// Send submits one scan and returns the relay's acknowledgement.
func (c *Client) Send(ctx context.Context, sub *scan.Submission) (*Ack, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/scans", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		rej := &RejectedError{Status: resp.StatusCode}
		if json.Unmarshal(data, rej) != nil || rej.Reason == "" {
			rej.Message = strings.TrimSpace(string(data))
		}
		return nil, rej
	}
	var ack Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("decode ack: %w", err)
	}
	return &ack, nil
}

// Submit implements Submitter.
func (c *Client) Submit(ctx context.Context, sub *scan.Submission) error {
	_, err := c.Send(ctx, sub)
	return err
}
