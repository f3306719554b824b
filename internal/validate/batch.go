package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"droneops-relay/internal/scan"
)

// SampleSize is how many leading points are deep-checked. Points past the
// sample are relayed without inspection.
const SampleSize = 5

// Reason classifies a validation failure.
type Reason string

const (
	MissingFields    Reason = "MissingFields"
	IdentityMismatch Reason = "IdentityMismatch"
	MalformedPayload Reason = "MalformedPayload"
)

// Error is a structured rejection produced by the batch validator.
type Error struct {
	Reason Reason
	// Field names the offending field for MalformedPayload, or a comma
	// separated list for MissingFields.
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Reason, e.Field, e.Message)
}

// Raw is an undecoded batch as received: top-level keys to raw values.
type Raw map[string]json.RawMessage

// ParseRaw decodes a request body into a Raw record.
func ParseRaw(body []byte) (Raw, error) {
	var r Raw
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.New("body is not a JSON object")
	}
	return r, nil
}

// String returns the named field decoded as a string, or "" when the
// field is absent or not a string.
func (r Raw) String(name string) string {
	raw, ok := r[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

var topLevel = Contract{
	{Name: "drone_id", Required: true, Kind: KindString},
	{Name: "timestamp", Required: true, Kind: KindString},
	{Name: "points", Required: true, Kind: KindArray},
	{Name: "stats", Required: true, Kind: KindObject},
}

var shape = Contract{
	{Name: "points", Required: true, Kind: KindArray},
	{Name: "stats", Required: true, Kind: KindObject},
	{Name: "timestamp", Required: true, Kind: KindString},
}

var statsContract = Contract{
	{Name: "point_count", Required: true, Kind: KindNumber},
	{Name: "valid_points", Required: true, Kind: KindNumber},
	{Name: "min_distance", Required: true, Kind: KindNumber},
	{Name: "max_distance", Required: true, Kind: KindNumber},
	{Name: "avg_distance", Required: true, Kind: KindNumber},
	{Name: "avg_quality", Required: true, Kind: KindNumber},
}

var pointContract = Contract{
	{Name: "angle", Required: true, Kind: KindNumber},
	{Name: "distance", Required: true, Kind: KindNumber},
	{Name: "quality", Required: true, Kind: KindNumber},
	{Name: "x", Required: true, Kind: KindNumber},
	{Name: "y", Required: true, Kind: KindNumber},
}

// Batch validates raw against the batch contracts. claimed is the source
// identity the payload asserts and authenticated the one bound to the
// API key. Checks short-circuit in order: presence, identity, shape,
// stats, sampled points. Values are passed through unchanged.
func Batch(raw Raw, claimed, authenticated string) (*scan.Batch, error) {
	if missing := topLevel.Missing(raw); len(missing) > 0 {
		return nil, &Error{
			Reason:  MissingFields,
			Field:   strings.Join(missing, ","),
			Message: "missing required fields: " + strings.Join(missing, ", "),
		}
	}

	if !hasKind(raw["drone_id"], KindString) {
		return nil, &Error{Reason: MalformedPayload, Field: "drone_id", Message: "drone_id must be a string"}
	}
	if claimed != authenticated {
		return nil, &Error{
			Reason:  IdentityMismatch,
			Field:   "drone_id",
			Message: fmt.Sprintf("API key is not valid for drone %q", claimed),
		}
	}

	if field, err := shape.CheckKinds(raw); err != nil {
		return nil, &Error{Reason: MalformedPayload, Field: field, Message: field + ": " + err.Error()}
	}

	var stats map[string]json.RawMessage
	if err := json.Unmarshal(raw["stats"], &stats); err != nil {
		return nil, &Error{Reason: MalformedPayload, Field: "stats", Message: "stats must be an object"}
	}
	if field, err := statsContract.CheckKinds(stats); err != nil {
		return nil, &Error{Reason: MalformedPayload, Field: "stats." + field, Message: "stats." + field + ": " + err.Error()}
	}

	var points []json.RawMessage
	if err := json.Unmarshal(raw["points"], &points); err != nil {
		return nil, &Error{Reason: MalformedPayload, Field: "points", Message: "points must be an array"}
	}
	if err := samplePoints(points); err != nil {
		return nil, err
	}

	b := &scan.Batch{
		DroneID:   claimed,
		Timestamp: raw.String("timestamp"),
		Points:    raw["points"],
	}
	if err := json.Unmarshal(raw["stats"], &b.Stats); err != nil {
		return nil, &Error{Reason: MalformedPayload, Field: "stats", Message: err.Error()}
	}
	return b, nil
}

// samplePoints deep-checks the first SampleSize points only.
func samplePoints(points []json.RawMessage) error {
	n := len(points)
	if n > SampleSize {
		n = SampleSize
	}
	for i := 0; i < n; i++ {
		label := fmt.Sprintf("points[%d]", i)
		if !hasKind(points[i], KindObject) {
			return &Error{Reason: MalformedPayload, Field: label, Message: label + ": expected object"}
		}
		var rec map[string]json.RawMessage
		if err := json.Unmarshal(points[i], &rec); err != nil {
			return &Error{Reason: MalformedPayload, Field: label, Message: label + ": " + err.Error()}
		}
		if field, err := pointContract.CheckKinds(rec); err != nil {
			name := label + "." + field
			return &Error{Reason: MalformedPayload, Field: name, Message: name + ": " + err.Error()}
		}
	}
	return nil
}
