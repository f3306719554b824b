package validate

import (
	"errors"
	"strings"
	"testing"
)

const goodBody = `{
  "api_key": "k1",
  "drone_id": "d1",
  "timestamp": "2024-05-01T12:00:00Z",
  "points": [
    {"angle": 0, "distance": 1.2, "quality": 40, "x": 1.2, "y": 0},
    {"angle": 90, "distance": 2.5, "quality": 63, "x": 0, "y": 2.5},
    {"angle": 400, "distance": 3, "quality": 12, "x": -1, "y": -2}
  ],
  "stats": {"point_count": 3, "valid_points": 3, "min_distance": 1.2, "max_distance": 3, "avg_distance": 2.23, "avg_quality": 38.3}
}`

func mustRaw(t *testing.T, body string) Raw {
	t.Helper()
	r, err := ParseRaw([]byte(body))
	if err != nil {
		t.Fatalf("ParseRaw: %v", err)
	}
	return r
}

func reasonOf(t *testing.T, err error) *Error {
	t.Helper()
	var ve *Error
	if !errors.As(err, &ve) {
		t.Fatalf("expected *validate.Error, got %T (%v)", err, err)
	}
	return ve
}

func TestBatchAccepts(t *testing.T) {
	raw := mustRaw(t, goodBody)
	b, err := Batch(raw, raw.String("drone_id"), "d1")
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if b.DroneID != "d1" || b.Timestamp != "2024-05-01T12:00:00Z" {
		t.Errorf("unexpected batch header: %+v", b)
	}
	if b.Stats.PointCount != 3 || b.Stats.AvgQuality != 38.3 {
		t.Errorf("unexpected stats: %+v", b.Stats)
	}
	pts, err := b.DecodePoints()
	if err != nil {
		t.Fatalf("DecodePoints: %v", err)
	}
	if len(pts) != 3 || pts[2].Angle != 400 {
		t.Errorf("points not passed through: %+v", pts)
	}
}

func TestBatchRejections(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		auth   string
		reason Reason
		field  string
	}{
		{
			name:   "missing stats and points",
			body:   `{"drone_id":"d1","timestamp":"t"}`,
			auth:   "d1",
			reason: MissingFields,
			field:  "points,stats",
		},
		{
			name:   "null timestamp",
			body:   `{"drone_id":"d1","timestamp":null,"points":[],"stats":{}}`,
			auth:   "d1",
			reason: MissingFields,
			field:  "timestamp",
		},
		{
			name:   "empty drone id",
			body:   `{"drone_id":"","timestamp":"t","points":[],"stats":{}}`,
			auth:   "d1",
			reason: MissingFields,
			field:  "drone_id",
		},
		{
			name:   "identity mismatch wins over malformed payload",
			body:   `{"drone_id":"d2","timestamp":"t","points":"nope","stats":[]}`,
			auth:   "d1",
			reason: IdentityMismatch,
			field:  "drone_id",
		},
		{
			name:   "numeric drone id",
			body:   `{"drone_id":7,"timestamp":"t","points":[],"stats":{}}`,
			auth:   "d1",
			reason: MalformedPayload,
			field:  "drone_id",
		},
		{
			name:   "points not array",
			body:   `{"drone_id":"d1","timestamp":"t","points":{},"stats":{}}`,
			auth:   "d1",
			reason: MalformedPayload,
			field:  "points",
		},
		{
			name:   "stats not object",
			body:   `{"drone_id":"d1","timestamp":"t","points":[],"stats":[1]}`,
			auth:   "d1",
			reason: MalformedPayload,
			field:  "stats",
		},
		{
			name:   "timestamp not string",
			body:   `{"drone_id":"d1","timestamp":12,"points":[],"stats":{}}`,
			auth:   "d1",
			reason: MalformedPayload,
			field:  "timestamp",
		},
		{
			name:   "first non-numeric stats field named",
			body:   `{"drone_id":"d1","timestamp":"t","points":[],"stats":{"point_count":1,"valid_points":"1","min_distance":"x"}}`,
			auth:   "d1",
			reason: MalformedPayload,
			field:  "stats.valid_points",
		},
		{
			name:   "missing stats field",
			body:   `{"drone_id":"d1","timestamp":"t","points":[],"stats":{"point_count":1,"valid_points":1,"min_distance":0,"max_distance":0,"avg_distance":0}}`,
			auth:   "d1",
			reason: MalformedPayload,
			field:  "stats.avg_quality",
		},
		{
			name:   "sampled point not object",
			body:   `{"drone_id":"d1","timestamp":"t","points":[{"angle":0,"distance":0,"quality":0,"x":0,"y":0}, 5],"stats":` + okStats + `}`,
			auth:   "d1",
			reason: MalformedPayload,
			field:  "points[1]",
		},
		{
			name:   "sampled point bad field",
			body:   `{"drone_id":"d1","timestamp":"t","points":[{"angle":0,"distance":"far","quality":0,"x":0,"y":0}],"stats":` + okStats + `}`,
			auth:   "d1",
			reason: MalformedPayload,
			field:  "points[0].distance",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := mustRaw(t, tc.body)
			_, err := Batch(raw, raw.String("drone_id"), tc.auth)
			if err == nil {
				t.Fatalf("expected rejection")
			}
			ve := reasonOf(t, err)
			if ve.Reason != tc.reason {
				t.Errorf("reason = %s, want %s", ve.Reason, tc.reason)
			}
			if ve.Field != tc.field {
				t.Errorf("field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

const okStats = `{"point_count":1,"valid_points":1,"min_distance":0,"max_distance":0,"avg_distance":0,"avg_quality":0}`

func TestBatchSamplesOnlyLeadingPoints(t *testing.T) {
	good := `{"angle":0,"distance":1,"quality":1,"x":1,"y":0}`
	pts := []string{good, good, good, good, good, `{"angle":"bad"}`}
	body := `{"drone_id":"d1","timestamp":"t","points":[` + strings.Join(pts, ",") + `],"stats":` + okStats + `}`
	raw := mustRaw(t, body)
	b, err := Batch(raw, "d1", "d1")
	if err != nil {
		t.Fatalf("sixth point must not be inspected, got %v", err)
	}
	if !strings.Contains(string(b.Points), `"bad"`) {
		t.Errorf("points should pass through verbatim")
	}
}

func TestParseRawRejectsNonObject(t *testing.T) {
	if _, err := ParseRaw([]byte(`[1,2]`)); err == nil {
		t.Errorf("expected error for array body")
	}
	if _, err := ParseRaw([]byte(`null`)); err == nil {
		t.Errorf("expected error for null body")
	}
}
