package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"droneops-relay/internal/cache"
	"droneops-relay/internal/hub"
)

type relayStub struct {
	srv   *httptest.Server
	reg   *hub.Registry
	cache *cache.LastKnown
	bc    *hub.Broadcaster
}

func newRelayStub(t *testing.T) *relayStub {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rs := &relayStub{reg: hub.NewRegistry(), cache: cache.New()}
	rs.bc = hub.NewBroadcaster(rs.reg, nil, logger)
	mux := http.NewServeMux()
	mux.Handle("GET /ws", hub.NewServer(rs.reg, hub.SessionConfig{}, nil, logger))
	mux.HandleFunc("GET /api/scans/{id}/latest", func(w http.ResponseWriter, r *http.Request) {
		b, ok := rs.cache.Get(r.PathValue("id"))
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(b)
	})
	rs.srv = httptest.NewServer(mux)
	t.Cleanup(rs.srv.Close)
	return rs
}

func TestPushURL(t *testing.T) {
	cases := map[string]string{
		"http://relay:8080":      "ws://relay:8080/ws",
		"https://relay.example/": "wss://relay.example/ws",
		"http://host/prefix":     "ws://host/prefix/ws",
	}
	for in, want := range cases {
		got, err := PushURL(in)
		if err != nil || got != want {
			t.Errorf("PushURL(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := PushURL("ftp://x"); err == nil {
		t.Errorf("expected error for ftp scheme")
	}
}

func TestHTTPPuller(t *testing.T) {
	rs := newRelayStub(t)
	p := &HTTPPuller{BaseURL: rs.srv.URL}
	ctx := context.Background()

	if _, err := p.Latest(ctx, "d1"); !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	rs.cache.Put("d1", mkBatch("d1", "t1"))
	b, err := p.Latest(ctx, "d1")
	if err != nil || b.Timestamp != "t1" {
		t.Fatalf("Latest = %+v, %v", b, err)
	}
}

func TestNegotiatorAgainstRelay(t *testing.T) {
	rs := newRelayStub(t)
	wsURL, _ := PushURL(rs.srv.URL)
	d := &WSDialer{URL: wsURL}
	s := start(t, d, &HTTPPuller{BaseURL: rs.srv.URL})

	s.await(t, "pushing", func(u Update) bool { return u.State == Pushing })
	deadline := time.Now().Add(2 * time.Second)
	for len(rs.reg.MembersOf("d1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("viewer never joined d1")
		}
		time.Sleep(5 * time.Millisecond)
	}
	rs.bc.Publish(mkBatch("d1", "pushed"))
	s.await(t, "pushed batch", func(u Update) bool { return u.Batch != nil && u.Batch.Timestamp == "pushed" })

	s.stop(t)
	deadline = time.Now().Add(2 * time.Second)
	for rs.reg.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection still registered after viewer teardown")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNegotiatorPollsWhenPushUnavailable(t *testing.T) {
	rs := newRelayStub(t)
	d := &WSDialer{URL: "ws" + rs.srv.URL[len("http"):] + "/nope"}
	s := start(t, d, &HTTPPuller{BaseURL: rs.srv.URL})

	s.await(t, "waiting", func(u Update) bool { return u.State == Polling && u.Waiting })
	rs.cache.Put("d1", mkBatch("d1", "late"))
	s.await(t, "polled batch", func(u Update) bool { return u.Batch != nil && u.Batch.Timestamp == "late" })
	s.stop(t)
}
