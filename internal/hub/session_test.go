package hub

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type connCounter struct{ opened, closed chan struct{} }

func (c *connCounter) ConnectionOpened() { c.opened <- struct{}{} }
func (c *connCounter) ConnectionClosed() { c.closed <- struct{}{} }

func dialTest(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) Event {
	t.Helper()
	var ev Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestSessionSubscribeReceiveDisconnect(t *testing.T) {
	reg := NewRegistry()
	cc := &connCounter{opened: make(chan struct{}, 1), closed: make(chan struct{}, 1)}
	srv := httptest.NewServer(NewServer(reg, SessionConfig{PingInterval: time.Second}, cc, quietLogger()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTest(t, ctx, srv.URL)

	ready := readEvent(t, ctx, conn)
	if ready.Type != EventReady || ready.ConnID == "" {
		t.Fatalf("first event = %+v, want ready", ready)
	}
	<-cc.opened

	if err := wsjson.Write(ctx, conn, Command{Type: CommandSubscribe, DroneID: "d1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if ev := readEvent(t, ctx, conn); ev.Type != EventSubscribed || ev.DroneID != "d1" {
		t.Fatalf("ack = %+v", ev)
	}
	if got := ids(reg.MembersOf("d1")); len(got) != 1 || got[0] != ready.ConnID {
		t.Fatalf("members = %v", got)
	}

	NewBroadcaster(reg, nil, quietLogger()).Publish(testBatch("d1"))
	scanEv := readEvent(t, ctx, conn)
	if scanEv.Type != EventScan || string(scanEv.Batch.Points) != string(testBatch("d1").Points) {
		t.Fatalf("scan event = %+v", scanEv)
	}
	if ev := readEvent(t, ctx, conn); ev.Type != EventSummary {
		t.Fatalf("expected summary, got %+v", ev)
	}

	conn.Close(websocket.StatusNormalClosure, "bye")
	select {
	case <-cc.closed:
	case <-ctx.Done():
		t.Fatalf("server did not notice disconnect")
	}
	if len(reg.MembersOf("d1")) != 0 || reg.Len() != 0 {
		t.Fatalf("disconnected viewer still registered")
	}
}

func TestSessionUnsubscribeAndBadCommands(t *testing.T) {
	reg := NewRegistry()
	srv := httptest.NewServer(NewServer(reg, SessionConfig{}, nil, quietLogger()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTest(t, ctx, srv.URL)
	defer conn.CloseNow()
	_ = readEvent(t, ctx, conn)

	_ = wsjson.Write(ctx, conn, Command{Type: CommandSubscribe})
	if ev := readEvent(t, ctx, conn); ev.Type != EventError {
		t.Fatalf("empty drone id: got %+v", ev)
	}
	_ = wsjson.Write(ctx, conn, Command{Type: "dance"})
	if ev := readEvent(t, ctx, conn); ev.Type != EventError {
		t.Fatalf("unknown command: got %+v", ev)
	}
	_ = wsjson.Write(ctx, conn, Command{Type: CommandSubscribe, DroneID: "d1"})
	_ = readEvent(t, ctx, conn)
	_ = wsjson.Write(ctx, conn, Command{Type: CommandUnsubscribe, DroneID: "d1"})
	if ev := readEvent(t, ctx, conn); ev.Type != EventUnsubscribed {
		t.Fatalf("unsubscribe ack = %+v", ev)
	}
	if len(reg.MembersOf("d1")) != 0 {
		t.Fatalf("still a member after unsubscribe")
	}
}

func TestSessionUnsubscribeWithoutDroneLeavesCurrent(t *testing.T) {
	reg := NewRegistry()
	srv := httptest.NewServer(NewServer(reg, SessionConfig{}, nil, quietLogger()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTest(t, ctx, srv.URL)
	defer conn.CloseNow()
	_ = readEvent(t, ctx, conn)

	_ = wsjson.Write(ctx, conn, Command{Type: CommandSubscribe, DroneID: "d7"})
	_ = readEvent(t, ctx, conn)
	_ = wsjson.Write(ctx, conn, Command{Type: CommandUnsubscribe})
	if ev := readEvent(t, ctx, conn); ev.Type != EventUnsubscribed || ev.DroneID != "d7" {
		t.Fatalf("unsubscribe ack = %+v", ev)
	}
	if len(reg.MembersOf("d7")) != 0 {
		t.Fatalf("still a member after unsubscribe")
	}
}

func TestServerShutdownClosesSessions(t *testing.T) {
	reg := NewRegistry()
	cc := &connCounter{opened: make(chan struct{}, 1), closed: make(chan struct{}, 1)}
	hs := NewServer(reg, SessionConfig{}, cc, quietLogger())
	srv := httptest.NewServer(hs)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTest(t, ctx, srv.URL)
	defer conn.CloseNow()
	_ = readEvent(t, ctx, conn)
	<-cc.opened

	hs.Shutdown()
	hs.Shutdown()

	var ev Event
	err := wsjson.Read(ctx, conn, &ev)
	if websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Fatalf("read after shutdown: %v, want going away", err)
	}
	select {
	case <-cc.closed:
	case <-ctx.Done():
		t.Fatalf("session not torn down")
	}
	if reg.Len() != 0 {
		t.Fatalf("registry still holds %d connections", reg.Len())
	}

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status after shutdown = %d", resp.StatusCode)
	}
}
