package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"droneops-relay/internal/hub"
	"droneops-relay/internal/scan"
)

// PushURL derives the websocket endpoint from the relay base URL.
func PushURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// WSDialer dials the relay's push endpoint.
type WSDialer struct {
	URL        string
	ReadLimit  int64
	HTTPClient *http.Client
}

// Dial connects and waits for the ready event.
func (d *WSDialer) Dial(ctx context.Context) (PushConn, error) {
	c, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, err
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = 4 << 20
	}
	c.SetReadLimit(limit)
	var ev hub.Event
	if err := wsjson.Read(ctx, c, &ev); err != nil {
		c.CloseNow()
		return nil, fmt.Errorf("waiting for ready: %w", err)
	}
	if ev.Type != hub.EventReady {
		c.CloseNow()
		return nil, fmt.Errorf("expected ready event, got %q", ev.Type)
	}
	return &wsConn{c: c, id: ev.ConnID}, nil
}

type wsConn struct {
	c  *websocket.Conn
	id string
}

func (w *wsConn) Subscribe(ctx context.Context, droneID string) error {
	return wsjson.Write(ctx, w.c, hub.Command{Type: hub.CommandSubscribe, DroneID: droneID})
}

func (w *wsConn) Unsubscribe(ctx context.Context, droneID string) error {
	return wsjson.Write(ctx, w.c, hub.Command{Type: hub.CommandUnsubscribe, DroneID: droneID})
}

func (w *wsConn) Next(ctx context.Context) (hub.Event, error) {
	var ev hub.Event
	err := wsjson.Read(ctx, w.c, &ev)
	return ev, err
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "viewer closed")
}

// HTTPPuller reads GET /api/scans/{id}/latest.
type HTTPPuller struct {
	BaseURL string
	Client  *http.Client
}

// Latest implements Puller.
func (p *HTTPPuller) Latest(ctx context.Context, droneID string) (*scan.Batch, error) {
	endpoint := strings.TrimSuffix(p.BaseURL, "/") + "/api/scans/" + url.PathEscape(droneID) + "/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNoData
	default:
		return nil, fmt.Errorf("pull %s: unexpected status %d", droneID, resp.StatusCode)
	}
	var b scan.Batch
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, fmt.Errorf("pull %s: decode: %w", droneID, err)
	}
	return &b, nil
}
