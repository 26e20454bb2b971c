package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/micro-nova/amplipi-rfid/internal/models"
)

// DefaultMopidyURL is Mopidy's JSON-RPC websocket endpoint.
const DefaultMopidyURL = "ws://localhost:6680/mopidy/ws"

const (
	mopidyHandshakeTimeout = 5 * time.Second
	mopidyCallTimeout      = 5 * time.Second
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Event  string          `json:"event"`
}

type mopidyTrack struct {
	URI    string `json:"uri"`
	Length *int64 `json:"length"`
}

// Mopidy is a JSON-RPC client for Mopidy's websocket API. Calls are
// serialized; the connection is dialed on first use and redialed after any
// transport error.
type Mopidy struct {
	url     string
	timeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

// NewMopidy creates a client for url (e.g. DefaultMopidyURL).
func NewMopidy(url string) *Mopidy {
	if url == "" {
		url = DefaultMopidyURL
	}
	return &Mopidy{url: url, timeout: mopidyCallTimeout}
}

func (m *Mopidy) connectLocked(ctx context.Context) error {
	if m.conn != nil {
		return nil
	}
	d := websocket.Dialer{HandshakeTimeout: mopidyHandshakeTimeout}
	conn, _, err := d.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("mopidy: dial %s: %w", m.url, err)
	}
	slog.Debug("mopidy: connected", "url", m.url)
	m.conn = conn
	return nil
}

func (m *Mopidy) dropLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// call sends one request and reads until the matching response, skipping
// the event notifications Mopidy pushes on the same socket.
func (m *Mopidy) call(ctx context.Context, method string, params any, result any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPlayer, err)
	}

	deadline := time.Now().Add(m.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	m.nextID++
	id := m.nextID
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	m.conn.SetWriteDeadline(deadline)
	if err := m.conn.WriteJSON(req); err != nil {
		m.dropLocked()
		return fmt.Errorf("%w: mopidy: %s: write: %v", models.ErrPlayer, method, err)
	}

	m.conn.SetReadDeadline(deadline)
	for {
		var resp rpcResponse
		if err := m.conn.ReadJSON(&resp); err != nil {
			m.dropLocked()
			return fmt.Errorf("%w: mopidy: %s: read: %v", models.ErrPlayer, method, err)
		}
		if resp.ID == nil || *resp.ID != id {
			if resp.Event != "" {
				slog.Debug("mopidy: event", "event", resp.Event)
			}
			continue
		}
		if resp.Error != nil {
			return fmt.Errorf("%w: mopidy: %s: %s (%d)", models.ErrPlayer, method, resp.Error.Message, resp.Error.Code)
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%w: mopidy: %s: decode: %v", models.ErrPlayer, method, err)
		}
		return nil
	}
}

// Close drops the connection.
func (m *Mopidy) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked()
	return nil
}

func (m *Mopidy) State(ctx context.Context) (models.PlaybackState, error) {
	var s string
	if err := m.call(ctx, "core.playback.get_state", nil, &s); err != nil {
		return models.StateStopped, err
	}
	return models.ParsePlaybackState(s), nil
}

func (m *Mopidy) Position(ctx context.Context) (time.Duration, error) {
	var ms *int64
	if err := m.call(ctx, "core.playback.get_time_position", nil, &ms); err != nil {
		return 0, err
	}
	if ms == nil {
		return 0, nil
	}
	return time.Duration(*ms) * time.Millisecond, nil
}

func (m *Mopidy) CurrentTrack(ctx context.Context) (models.Track, error) {
	var t *mopidyTrack
	if err := m.call(ctx, "core.playback.get_current_track", nil, &t); err != nil {
		return models.Track{}, err
	}
	if t == nil {
		return models.Track{}, nil
	}
	track := models.Track{URI: t.URI}
	if t.Length != nil {
		track.Length = time.Duration(*t.Length) * time.Millisecond
	}
	return track, nil
}

func (m *Mopidy) Clear(ctx context.Context) error {
	return m.call(ctx, "core.tracklist.clear", nil, nil)
}

func (m *Mopidy) Add(ctx context.Context, uri string) error {
	if uri == "" {
		return errors.New("mopidy: add: empty uri")
	}
	return m.call(ctx, "core.tracklist.add", map[string]any{"uris": []string{uri}}, nil)
}

func (m *Mopidy) Play(ctx context.Context) error {
	return m.call(ctx, "core.playback.play", nil, nil)
}

func (m *Mopidy) Pause(ctx context.Context) error {
	return m.call(ctx, "core.playback.pause", nil, nil)
}

func (m *Mopidy) Stop(ctx context.Context) error {
	return m.call(ctx, "core.playback.stop", nil, nil)
}

var _ Player = (*Mopidy)(nil)
