// Package websocket streams live session state to browser and CLI clients.
//
// Clients open a WebSocket connection to:
//
//	GET /sessions/{id}/ws
//
// The server pushes the full session view immediately and again after every
// state change (manual step, autoplay tick, process created or killed).
// Slow clients skip intermediate views and always receive the latest one.
//
// Server → client frames:
//
//	{"type":"view","view":{...}}
//	{"type":"error","error":"..."}
//
// Client → server control frames:
//
//	{"type":"tick","n":1}
//	{"type":"back","n":1}
//	{"type":"play"}
//	{"type":"pause"}
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	gorillaws "github.com/gorilla/websocket"

	"github.com/snehjoshi/epochsim/internal/logging"
	"github.com/snehjoshi/epochsim/internal/session"
)

// writeWait bounds a single frame write to a stalled client.
const writeWait = 10 * time.Second

var upgrader = gorillaws.Upgrader{
	// CheckOrigin rejects cross-origin upgrades. Requests without an Origin
	// header (native clients, curl) are allowed.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host, err := parseHost(origin)
		if err != nil {
			return false
		}
		return host == r.Host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
}

// parseHost returns the host:port (or just host) portion of a URL string.
func parseHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid origin %q", rawURL)
	}
	return u.Host, nil
}

// Handler serves the WebSocket endpoint for one session.
// It is mounted by the HTTP server and reads the session id from the chi
// URL parameter "id".
type Handler struct {
	Sessions *session.Manager
	Log      *slog.Logger
}

// ServerFrame is the JSON structure the server sends to the client.
type ServerFrame struct {
	Type  string        `json:"type"` // "view" | "error"
	View  *session.View `json:"view,omitempty"`
	Error string        `json:"error,omitempty"`
}

// ClientFrame is the JSON structure the client sends to the server.
type ClientFrame struct {
	Type string `json:"type"` // "tick" | "back" | "play" | "pause"
	N    int    `json:"n,omitempty"`
}

func (h *Handler) logger() *slog.Logger {
	if h.Log == nil {
		return logging.Discard()
	}
	return h.Log
}

// ServeHTTP upgrades the connection and starts the push loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.logger()
	id := chi.URLParam(r, "id")
	s, err := h.Sessions.Get(id)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "session", id, "err", err)
		return
	}
	defer conn.Close()

	views, cancel := s.Subscribe()
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	controlCh := make(chan ClientFrame, 16)
	go func() {
		defer close(controlCh)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cf ClientFrame
			if jsonErr := json.Unmarshal(raw, &cf); jsonErr != nil {
				continue
			}
			select {
			case controlCh <- cf:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return

		case cf, ok := <-controlCh:
			if !ok {
				return // client disconnected
			}
			if err := apply(s, cf); err != nil {
				log.Debug("ws control failed", "session", id, "type", cf.Type, "err", err)
				if writeErr := send(conn, ServerFrame{Type: "error", Error: err.Error()}); writeErr != nil {
					return
				}
			}

		case v, ok := <-views:
			if !ok {
				// Session deleted.
				_ = conn.WriteControl(gorillaws.CloseMessage,
					gorillaws.FormatCloseMessage(gorillaws.CloseGoingAway, "session deleted"),
					time.Now().Add(writeWait))
				return
			}
			if err := send(conn, ServerFrame{Type: "view", View: &v}); err != nil {
				return
			}
		}
	}
}

// apply runs one control frame. Resulting state changes reach the client
// through the subscription.
func apply(s *session.Session, cf ClientFrame) error {
	n := cf.N
	if n == 0 {
		n = 1
	}
	switch cf.Type {
	case "tick":
		_, err := s.Tick(n)
		return err
	case "back":
		_, _, err := s.Back(n)
		return err
	case "play":
		return s.Play()
	case "pause":
		s.Pause()
		return nil
	}
	return fmt.Errorf("unknown control frame type %q", cf.Type)
}

func send(conn *gorillaws.Conn, f ServerFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(gorillaws.TextMessage, data)
}
