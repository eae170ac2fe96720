package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// SSE keepalive period. Comments hold idle connections open through
// proxies without appearing as event frames.
const sseKeepalive = 30 * time.Second

// WebSocket timing mirrors the SSE stream with a ping/pong liveness
// check on top.
const (
	wsTickInterval    = 15 * time.Second
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
	wsMaxPayloadBytes = 1 << 20
)

// handleEventStream relays the chat's event feed as server-sent
// events, one frame per bus event. The connection stays open until the
// client goes away; terminal turn events are ordinary frames.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	file, _, ok := s.chatFromRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.deps.Agents.Subscribe(file.ID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev := <-sub.Events():
			data, err := json.Marshal(ev)
			if err != nil {
				s.deps.Logger.Error(r.Context(), "event encode error", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// handleEventSocket mirrors the SSE feed over a WebSocket: the same
// event frames as JSON text messages, with ping/pong liveness.
func (s *Server) handleEventSocket(w http.ResponseWriter, r *http.Request) {
	file, _, ok := s.chatFromRequest(w, r)
	if !ok {
		return
	}

	conn, err := eventUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.deps.Agents.Subscribe(file.ID)
	defer sub.Close()

	// The read side only consumes control frames; any read error means
	// the peer is gone.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(wsMaxPayloadBytes)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsTickInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
