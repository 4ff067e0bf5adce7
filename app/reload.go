package app

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

//go:embed public
var publicFiles embed.FS

const reloadMessage = "reload"

// Hub tracks the browsers connected to the hot reload socket.
type Hub struct {
	log *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub returns an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, conns: make(map[*websocket.Conn]struct{})}
}

// Handler upgrades same-origin requests to a socket that answers "ping"
// with "pong" and receives "reload" broadcasts.
func (h *Hub) Handler() http.Handler {
	return websocket.Server{Handshake: sameOrigin, Handler: h.serve}
}

func sameOrigin(cfg *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(cfg, r)
	if err != nil {
		return err
	}
	if origin != nil && origin.Host != r.Host {
		return fmt.Errorf("app: cross-origin socket from %s", origin.Host)
	}
	cfg.Origin = origin
	return nil
}

func (h *Hub) serve(ws *websocket.Conn) {
	h.mu.Lock()
	h.conns[ws] = struct{}{}
	h.mu.Unlock()
	defer h.drop(ws)

	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			if errors.Is(err, io.EOF) {
				h.log.Debug("app: reload client closed connection")
			} else {
				h.log.Debug("app: reload socket read", "error", err)
			}
			return
		}
		if msg == "ping" {
			if err := websocket.Message.Send(ws, "pong"); err != nil {
				h.log.Debug("app: reload socket write", "error", err)
				return
			}
		}
	}
}

func (h *Hub) drop(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, ws)
	h.mu.Unlock()
	ws.Close()
}

// Broadcast sends msg to every connected client and returns how many
// received it. Clients that fail are dropped.
func (h *Hub) Broadcast(msg string) int {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	sent := 0
	for _, c := range conns {
		if err := websocket.Message.Send(c, msg); err != nil {
			h.log.Debug("app: reload broadcast", "error", err)
			h.drop(c)
			continue
		}
		sent++
	}
	return sent
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
	for c := range conns {
		c.Close()
	}
}
