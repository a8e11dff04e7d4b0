package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

// envelope holds the fields the viewer needs from every session event.
type envelope struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text,omitempty"`
	Message   string `json:"message,omitempty"`
}

// decodeEvent checks that value is a session event and returns its envelope.
func decodeEvent(value []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return env, err
	}
	if env.EventType == "" || env.SessionID == "" {
		return env, errors.New("event without eventType or sessionId")
	}
	return env, nil
}

// Hub fans events out to connected browsers. Only run touches the client set.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	broadcast  chan json.RawMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	count      atomic.Int64
	logger     zerolog.Logger
}

func newHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		broadcast:  make(chan json.RawMessage, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Publish queues an event for every browser.
func (h *Hub) Publish(ctx context.Context, event json.RawMessage) {
	select {
	case h.broadcast <- event:
	case <-ctx.Done():
	}
}

func (h *Hub) run(ctx context.Context) {
	defer func() {
		for conn := range h.clients {
			conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.clients[conn] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Info().Int("clients", len(h.clients)).Msg("Client connected")

		case conn := <-h.unregister:
			h.drop(conn)

		case event := <-h.broadcast:
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, event); err != nil {
					h.logger.Warn().Err(err).Msg("Write error")
					h.drop(conn)
				}
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	if _, ok := h.clients[conn]; !ok {
		return
	}
	delete(h.clients, conn)
	conn.Close()
	h.count.Store(int64(len(h.clients)))
	h.logger.Info().Int("clients", len(h.clients)).Msg("Client disconnected")
}

var upgrader = websocket.Upgrader{
	// Allow all origins for local dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsHandler(ctx context.Context, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		select {
		case hub.register <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}

		// Read until the browser goes away
		go func() {
			defer func() {
				select {
				case hub.unregister <- conn:
				case <-ctx.Done():
				}
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
