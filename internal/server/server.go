// Package server exposes room actors over websockets.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/tuirace/internal/room"
)

// Config holds websocket connection settings.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	// AllowedOrigins lists browser origins accepted for CORS and websocket
	// upgrades. "*" allows any origin. Requests without an Origin header are always accepted.
	AllowedOrigins []string
}

// DefaultConfig returns the default connection settings.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      64,
		AllowedOrigins:  []string{"*"},
	}
}

// Server routes websocket connections to room actors and implements
// room.Outbox for them.
type Server struct {
	cfg      Config
	hub      *room.Hub
	upgrader websocket.Upgrader
	origins  map[string]bool
	anyOrig  bool

	mu    sync.RWMutex
	conns map[string]*connection
}

// New builds a Server and the room hub it feeds. rooms.Outbox is set to the server.
func New(cfg Config, rooms room.Config) *Server {
	s := &Server{
		cfg:     cfg,
		origins: map[string]bool{},
		conns:   map[string]*connection{},
	}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			s.anyOrig = true
		default:
			s.origins[origin] = true
		}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	rooms.Outbox = s
	s.hub = room.NewHub(rooms)
	return s
}

// Handler returns the HTTP routes wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{code}", s.handleRoom)
	mux.HandleFunc("GET /health", s.handleHealth)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// Close stops every room actor. Persisted room state is kept.
func (s *Server) Close() {
	s.hub.Close()
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		if err := c.ws.Close(); err != nil {
			// Best-effort close on shutdown.
			_ = err
		}
	}
}

// Send queues frame for connID. A connection whose buffer is full is closed.
func (s *Server) Send(connID string, frame []byte) {
	s.mu.RLock()
	c, ok := s.conns[connID]
	if !ok {
		s.mu.RUnlock()
		return
	}
	select {
	case c.send <- frame:
		s.mu.RUnlock()
	default:
		s.mu.RUnlock()
		log.Warn().Str("conn", connID).Str("room", c.room).Msg("connection send buffer full, closing connection")
		s.unregister(c)
		if err := c.ws.Close(); err != nil {
			// Best-effort close of a slow client.
			_ = err
		}
	}
}

// Connections returns the number of open websocket connections.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	code := room.NormalizeCode(r.PathValue("code"))
	if !room.ValidCode(code) {
		http.Error(w, room.ErrInvalidCode.Error(), http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("failed to upgrade websocket connection")
		return
	}

	c := &connection{
		id:     uuid.New().String(),
		room:   code,
		ws:     ws,
		send:   make(chan []byte, s.cfg.SendBuffer),
		server: s,
	}
	s.register(c)
	go c.writePump()

	if _, err := s.hub.Connect(code, c.id); err != nil {
		log.Error().Err(err).Str("room", code).Msg("failed to join room actor")
		s.unregister(c)
		return
	}
	log.Info().Str("conn", c.id).Str("room", code).Str("remote", r.RemoteAddr).Msg("websocket connection established")
	go c.readPump()
}

type health struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := health{Status: "ok", Rooms: s.hub.ActiveRooms(), Connections: s.Connections()}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.anyOrig {
		return true
	}
	return s.origins[origin]
}

func (s *Server) register(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

// unregister removes c and closes its send channel once.
func (s *Server) unregister(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.conns[c.id]; ok && cur == c {
		delete(s.conns, c.id)
		close(c.send)
		log.Debug().Str("conn", c.id).Str("room", c.room).Msg("connection unregistered")
	}
}

type connection struct {
	id     string
	room   string
	ws     *websocket.Conn
	send   chan []byte
	server *Server
}

func (c *connection) writePump() {
	cfg := c.server.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		if err := c.ws.Close(); err != nil {
			// Best-effort close.
			_ = err
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
				return
			}
			if !ok {
				if err := c.ws.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					// Peer may already be gone.
					_ = err
				}
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("conn", c.id).Msg("failed to write message to websocket")
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("conn", c.id).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *connection) readPump() {
	cfg := c.server.cfg
	defer func() {
		c.server.unregister(c)
		c.server.hub.Disconnect(c.room, c.id)
		if err := c.ws.Close(); err != nil {
			// Best-effort close.
			_ = err
		}
		log.Info().Str("conn", c.id).Str("room", c.room).Msg("websocket connection closed")
	}()

	c.ws.SetReadLimit(cfg.MaxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) &&
				errors.As(err, &closeErr) {
				log.Warn().Err(err).Str("conn", c.id).Msg("unexpected websocket close")
			}
			return
		}
		c.server.hub.Deliver(c.room, c.id, frame)
		if err := c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
			return
		}
	}
}
