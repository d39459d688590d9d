package room

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type entry struct {
	session *Session
	conns   int
}

// Hub binds one Session actor to each active room code. Actors start on the
// first connection and stop when the last one leaves.
type Hub struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	rooms    map[string]*entry
	retiring map[string]*Session
	closed   bool
}

// NewHub returns a Hub whose actors share cfg.
func NewHub(cfg Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		rooms:    map[string]*entry{},
		retiring: map[string]*Session{},
	}
}

// Connect registers connID with the room and returns the normalized code.
// The room actor greets the connection with a connected message.
func (h *Hub) Connect(code, connID string) (string, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return "", ErrInvalidCode
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrClosed
	}
	e, ok := h.rooms[code]
	if !ok {
		s := NewSession(code, h.cfg)
		// A previous actor for this code may still be deleting its state.
		if prev, ok := h.retiring[code]; ok {
			s.wait = prev.Done()
			delete(h.retiring, code)
		}
		e = &entry{session: s}
		h.rooms[code] = e
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			s.Run(h.ctx)
			h.retired(code, s)
		}()
		log.Debug().Str("room", code).Msg("room actor started")
	}
	e.conns++
	h.mu.Unlock()

	e.session.enqueue(event{kind: eventConnect, connID: connID})
	return code, nil
}

// Deliver passes a raw frame from connID to its room.
func (h *Hub) Deliver(code, connID string, raw []byte) {
	h.mu.Lock()
	e, ok := h.rooms[code]
	h.mu.Unlock()
	if !ok {
		log.Warn().Str("room", code).Str("conn", connID).Msg("message for inactive room")
		return
	}
	e.session.enqueue(event{kind: eventMessage, connID: connID, raw: raw})
}

// Disconnect removes connID from its room. The last disconnect stops the actor.
func (h *Hub) Disconnect(code, connID string) {
	h.mu.Lock()
	e, ok := h.rooms[code]
	if !ok {
		h.mu.Unlock()
		return
	}
	e.conns--
	last := e.conns <= 0
	if last {
		delete(h.rooms, code)
		h.retiring[code] = e.session
	}
	h.mu.Unlock()

	e.session.enqueue(event{kind: eventDisconnect, connID: connID})
	if last {
		close(e.session.inbox)
	}
}

// ActiveRooms returns the number of running room actors.
func (h *Hub) ActiveRooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close stops every actor without deleting persisted state, so rooms can be
// recovered by the next process.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()
	h.wg.Wait()
}

func (h *Hub) retired(code string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.retiring[code] == s {
		delete(h.retiring, code)
	}
}
