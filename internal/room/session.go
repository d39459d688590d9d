// Package room runs one actor per room code. All messages for a room are
// applied by a single goroutine, so room state needs no locking.
package room

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/tuirace/internal/generator"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/protocol"
	"github.com/verte-zerg/tuirace/internal/wordlist"
)

// Persisted keys.
const (
	keyInitialized = "initialized"
	keyPlayers     = "players"
	keyMeta        = "meta"
)

const inboxSize = 256

// Outbox delivers a frame to one connection. Implementations must not block.
type Outbox interface {
	Send(connID string, frame []byte)
}

// Config wires room actors to their collaborators.
type Config struct {
	// KV returns the durable storage of a room. Nil keeps state in memory.
	KV     func(code string) KV
	Outbox Outbox
	Words  wordlist.Supplier
	Gen    *generator.Generator
	Clock  clockwork.Clock
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventMessage
	eventDisconnect
)

type event struct {
	kind   eventKind
	connID string
	raw    []byte
}

// meta holds the room fields that are not part of the roster.
type meta struct {
	Host       string     `json:"host"`
	Mode       model.Mode `json:"mode"`
	TimeLimit  int        `json:"timeLimit"`
	WordList   []string   `json:"wordList,omitempty"`
	Started    bool       `json:"started"`
	StartedAt  int64      `json:"startedAt,omitempty"`
	FinishedAt int64      `json:"finishedAt,omitempty"`
}

// Session is the actor of one room.
type Session struct {
	code  string
	kv    KV
	out   Outbox
	words wordlist.Supplier
	gen   *generator.Generator
	clock clockwork.Clock

	inbox chan event
	done  chan struct{}
	wait  <-chan struct{}

	state       *model.RoomState
	initialized bool
	// conns maps every live connection to the player it joined as, "" before join.
	conns map[string]string
	// creator is the connection that created the room until it joins.
	creator string
}

// NewSession builds the actor for code. Call Run to start it.
func NewSession(code string, cfg Config) *Session {
	s := &Session{
		code:  code,
		out:   cfg.Outbox,
		words: cfg.Words,
		gen:   cfg.Gen,
		clock: cfg.Clock,
		inbox: make(chan event, inboxSize),
		done:  make(chan struct{}),
		conns: map[string]string{},
	}
	if cfg.KV != nil {
		s.kv = cfg.KV(code)
	} else {
		s.kv = NewMemoryKV()
	}
	if s.gen == nil {
		s.gen = generator.New()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	s.state = newRoomState(code)
	return s
}

func newRoomState(code string) *model.RoomState {
	return &model.RoomState{
		Code:             code,
		Players:          map[string]*model.Player{},
		Mode:             model.ModeWords,
		TimeLimitSeconds: model.DefaultTimeLimit,
	}
}

// Run loads persisted state and applies events until the inbox is closed or
// ctx is cancelled. A closed inbox means the last connection left, and the
// room's persisted state is deleted.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	if s.wait != nil {
		select {
		case <-s.wait:
		case <-ctx.Done():
			return
		}
	}
	s.load(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.inbox:
			if !ok {
				s.clear(ctx)
				return
			}
			s.handle(ctx, ev)
		}
	}
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) enqueue(ev event) {
	select {
	case s.inbox <- ev:
	case <-s.done:
		log.Warn().Str("room", s.code).Str("conn", ev.connID).Msg("room stopped, dropping event")
	}
}

func (s *Session) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventConnect:
		s.conns[ev.connID] = ""
		s.send(ev.connID, protocol.TypeConnected, protocol.ConnectedData{ID: ev.connID, RoomExists: s.initialized})
	case eventDisconnect:
		s.disconnect(ctx, ev.connID)
	case eventMessage:
		s.message(ctx, ev.connID, ev.raw)
	}
}

// load restores state written before a restart. The initialized flag is
// written before the roster, so a missing or unreadable roster means empty.
func (s *Session) load(ctx context.Context) {
	raw, ok, err := s.kv.Get(ctx, keyInitialized)
	if err != nil {
		log.Error().Err(err).Str("room", s.code).Msg("failed to read room state")
		return
	}
	var initialized bool
	if !ok || json.Unmarshal(raw, &initialized) != nil || !initialized {
		return
	}
	s.initialized = true

	if raw, ok, err := s.kv.Get(ctx, keyMeta); err != nil {
		log.Error().Err(err).Str("room", s.code).Msg("failed to read room settings")
	} else if ok {
		var m meta
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Warn().Err(err).Str("room", s.code).Msg("ignoring corrupt room settings")
		} else {
			s.applyMeta(m)
		}
	}

	if raw, ok, err := s.kv.Get(ctx, keyPlayers); err != nil {
		log.Error().Err(err).Str("room", s.code).Msg("failed to read roster")
	} else if ok {
		var players []model.Player
		if err := json.Unmarshal(raw, &players); err != nil {
			log.Warn().Err(err).Str("room", s.code).Msg("ignoring corrupt roster")
		} else {
			s.state.Players = protocol.ArrayToMap(players)
		}
	}

	log.Info().
		Str("room", s.code).
		Int("players", len(s.state.Players)).
		Bool("started", s.state.Started).
		Msg("room state recovered")
}

func (s *Session) applyMeta(m meta) {
	s.state.HostID = m.Host
	if m.Mode != "" {
		s.state.Mode = m.Mode
	}
	if m.TimeLimit > 0 {
		s.state.TimeLimitSeconds = m.TimeLimit
	}
	s.state.WordList = m.WordList
	s.state.Started = m.Started
	s.state.StartedAt = m.StartedAt
	s.state.FinishedAt = m.FinishedAt
}

func (s *Session) clear(ctx context.Context) {
	if err := s.kv.DeleteAll(ctx); err != nil {
		log.Error().Err(err).Str("room", s.code).Msg("failed to delete room state")
		return
	}
	log.Info().Str("room", s.code).Msg("room closed")
}

// put writes one key. In-memory state stays authoritative when storage
// fails, so the error is logged rather than returned.
func (s *Session) put(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err == nil {
		err = s.kv.Put(ctx, key, raw)
	}
	if err != nil {
		log.Error().Err(err).Str("room", s.code).Str("key", key).Msg("failed to persist room state")
	}
}

func (s *Session) persistPlayers(ctx context.Context) {
	s.put(ctx, keyPlayers, protocol.PlayersToArray(s.state.Players))
}

func (s *Session) persistMeta(ctx context.Context) {
	s.put(ctx, keyMeta, meta{
		Host:       s.state.HostID,
		Mode:       s.state.Mode,
		TimeLimit:  s.state.TimeLimitSeconds,
		WordList:   s.state.WordList,
		Started:    s.state.Started,
		StartedAt:  s.state.StartedAt,
		FinishedAt: s.state.FinishedAt,
	})
}

func (s *Session) send(connID string, t protocol.Type, data any) {
	frame, err := protocol.Encode(t, "", data)
	if err != nil {
		log.Error().Err(err).Str("room", s.code).Msg("failed to encode reply")
		return
	}
	s.out.Send(connID, frame)
}

func (s *Session) broadcast(t protocol.Type, data any) {
	frame, err := protocol.Encode(t, "", data)
	if err != nil {
		log.Error().Err(err).Str("room", s.code).Msg("failed to encode broadcast")
		return
	}
	for _, connID := range s.connections() {
		s.out.Send(connID, frame)
	}
}

func (s *Session) broadcastPlayers() {
	s.broadcast(protocol.TypePlayersUpdate, protocol.PlayersData{
		Players: protocol.PlayersToArray(s.state.Players),
		Host:    s.state.HostID,
	})
}

func (s *Session) system(format string, args ...any) {
	s.broadcast(protocol.TypeSystem, protocol.SystemData{Text: fmt.Sprintf(format, args...)})
}
