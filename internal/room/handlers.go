package room

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/protocol"
	"github.com/verte-zerg/tuirace/internal/scoring"
	"github.com/verte-zerg/tuirace/internal/wordlist"
)

const (
	maxUsernameLen = 24
	maxChatLen     = 280
)

func (s *Session) message(ctx context.Context, connID string, raw []byte) {
	env, err := protocol.Decode(raw, protocol.Inbound)
	if err != nil {
		log.Warn().Err(err).Str("room", s.code).Str("conn", connID).Msg("dropping message")
		return
	}
	if _, ok := s.conns[connID]; !ok {
		log.Warn().Str("room", s.code).Str("conn", connID).Msg("message from unknown connection")
		return
	}
	log.Debug().Str("room", s.code).Str("conn", connID).Str("type", string(env.Type)).Msg("message received")

	switch env.Type {
	case protocol.TypeCreate:
		err = s.create(ctx, connID, env)
	case protocol.TypeJoin:
		err = s.join(ctx, connID, env)
	case protocol.TypeLeave:
		err = s.leave(ctx, connID)
	case protocol.TypeReady:
		err = s.setReady(ctx, connID, true)
	case protocol.TypeUnready:
		err = s.setReady(ctx, connID, false)
	case protocol.TypeStart:
		err = s.start(ctx, connID)
	case protocol.TypeProgress:
		err = s.progress(ctx, connID, env)
	case protocol.TypeFinish:
		err = s.finish(ctx, connID, env)
	case protocol.TypeMessage:
		err = s.chat(connID, env)
	case protocol.TypeSync:
		err = s.sync(connID)
	}
	if err == nil {
		return
	}
	if errors.Is(err, protocol.ErrMalformed) {
		log.Warn().Err(err).Str("room", s.code).Str("conn", connID).Msg("dropping message")
		return
	}
	log.Debug().Err(err).Str("room", s.code).Str("conn", connID).Str("type", string(env.Type)).Msg("message rejected")
	s.send(connID, protocol.TypeError, protocol.ErrorData{Message: err.Error()})
}

// playerFor resolves the player id of a connection. A joined connection keeps
// its id; otherwise the envelope id wins over the connection id.
func (s *Session) playerFor(connID string, env protocol.Envelope) string {
	if id := s.conns[connID]; id != "" {
		return id
	}
	if env.PlayerID != "" {
		return env.PlayerID
	}
	return connID
}

func (s *Session) boundElsewhere(id, connID string) bool {
	for other, bound := range s.conns {
		if bound == id && other != connID {
			return true
		}
	}
	return false
}

func (s *Session) joined(connID string) (*model.Player, error) {
	id := s.conns[connID]
	if id == "" {
		return nil, ErrNotInRoom
	}
	p, ok := s.state.Players[id]
	if !ok {
		return nil, ErrNotInRoom
	}
	return p, nil
}

func (s *Session) create(ctx context.Context, connID string, env protocol.Envelope) error {
	if s.initialized {
		return ErrRoomExists
	}
	data, err := protocol.DecodeData[protocol.CreateData](env)
	if err != nil {
		return err
	}
	mode := model.Mode(strings.ToLower(strings.TrimSpace(data.Mode)))
	if mode == "" {
		mode = model.ModeWords
	}
	if s.words == nil || len(s.words.Load(mode)) == 0 {
		return ErrUnknownMode
	}
	limit := data.TimeLimit
	if limit <= 0 {
		limit = model.DefaultTimeLimit
	}

	s.initialized = true
	s.state.Mode = mode
	s.state.TimeLimitSeconds = limit
	s.state.HostID = s.playerFor(connID, env)
	s.creator = connID

	s.put(ctx, keyInitialized, true)
	s.persistPlayers(ctx)
	s.persistMeta(ctx)

	log.Info().Str("room", s.code).Str("mode", string(mode)).Int("time_limit", limit).Msg("room created")
	s.send(connID, protocol.TypeRoomCreated, protocol.RoomCreatedData{RoomCode: s.code})
	return nil
}

func (s *Session) join(ctx context.Context, connID string, env protocol.Envelope) error {
	if !s.initialized {
		return ErrRoomNotFound
	}
	data, err := protocol.DecodeData[protocol.JoinData](env)
	if err != nil {
		return err
	}
	name := truncate(strings.TrimSpace(data.Username), maxUsernameLen)
	if name == "" {
		return ErrUsernameRequired
	}
	id := s.playerFor(connID, env)
	p, exists := s.state.Players[id]
	if !exists && s.state.Started {
		return ErrAlreadyStarted
	}

	// A reconnect under the same name takes the player over from any older
	// connection. A live player is never handed to a different name.
	if exists && p.Username != name && s.boundElsewhere(id, connID) {
		return ErrPlayerIDInUse
	}
	for other, bound := range s.conns {
		if bound == id && other != connID {
			s.conns[other] = ""
		}
	}
	s.conns[connID] = id
	if s.creator == connID {
		s.creator = ""
	}

	now := s.clock.Now().UnixMilli()
	if exists {
		p.Username = name
		p.JoinedAt = now
	} else {
		s.state.Players[id] = &model.Player{ID: id, Username: name, JoinedAt: now}
	}
	hostChanged := false
	if s.state.HostID == "" {
		s.state.HostID = id
		hostChanged = true
	}

	s.persistPlayers(ctx)
	if hostChanged {
		s.persistMeta(ctx)
	}
	s.broadcastPlayers()
	if !exists {
		s.system("%s joined the room", name)
	}
	if hostChanged {
		s.system("%s is now the host", name)
	}
	return nil
}

func (s *Session) leave(ctx context.Context, connID string) error {
	p, err := s.joined(connID)
	if err != nil {
		return err
	}
	s.conns[connID] = ""
	s.removePlayer(ctx, p.ID)
	return nil
}

func (s *Session) disconnect(ctx context.Context, connID string) {
	id, ok := s.conns[connID]
	if !ok {
		return
	}
	delete(s.conns, connID)
	log.Debug().Str("room", s.code).Str("conn", connID).Str("player", id).Msg("connection closed")

	if id != "" {
		if _, ok := s.state.Players[id]; ok {
			s.removePlayer(ctx, id)
		}
		return
	}
	if connID == s.creator {
		// The creator left before joining; hand the room to whoever is here.
		s.creator = ""
		if _, ok := s.state.Players[s.state.HostID]; !ok && s.initialized {
			next := s.promoteHost()
			s.persistMeta(ctx)
			if next != nil {
				s.system("%s is now the host", next.Username)
			}
		}
	}
}

func (s *Session) removePlayer(ctx context.Context, id string) {
	p := s.state.Players[id]
	delete(s.state.Players, id)
	wasHost := s.state.HostID == id
	var next *model.Player
	if wasHost {
		next = s.promoteHost()
	}

	s.persistPlayers(ctx)
	if wasHost {
		s.persistMeta(ctx)
	}
	s.broadcastPlayers()
	s.system("%s left the room", p.Username)
	if next != nil {
		s.system("%s is now the host", next.Username)
	}
	s.checkFinished(ctx)
}

// promoteHost hands the room to the earliest joiner, or to nobody when the
// roster is empty so the next joiner becomes host. It returns the new host.
func (s *Session) promoteHost() *model.Player {
	players := protocol.PlayersToArray(s.state.Players)
	if len(players) == 0 {
		s.state.HostID = ""
		return nil
	}
	next := s.state.Players[players[0].ID]
	s.state.HostID = next.ID
	log.Info().Str("room", s.code).Str("host", next.ID).Msg("host promoted")
	return next
}

func (s *Session) setReady(ctx context.Context, connID string, ready bool) error {
	p, err := s.joined(connID)
	if err != nil {
		return err
	}
	if p.Ready == ready {
		return nil
	}
	p.Ready = ready
	s.persistPlayers(ctx)
	s.broadcastPlayers()
	return nil
}

func (s *Session) start(ctx context.Context, connID string) error {
	p, err := s.joined(connID)
	if err != nil {
		return err
	}
	if p.ID != s.state.HostID {
		return ErrNotHost
	}
	if s.state.Started {
		return ErrAlreadyStarted
	}
	var entries []string
	if s.words != nil {
		entries = s.words.Load(s.state.Mode)
	}
	words := wordlist.Prepare(s.state.Mode, entries, s.gen)
	if len(words) == 0 {
		return ErrNoWords
	}

	s.state.WordList = words
	s.state.Started = true
	s.state.StartedAt = s.clock.Now().UnixMilli()

	s.persistMeta(ctx)
	s.persistPlayers(ctx)

	log.Info().Str("room", s.code).Int("players", len(s.state.Players)).Int("words", len(words)).Msg("race started")
	s.broadcast(protocol.TypeRaceStart, protocol.RaceStartData{
		WordList:  s.state.WordList,
		TimeLimit: s.state.TimeLimitSeconds,
		StartedAt: s.state.StartedAt,
	})
	s.system("race started")
	return nil
}

func (s *Session) raceOpen(connID string) (*model.Player, error) {
	p, err := s.joined(connID)
	if err != nil {
		return nil, err
	}
	if !s.state.Started {
		return nil, ErrNotStarted
	}
	if s.state.FinishedAt != 0 {
		return nil, ErrRaceOver
	}
	return p, nil
}

func (s *Session) progress(ctx context.Context, connID string, env protocol.Envelope) error {
	p, err := s.raceOpen(connID)
	if err != nil {
		return err
	}
	data, err := protocol.DecodeData[protocol.ProgressData](env)
	if err != nil {
		return err
	}
	if p.Finished {
		return nil
	}
	p.Progress = clamp(data.Progress, 0, len(s.state.WordList))
	p.WPM = nonNegative(data.WPM)
	p.Accuracy = nonNegative(data.Accuracy)

	s.persistPlayers(ctx)
	s.broadcastPlayers()
	return nil
}

func (s *Session) finish(ctx context.Context, connID string, env protocol.Envelope) error {
	p, err := s.raceOpen(connID)
	if err != nil {
		return err
	}
	data, err := protocol.DecodeData[protocol.FinishData](env)
	if err != nil {
		return err
	}
	if p.Finished {
		return nil
	}
	res := data.Results
	p.Finished = true
	p.Results = &res
	p.WPM = float64(res.WPM)
	p.Accuracy = float64(res.Accuracy)

	s.persistPlayers(ctx)
	s.broadcastPlayers()
	s.checkFinished(ctx)
	return nil
}

// checkFinished closes the race once every remaining player has finished.
func (s *Session) checkFinished(ctx context.Context) {
	if !s.state.Started || s.state.FinishedAt != 0 || !s.state.AllFinished() {
		return
	}
	s.state.FinishedAt = s.clock.Now().UnixMilli()
	s.persistMeta(ctx)

	ranked := scoring.Rank(protocol.PlayersToArray(s.state.Players))
	log.Info().Str("room", s.code).Int("players", len(ranked)).Msg("race finished")
	s.broadcast(protocol.TypeRaceFinished, protocol.RaceFinishedData{Players: ranked, FinishedAt: s.state.FinishedAt})
	s.system("race finished")
}

func (s *Session) chat(connID string, env protocol.Envelope) error {
	p, err := s.joined(connID)
	if err != nil {
		return err
	}
	data, err := protocol.DecodeData[protocol.ChatData](env)
	if err != nil {
		return err
	}
	text := truncate(strings.TrimSpace(data.Text), maxChatLen)
	if text == "" {
		return nil
	}
	s.broadcast(protocol.TypeMessage, protocol.ChatData{From: p.ID, Username: p.Username, Text: text})
	return nil
}

func (s *Session) sync(connID string) error {
	if !s.initialized {
		return ErrRoomNotFound
	}
	s.send(connID, protocol.TypeSync, protocol.SyncData{Room: protocol.ViewOf(s.state)})
	return nil
}

// connections lists live connection ids in a stable order.
func (s *Session) connections() []string {
	out := make([]string, 0, len(s.conns))
	for id := range s.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
