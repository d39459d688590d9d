// Package protocol defines the JSON messages exchanged between race clients
// and a room.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/verte-zerg/tuirace/internal/model"
)

// Type names a message.
type Type string

// Client to room.
const (
	TypeCreate   Type = "create"
	TypeJoin     Type = "join"
	TypeLeave    Type = "leave"
	TypeReady    Type = "ready"
	TypeUnready  Type = "unready"
	TypeStart    Type = "start"
	TypeProgress Type = "progress"
	TypeFinish   Type = "finish"
	TypeSync     Type = "sync"
	TypeMessage  Type = "message"
)

// Room to client. TypeMessage and TypeSync are used in both directions.
const (
	TypeConnected     Type = "connected"
	TypeRoomCreated   Type = "room-created"
	TypePlayersUpdate Type = "players-update"
	TypeRaceStart     Type = "race-start"
	TypeRaceFinished  Type = "race-finished"
	TypeSystem        Type = "system"
	TypeError         Type = "error"
)

var (
	// ErrMalformed reports a frame that is not a JSON envelope.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType reports an envelope whose type the receiver does not handle.
	ErrUnknownType = errors.New("unknown message type")
)

var inbound = map[Type]bool{
	TypeCreate: true, TypeJoin: true, TypeLeave: true, TypeReady: true, TypeUnready: true,
	TypeStart: true, TypeProgress: true, TypeFinish: true, TypeSync: true, TypeMessage: true,
}

var outbound = map[Type]bool{
	TypeConnected: true, TypeRoomCreated: true, TypePlayersUpdate: true, TypeRaceStart: true,
	TypeRaceFinished: true, TypeSystem: true, TypeError: true, TypeMessage: true, TypeSync: true,
}

// Envelope is the frame every message travels in.
type Envelope struct {
	Type     Type            `json:"type"`
	PlayerID string          `json:"playerId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// CreateData configures a new room.
type CreateData struct {
	Mode      string `json:"mode,omitempty"`
	TimeLimit int    `json:"timeLimit,omitempty"`
}

// JoinData names the joining player.
type JoinData struct {
	Username string `json:"username"`
}

// ProgressData is a live progress report.
type ProgressData struct {
	Progress int     `json:"progress"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
}

// FinishData carries a player's final results.
type FinishData struct {
	Results model.Results `json:"results"`
}

// ChatData is a chat line. From and Username are filled in by the room.
type ChatData struct {
	From     string `json:"from,omitempty"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
}

// SystemData is a room notice.
type SystemData struct {
	Text string `json:"text"`
}

// ErrorData is a rejection sent to one connection.
type ErrorData struct {
	Message string `json:"message"`
}

// ConnectedData greets a new connection.
type ConnectedData struct {
	ID         string `json:"id"`
	RoomExists bool   `json:"roomExists"`
}

// RoomCreatedData acknowledges a create.
type RoomCreatedData struct {
	RoomCode string `json:"roomCode"`
}

// PlayersData is the roster broadcast.
type PlayersData struct {
	Players []model.Player `json:"players"`
	Host    string         `json:"host,omitempty"`
}

// RaceStartData tells every client to begin typing.
type RaceStartData struct {
	WordList  []string `json:"wordList"`
	TimeLimit int      `json:"timeLimit"`
	StartedAt int64    `json:"startedAt"`
}

// RaceFinishedData carries the ranked final roster.
type RaceFinishedData struct {
	Players    []model.Player `json:"players"`
	FinishedAt int64          `json:"finishedAt"`
}

// SyncData is the reply to a sync request.
type SyncData struct {
	Room RoomView `json:"room"`
}

// RoomView is the wire form of a room: the player map travels as an array.
type RoomView struct {
	Code       string         `json:"code"`
	Host       string         `json:"host"`
	Players    []model.Player `json:"players"`
	Mode       model.Mode     `json:"mode"`
	TimeLimit  int            `json:"timeLimit"`
	WordList   []string       `json:"wordList"`
	Started    bool           `json:"started"`
	StartedAt  int64          `json:"startedAt,omitempty"`
	FinishedAt int64          `json:"finishedAt,omitempty"`
}

// Decode parses a frame. Unknown types are returned with ErrUnknownType so
// the caller can log them.
func Decode(raw []byte, accept func(Type) bool) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if accept != nil && !accept(env.Type) {
		return env, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return env, nil
}

// Inbound reports whether a room handles t.
func Inbound(t Type) bool {
	return inbound[t]
}

// Outbound reports whether a client handles t.
func Outbound(t Type) bool {
	return outbound[t]
}

// Encode wraps data in an envelope. A nil data produces an envelope without a data field.
func Encode(t Type, playerID string, data any) ([]byte, error) {
	env := Envelope{Type: t, PlayerID: playerID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// DecodeData unmarshals the envelope payload into T. A missing payload yields the zero value.
func DecodeData[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("%w: %s data: %v", ErrMalformed, env.Type, err)
	}
	return out, nil
}

// PlayersToArray projects the roster map to its wire array, ordered by join
// time then id so every client sees the same order.
func PlayersToArray(players map[string]*model.Player) []model.Player {
	out := make([]model.Player, 0, len(players))
	for _, p := range players {
		if p == nil {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ArrayToMap rebuilds the roster map keyed by id. Later duplicates replace earlier ones.
func ArrayToMap(players []model.Player) map[string]*model.Player {
	out := make(map[string]*model.Player, len(players))
	for i := range players {
		p := players[i]
		if p.ID == "" {
			continue
		}
		out[p.ID] = &p
	}
	return out
}

// ViewOf projects a room to its wire form.
func ViewOf(room *model.RoomState) RoomView {
	return RoomView{
		Code:       room.Code,
		Host:       room.HostID,
		Players:    PlayersToArray(room.Players),
		Mode:       room.Mode,
		TimeLimit:  room.TimeLimitSeconds,
		WordList:   room.WordList,
		Started:    room.Started,
		StartedAt:  room.StartedAt,
		FinishedAt: room.FinishedAt,
	}
}

// State rebuilds the room entity from its wire form.
func (v RoomView) State() *model.RoomState {
	return &model.RoomState{
		Code:             v.Code,
		HostID:           v.Host,
		Players:          ArrayToMap(v.Players),
		Mode:             v.Mode,
		TimeLimitSeconds: v.TimeLimit,
		WordList:         v.WordList,
		Started:          v.Started,
		StartedAt:        v.StartedAt,
		FinishedAt:       v.FinishedAt,
	}
}
