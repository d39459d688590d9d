// Package race bridges a local typing session to a room over a transport.
package race

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/tuirace/internal/client"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/protocol"
	"github.com/verte-zerg/tuirace/internal/scoring"
	"github.com/verte-zerg/tuirace/internal/typing"
)

// Transport carries strings to the room.
type Transport interface {
	Send(msg string) error
	Connected() bool
}

// Updates produced by HandleInbound.
type (
	// Connected greets a new connection.
	Connected struct {
		ID         string
		RoomExists bool
	}
	// RoomCreated acknowledges Create.
	RoomCreated struct{ Code string }
	// Roster is the current player list.
	Roster struct {
		Players []model.Player
		Host    string
	}
	// RaceStarted carries the shared word list.
	RaceStarted struct {
		WordList  []string
		TimeLimit int
		StartedAt int64
	}
	// RaceFinished carries the ranked final roster.
	RaceFinished struct {
		Players    []model.Player
		FinishedAt int64
	}
	// Chat is a player message.
	Chat struct {
		From     string
		Username string
		Text     string
	}
	// Notice is a room announcement.
	Notice struct{ Text string }
	// Failure is a rejected request.
	Failure struct{ Message string }
	// Synced is a full room snapshot.
	Synced struct{ Room *model.RoomState }
)

// Adapter translates between a local session and the room protocol. It is
// not safe for concurrent use; call it from the goroutine that owns the view.
type Adapter struct {
	transport Transport
	playerID  string

	username string
	mode     model.Mode
	hostID   string
	players  []model.Player

	started      bool
	finished     bool
	lastCursor   int
	finishSent   bool
	finalResults *model.Results
}

// NewAdapter returns an adapter sending as playerID.
func NewAdapter(transport Transport, playerID string) *Adapter {
	return &Adapter{transport: transport, playerID: playerID, mode: model.ModeWords}
}

// PlayerID returns the id the adapter sends as.
func (a *Adapter) PlayerID() string {
	return a.playerID
}

// Players returns the last roster received.
func (a *Adapter) Players() []model.Player {
	return a.players
}

// HostID returns the current host.
func (a *Adapter) HostID() string {
	return a.hostID
}

// IsHost reports whether the local player is the host.
func (a *Adapter) IsHost() bool {
	return a.hostID != "" && a.hostID == a.playerID
}

// Mode returns the room mode last seen.
func (a *Adapter) Mode() model.Mode {
	return a.mode
}

// Racing reports whether a race is running and the local player has not finished it.
func (a *Adapter) Racing() bool {
	return a.started && !a.finished && !a.finishSent
}

// Create asks the room to initialise itself.
func (a *Adapter) Create(mode model.Mode, timeLimit int) error {
	if mode != "" {
		a.mode = mode
	}
	return a.send(protocol.TypeCreate, protocol.CreateData{Mode: string(mode), TimeLimit: timeLimit})
}

// Join enters the room as username.
func (a *Adapter) Join(username string) error {
	a.username = username
	return a.send(protocol.TypeJoin, protocol.JoinData{Username: username})
}

// Leave removes the local player without closing the connection.
func (a *Adapter) Leave() error {
	return a.send(protocol.TypeLeave, nil)
}

// Ready toggles the ready flag.
func (a *Adapter) Ready(ready bool) error {
	if ready {
		return a.send(protocol.TypeReady, nil)
	}
	return a.send(protocol.TypeUnready, nil)
}

// Start asks the room to start the race. Only the host may.
func (a *Adapter) Start() error {
	return a.send(protocol.TypeStart, nil)
}

// Sync requests a full room snapshot.
func (a *Adapter) Sync() error {
	return a.send(protocol.TypeSync, nil)
}

// Say sends a chat line.
func (a *Adapter) Say(text string) error {
	return a.send(protocol.TypeMessage, protocol.ChatData{Text: text})
}

// Rejoin restores the local player after a reconnect: it joins again, asks for
// a snapshot and resends a finish the room may have missed.
func (a *Adapter) Rejoin() error {
	if a.username == "" {
		return nil
	}
	if err := a.Join(a.username); err != nil {
		return err
	}
	if err := a.Sync(); err != nil {
		return err
	}
	if a.finished && !a.finishSent && a.finalResults != nil {
		return a.sendFinish(*a.finalResults)
	}
	return nil
}

// Observe reports local progress. A changed cursor sends progress; the
// finished state sends the results once. Transport failures are logged and
// otherwise ignored.
func (a *Adapter) Observe(snap typing.Snapshot) {
	if !a.started || a.finishSent {
		return
	}
	if snap.Finished() && snap.Results != nil {
		a.finished = true
		res := *snap.Results
		a.finalResults = &res
		if err := a.sendFinish(res); err != nil {
			log.Warn().Err(err).Msg("could not report race results")
		}
		return
	}
	if snap.CursorIndex == a.lastCursor {
		return
	}
	elapsed := snap.Preferences.TimeLimitSeconds - snap.TimerRemaining
	data := protocol.ProgressData{
		Progress: snap.CursorIndex,
		WPM:      float64(scoring.WPM(snap.Stats.Correct, elapsed)),
		Accuracy: float64(scoring.Accuracy(snap.Stats.Correct, snap.Stats.Incorrect)),
	}
	if err := a.send(protocol.TypeProgress, data); err != nil {
		log.Warn().Err(err).Int("progress", snap.CursorIndex).Msg("could not report progress")
		return
	}
	a.lastCursor = snap.CursorIndex
}

func (a *Adapter) sendFinish(res model.Results) error {
	if err := a.send(protocol.TypeFinish, protocol.FinishData{Results: res}); err != nil {
		return err
	}
	a.finishSent = true
	return nil
}

// HandleInbound decodes one frame from the room and applies it to the local
// view of the room. Malformed and unknown frames return an error wrapping
// protocol.ErrMalformed or protocol.ErrUnknownType.
func (a *Adapter) HandleInbound(raw string) (any, error) {
	env, err := protocol.Decode([]byte(raw), protocol.Outbound)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case protocol.TypeConnected:
		data, err := protocol.DecodeData[protocol.ConnectedData](env)
		if err != nil {
			return nil, err
		}
		return Connected{ID: data.ID, RoomExists: data.RoomExists}, nil
	case protocol.TypeRoomCreated:
		data, err := protocol.DecodeData[protocol.RoomCreatedData](env)
		if err != nil {
			return nil, err
		}
		return RoomCreated{Code: data.RoomCode}, nil
	case protocol.TypePlayersUpdate:
		data, err := protocol.DecodeData[protocol.PlayersData](env)
		if err != nil {
			return nil, err
		}
		a.players = data.Players
		a.hostID = data.Host
		return Roster{Players: data.Players, Host: data.Host}, nil
	case protocol.TypeRaceStart:
		data, err := protocol.DecodeData[protocol.RaceStartData](env)
		if err != nil {
			return nil, err
		}
		a.resetRace()
		a.started = true
		return RaceStarted{WordList: data.WordList, TimeLimit: data.TimeLimit, StartedAt: data.StartedAt}, nil
	case protocol.TypeRaceFinished:
		data, err := protocol.DecodeData[protocol.RaceFinishedData](env)
		if err != nil {
			return nil, err
		}
		a.players = data.Players
		return RaceFinished{Players: data.Players, FinishedAt: data.FinishedAt}, nil
	case protocol.TypeMessage:
		data, err := protocol.DecodeData[protocol.ChatData](env)
		if err != nil {
			return nil, err
		}
		return Chat{From: data.From, Username: data.Username, Text: data.Text}, nil
	case protocol.TypeSystem:
		data, err := protocol.DecodeData[protocol.SystemData](env)
		if err != nil {
			return nil, err
		}
		return Notice{Text: data.Text}, nil
	case protocol.TypeError:
		data, err := protocol.DecodeData[protocol.ErrorData](env)
		if err != nil {
			return nil, err
		}
		return Failure{Message: data.Message}, nil
	case protocol.TypeSync:
		data, err := protocol.DecodeData[protocol.SyncData](env)
		if err != nil {
			return nil, err
		}
		room := data.Room.State()
		a.players = data.Room.Players
		a.hostID = room.HostID
		a.mode = room.Mode
		return Synced{Room: room}, nil
	}
	return nil, fmt.Errorf("%w: %q", protocol.ErrUnknownType, env.Type)
}

// IsProtocolError reports whether err came from a frame the adapter could not use.
func IsProtocolError(err error) bool {
	return errors.Is(err, protocol.ErrMalformed) || errors.Is(err, protocol.ErrUnknownType)
}

func (a *Adapter) resetRace() {
	a.started = false
	a.finished = false
	a.finishSent = false
	a.finalResults = nil
	a.lastCursor = 0
}

func (a *Adapter) send(t protocol.Type, data any) error {
	if a.transport == nil || !a.transport.Connected() {
		return fmt.Errorf("send %s: %w", t, client.ErrNotConnected)
	}
	frame, err := protocol.Encode(t, a.playerID, data)
	if err != nil {
		return err
	}
	return a.transport.Send(string(frame))
}
