// Package model defines shared data structures.
package model

import "strings"

// Mode selects the word-list supplier content.
type Mode string

const (
	ModeWords     Mode = "words"
	ModeSentences Mode = "sentences"
)

// DefaultTimeLimit is the countdown length in seconds when none is configured.
const DefaultTimeLimit = 30

// ParseMode normalises a mode name. Unknown names are returned as-is with ok=false.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeWords, ModeSentences:
		return m, true
	default:
		return m, false
	}
}

// Preferences defines the settings of a typing session.
type Preferences struct {
	TimeLimitSeconds int
	Mode             Mode
}

// KeystrokeStats counts per-character comparisons.
type KeystrokeStats struct {
	Correct   int
	Incorrect int
}

// Results is the scored outcome of a finished session.
type Results struct {
	WPM            int `json:"wpm"`
	Accuracy       int `json:"accuracy"`
	CorrectChars   int `json:"correctChars"`
	IncorrectChars int `json:"incorrectChars"`
}

// Player is a room-scoped participant.
type Player struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Ready    bool     `json:"ready"`
	Progress int      `json:"progress"`
	WPM      float64  `json:"wpm"`
	Accuracy float64  `json:"accuracy"`
	Finished bool     `json:"finished"`
	Results  *Results `json:"results,omitempty"`
	JoinedAt int64    `json:"joinedAt"`
}

// RoomState is the room entity. Players is keyed by player id; use
// protocol.PlayersToArray for the wire projection.
type RoomState struct {
	Code             string
	HostID           string
	Players          map[string]*Player
	Mode             Mode
	TimeLimitSeconds int
	WordList         []string
	Started          bool
	StartedAt        int64
	FinishedAt       int64
}

// AllFinished reports whether every player in a non-empty roster has finished.
func (r *RoomState) AllFinished() bool {
	if len(r.Players) == 0 {
		return false
	}
	for _, p := range r.Players {
		if !p.Finished {
			return false
		}
	}
	return true
}
