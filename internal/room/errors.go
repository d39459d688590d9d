package room

import "errors"

// State errors. Their text is sent verbatim in error replies.
var (
	ErrRoomExists       = errors.New("room already exists")
	ErrRoomNotFound     = errors.New("room does not exist")
	ErrNotHost          = errors.New("only the host can start the race")
	ErrAlreadyStarted   = errors.New("race already started")
	ErrNotStarted       = errors.New("race has not started")
	ErrNotInRoom        = errors.New("join the room first")
	ErrRaceOver         = errors.New("race is over")
	ErrNoWords          = errors.New("word list unavailable")
	ErrUnknownMode      = errors.New("unknown mode")
	ErrUsernameRequired = errors.New("username required")
	ErrPlayerIDInUse    = errors.New("player id is in use by another connection")
)

var (
	// ErrInvalidCode rejects a connection to a malformed room code.
	ErrInvalidCode = errors.New("invalid room code")
	// ErrClosed rejects connections after the hub shut down.
	ErrClosed = errors.New("hub closed")
)
