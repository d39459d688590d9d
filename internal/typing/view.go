package typing

import "github.com/verte-zerg/tuirace/internal/model"

// Snapshot is an immutable copy of a session's observable state.
type Snapshot struct {
	Preferences    model.Preferences
	WordList       []string
	CursorIndex    int
	CurrentWord    string
	TypedWord      string
	TypedHistory   []string
	TimerRemaining int
	State          State
	Stats          model.KeystrokeStats
	Results        *model.Results
	CaretBlink     bool
}

// Started reports whether the countdown has begun.
func (s Snapshot) Started() bool {
	return s.State != Idle
}

// Finished reports whether the session reached its terminal state.
func (s Snapshot) Finished() bool {
	return s.State == Finished
}

// CharState classifies one target character for display.
type CharState int

const (
	CharPending CharState = iota
	CharRight
	CharWrong
)

// WordView describes how a word of the list should be drawn.
type WordView struct {
	Target []rune
	States []CharState
	Extra  []rune
	Active bool
	Wrong  bool
}

// ViewWord classifies the characters of word i against what was typed for it.
// Completed words compare against history, the active word against the typing buffer.
func (s Snapshot) ViewWord(i int) WordView {
	var target []rune
	if i >= 0 && i < len(s.WordList) {
		target = []rune(s.WordList[i])
	}
	view := WordView{Target: target, States: make([]CharState, len(target))}

	var typed []rune
	switch {
	case i == s.CursorIndex:
		view.Active = true
		typed = []rune(s.TypedWord)
	case i < s.CursorIndex && i < len(s.TypedHistory):
		typed = []rune(s.TypedHistory[i])
	default:
		return view
	}

	for j := range target {
		switch {
		case j < len(typed) && typed[j] == target[j]:
			view.States[j] = CharRight
		case j < len(typed):
			view.States[j] = CharWrong
		case !view.Active:
			// Skipped characters of a committed word count as wrong.
			view.States[j] = CharWrong
		}
	}
	if len(typed) > len(target) {
		view.Extra = typed[len(target):]
	}

	if view.Active {
		view.Wrong = len(view.Extra) > 0
	} else {
		view.Wrong = string(typed) != string(target)
	}
	return view
}
