// Package typing implements the per-user typing test: word progression,
// keystroke accounting, the countdown and scoring.
package typing

import (
	"unicode"
	"unicode/utf8"

	"github.com/verte-zerg/tuirace/internal/generator"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/scoring"
	"github.com/verte-zerg/tuirace/internal/wordlist"
)

// Special key names accepted by HandleKey. Any other single printable character is typed.
const (
	KeySpace     = " "
	KeyBackspace = "Backspace"
)

// maxOverflow bounds how far past the target word the buffer may grow.
const maxOverflow = 20

// State is the coarse lifecycle of a session.
type State int

const (
	Idle State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return "idle"
	}
}

// Session is the typing state machine. It is not safe for concurrent use;
// Driver serializes access to it.
type Session struct {
	prefs    model.Preferences
	supplier wordlist.Supplier
	gen      *generator.Generator

	words      []string
	current    []rune
	typed      []rune
	history    []string
	stats      model.KeystrokeStats
	remaining  int
	started    bool
	finished   bool
	results    *model.Results
	fixedWords bool
}

// NewSession builds a session that fetches its words from supplier on Init.
func NewSession(prefs model.Preferences, supplier wordlist.Supplier, gen *generator.Generator) *Session {
	if gen == nil {
		gen = generator.New()
	}
	return &Session{prefs: prefs, supplier: supplier, gen: gen}
}

// NewFixedSession builds a session over a word list chosen elsewhere, such as a
// race word list shared by a room. The list is used in the given order and kept on restart.
func NewFixedSession(prefs model.Preferences, words []string) *Session {
	s := &Session{prefs: prefs, fixedWords: true}
	s.words = append([]string(nil), words...)
	return s
}

// Init loads the word list if none is assigned yet and arms the countdown.
// A supplier failure leaves the list empty; Startable reports the outcome.
func (s *Session) Init() {
	if len(s.words) == 0 {
		s.reloadWords()
	}
	s.current = []rune(s.wordAt(0))
	s.remaining = s.prefs.TimeLimitSeconds
}

// Startable reports whether the session has words to type.
func (s *Session) Startable() bool {
	return len(s.words) > 0
}

// State returns the lifecycle state.
func (s *Session) State() State {
	switch {
	case s.finished:
		return Finished
	case s.started:
		return Running
	default:
		return Idle
	}
}

// Start moves an idle session to Running. It reports whether the transition happened.
func (s *Session) Start() bool {
	if s.started || s.finished || len(s.words) == 0 {
		return false
	}
	s.started = true
	return true
}

// HandleKey dispatches one key press. It reports whether the key was accepted;
// keys are ignored once the session is finished, when there is nothing to type,
// and when they are neither Backspace nor a single printable character.
func (s *Session) HandleKey(key string, ctrl bool) bool {
	if s.finished || len(s.words) == 0 {
		return false
	}
	printable := isPrintableRune(key)
	if !printable && key != KeyBackspace {
		return false
	}
	if !s.started && printable {
		s.Start()
	}

	switch {
	case key == KeySpace:
		if len(s.typed) > 0 {
			s.commitWord()
		}
	case key == KeyBackspace && ctrl:
		s.typed = s.typed[:0]
	case key == KeyBackspace:
		s.removeChar()
	default:
		r, _ := utf8.DecodeRuneInString(key)
		s.setChar(r)
	}
	return true
}

func isPrintableRune(key string) bool {
	if utf8.RuneCountInString(key) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(key)
	return r != utf8.RuneError && unicode.IsPrint(r)
}

// Tick advances the countdown by one second while running. It reports whether
// this tick finished the session.
func (s *Session) Tick() bool {
	if !s.started || s.finished {
		return false
	}
	s.remaining--
	if s.remaining <= 0 {
		s.remaining = 0
		s.finish()
		return true
	}
	return false
}

// Restart returns the session to Idle. A finished run gets a fresh word list.
func (s *Session) Restart() {
	if s.finished && !s.fixedWords {
		s.words = nil
		s.reloadWords()
	}
	s.typed = nil
	s.history = nil
	s.current = []rune(s.wordAt(0))
	s.remaining = s.prefs.TimeLimitSeconds
	s.started = false
	s.finished = false
	s.stats = model.KeystrokeStats{}
	s.results = nil
}

// Stats returns the keystroke counters.
func (s *Session) Stats() model.KeystrokeStats {
	return s.stats
}

// Results returns the scored results, nil until finished.
func (s *Session) Results() *model.Results {
	if s.results == nil {
		return nil
	}
	res := *s.results
	return &res
}

// Elapsed returns the whole seconds consumed from the countdown.
func (s *Session) Elapsed() int {
	return s.prefs.TimeLimitSeconds - s.remaining
}

// LiveWPM scores the counters against the time elapsed so far.
func (s *Session) LiveWPM() int {
	return scoring.WPM(s.stats.Correct, s.Elapsed())
}

// Snapshot copies the observable state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Preferences:    s.prefs,
		WordList:       s.words,
		CursorIndex:    len(s.history),
		CurrentWord:    string(s.current),
		TypedWord:      string(s.typed),
		TypedHistory:   append([]string(nil), s.history...),
		TimerRemaining: s.remaining,
		State:          s.State(),
		Stats:          s.stats,
		Results:        s.Results(),
	}
}

func (s *Session) setChar(r rune) {
	if len(s.typed) >= len(s.current)+maxOverflow {
		return
	}
	pos := len(s.typed)
	if pos < len(s.current) && s.current[pos] == r {
		s.stats.Correct++
	} else {
		s.stats.Incorrect++
	}
	s.typed = append(s.typed, r)
}

func (s *Session) removeChar() {
	if len(s.typed) > 0 {
		s.typed = s.typed[:len(s.typed)-1]
		return
	}
	if len(s.history) == 0 {
		return
	}
	last := len(s.history) - 1
	previous := []rune(s.history[last])
	s.history = s.history[:last]

	actual := []rune(s.wordAt(last))
	for i, r := range previous {
		if i < len(actual) && actual[i] == r {
			s.stats.Correct--
		} else {
			s.stats.Incorrect--
		}
	}
	s.typed = previous
	s.current = actual
}

func (s *Session) commitWord() {
	s.history = append(s.history, string(s.typed))
	s.typed = nil
	next := len(s.history)
	if next < len(s.words) {
		s.current = []rune(s.words[next])
		return
	}
	s.finish()
}

func (s *Session) finish() {
	if s.finished {
		return
	}
	s.finished = true
	// An exhausted word list can finish before the first tick.
	elapsed := s.Elapsed()
	if s.prefs.TimeLimitSeconds > 0 && elapsed < 1 {
		elapsed = 1
	}
	res := scoring.Compute(s.stats, elapsed)
	s.results = &res
}

func (s *Session) reloadWords() {
	if s.supplier == nil {
		return
	}
	loaded := s.supplier.Load(s.prefs.Mode)
	if len(loaded) == 0 {
		s.words = nil
		return
	}
	s.words = wordlist.Prepare(s.prefs.Mode, loaded, s.gen)
}

func (s *Session) wordAt(i int) string {
	if i < 0 || i >= len(s.words) {
		return ""
	}
	return s.words[i]
}
