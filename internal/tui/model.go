package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/tuirace/internal/scoring"
	"github.com/verte-zerg/tuirace/internal/typing"
)

// textLines is how many wrapped lines of words are shown at once.
const textLines = 3

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	extraStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8071A"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	currentWordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	timerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
)

type snapshotMsg typing.Snapshot

type driverClosedMsg struct{}

func waitSnapshot(ch <-chan typing.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return driverClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

// keyForwarder is the part of typing.Driver the views feed key presses to.
type keyForwarder interface {
	Key(key string, ctrl bool)
}

// forwardKey maps a terminal key press to session keys. It reports whether
// the key was meant for the typing area.
func forwardKey(d keyForwarder, msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyBackspace, tea.KeyCtrlH:
		// Some terminals send ^H for Backspace.
		d.Key(typing.KeyBackspace, msg.Alt)
	case tea.KeyCtrlW:
		d.Key(typing.KeyBackspace, true)
	case tea.KeySpace:
		d.Key(typing.KeySpace, false)
	case tea.KeyRunes:
		if msg.Paste {
			return true
		}
		for _, r := range msg.Runes {
			d.Key(string(r), false)
		}
	default:
		return false
	}
	return true
}

// Model is the solo practice view over a typing.Driver.
type Model struct {
	driver *typing.Driver
	snaps  <-chan typing.Snapshot
	snap   typing.Snapshot
	loaded bool

	width  int
	height int

	lastWPM int
	lastAcc int
	hasLast bool
	best    int
	runs    int
}

// NewModel constructs a practice model. The driver must be running or about to run.
func NewModel(driver *typing.Driver) *Model {
	return &Model{
		driver: driver,
		snaps:  driver.Subscribe(),
		snap:   driver.Snapshot(),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return waitSnapshot(m.snaps)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case snapshotMsg:
		m.applySnapshot(typing.Snapshot(msg))
		return m, waitSnapshot(m.snaps)
	case driverClosedMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			m.driver.Restart()
			return m, nil
		}
		forwardKey(m.driver, msg)
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) applySnapshot(snap typing.Snapshot) {
	justFinished := snap.Finished() && !m.snap.Finished()
	m.snap = snap
	m.loaded = true
	if !justFinished || snap.Results == nil {
		return
	}
	m.lastWPM = snap.Results.WPM
	m.lastAcc = snap.Results.Accuracy
	m.hasLast = true
	m.runs++
	if snap.Results.WPM > m.best {
		m.best = snap.Results.WPM
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if !m.loaded {
		return ""
	}
	if len(m.snap.WordList) == 0 {
		return footerStyle.Render("No words available for this mode. Press Esc to quit.")
	}
	content := renderTypingArea(m.snap, m.width)
	if m.snap.Finished() {
		content = renderResults(m.snap) + "\n\n" + footerStyle.Render("tab: again  esc: quit")
	}
	return placeWithFooter(m.width, m.height, content, m.renderFooter())
}

func (m *Model) renderFooter() string {
	segments := []string{fmt.Sprintf("%s · %d WPM", m.snap.Preferences.Mode, liveWPM(m.snap))}
	if m.hasLast {
		segments = append(segments, fmt.Sprintf("Last %d WPM · %d%%", m.lastWPM, m.lastAcc))
		segments = append(segments, fmt.Sprintf("Best %d WPM over %d runs", m.best, m.runs))
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}

func renderTypingArea(snap typing.Snapshot, width int) string {
	contentWidth := int(float64(width) * 0.70)
	lines, caretLine := wrapStyledRunes(buildStyledRunes(snap), contentWidth)
	lines = visibleLines(lines, caretLine, textLines)
	timer := timerStyle.Render(fmt.Sprintf("%d", snap.TimerRemaining))
	if !snap.Started() {
		timer = footerStyle.Render(fmt.Sprintf("%ds · start typing", snap.TimerRemaining))
	}
	body := strings.Join(lines, "\n")
	if contentWidth > 0 {
		body = lipgloss.NewStyle().Width(contentWidth).Render(body)
	}
	return timer + "\n\n" + body
}

func renderResults(snap typing.Snapshot) string {
	res := snap.Results
	if res == nil {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Center,
		timerStyle.Render(fmt.Sprintf("%d WPM", res.WPM)),
		correctStyle.Render(fmt.Sprintf("%d%% accuracy", res.Accuracy)),
		footerStyle.Render(fmt.Sprintf("%d correct · %d incorrect", res.CorrectChars, res.IncorrectChars)),
	)
}

func liveWPM(snap typing.Snapshot) int {
	if snap.Results != nil {
		return snap.Results.WPM
	}
	return scoring.WPM(snap.Stats.Correct, snap.Preferences.TimeLimitSeconds-snap.TimerRemaining)
}

func placeWithFooter(width, height int, content, footer string) string {
	if width == 0 || height == 0 {
		return content + "\n" + footer
	}
	if footer == "" || height < 3 {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(width, height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}
