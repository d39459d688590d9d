package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/tuirace/internal/client"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/protocol"
	"github.com/verte-zerg/tuirace/internal/race"
	"github.com/verte-zerg/tuirace/internal/scoring"
	"github.com/verte-zerg/tuirace/internal/typing"
)

const (
	feedLines  = 8
	chatLimit  = 280
	rosterRows = 8
	barWidth   = 20
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")).Italic(true)
	offlineText = incorrectStyle.Render("reconnecting")
	onlineText  = correctStyle.Render("online")
)

type racePhase int

const (
	phaseConnecting racePhase = iota
	phaseLobby
	phaseRacing
	phaseResults
)

type clientEventMsg client.Event

type clientClosedMsg struct{}

type raceSnapshotMsg struct {
	gen  int
	snap typing.Snapshot
}

func waitEvent(ch <-chan client.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return clientClosedMsg{}
		}
		return clientEventMsg(ev)
	}
}

func waitRaceSnapshot(ch <-chan typing.Snapshot, gen int) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return driverClosedMsg{}
		}
		return raceSnapshotMsg{gen: gen, snap: snap}
	}
}

// RaceOptions configures a RaceModel.
type RaceOptions struct {
	Code      string
	Username  string
	Mode      model.Mode
	TimeLimit int
	Clock     clockwork.Clock
}

// RaceModel is the multiplayer view: lobby with roster and chat, the race
// itself and the final leaderboard.
type RaceModel struct {
	ctx     context.Context
	opts    RaceOptions
	events  <-chan client.Event
	adapter *race.Adapter

	phase  racePhase
	online bool
	joined bool
	roster table.Model
	chat   textinput.Model
	feed   []string

	driver     *typing.Driver
	stopDriver context.CancelFunc
	snaps      <-chan typing.Snapshot
	snap       typing.Snapshot
	gen        int

	final []model.Player

	width  int
	height int
}

// NewRaceModel builds the race view. events is the transport's event stream
// and adapter sends on the same transport. ctx bounds the race drivers.
func NewRaceModel(ctx context.Context, opts RaceOptions, events <-chan client.Event, adapter *race.Adapter) *RaceModel {
	if opts.TimeLimit <= 0 {
		opts.TimeLimit = model.DefaultTimeLimit
	}
	chat := textinput.New()
	chat.Prompt = "> "
	chat.Placeholder = "say something"
	chat.CharLimit = chatLimit
	chat.Cursor.SetMode(cursor.CursorBlink)
	chat.Focus()

	roster := table.New(
		table.WithColumns(rosterColumns()),
		table.WithHeight(rosterRows),
	)
	roster.SetStyles(rosterTableStyles())

	return &RaceModel{
		ctx:     ctx,
		opts:    opts,
		events:  events,
		adapter: adapter,
		roster:  roster,
		chat:    chat,
	}
}

// Final returns the ranked players of the last finished race, if any.
func (m *RaceModel) Final() []model.Player {
	return m.final
}

// Init implements tea.Model.
func (m *RaceModel) Init() tea.Cmd {
	return tea.Batch(waitEvent(m.events), textinput.Blink)
}

// Update implements tea.Model.
func (m *RaceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.roster.SetWidth(minInt(msg.Width, 60))
		return m, nil
	case clientEventMsg:
		cmd := m.handleEvent(client.Event(msg))
		return m, tea.Batch(cmd, waitEvent(m.events))
	case clientClosedMsg:
		m.haltDriver()
		return m, tea.Quit
	case raceSnapshotMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.snap = msg.snap
		m.adapter.Observe(msg.snap)
		return m, waitRaceSnapshot(m.snaps, m.gen)
	case driverClosedMsg:
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	var cmd tea.Cmd
	m.chat, cmd = m.chat.Update(msg)
	return m, cmd
}

func (m *RaceModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.haltDriver()
		return m, tea.Quit
	}
	switch m.phase {
	case phaseRacing:
		if msg.Type == tea.KeyEsc {
			m.haltDriver()
			return m, tea.Quit
		}
		if m.driver != nil {
			forwardKey(m.driver, msg)
		}
		return m, nil
	case phaseResults:
		// A room runs one race; the results screen is the end of it.
		switch msg.Type {
		case tea.KeyEnter, tea.KeyEsc:
			return m, tea.Quit
		}
		return m, nil
	case phaseConnecting:
		if msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyEnter:
		text := strings.TrimSpace(m.chat.Value())
		if text != "" {
			m.report(m.adapter.Say(text))
		}
		m.chat.Reset()
		return m, nil
	case tea.KeyCtrlR:
		m.report(m.adapter.Ready(!m.selfReady()))
		return m, nil
	case tea.KeyCtrlS:
		m.report(m.adapter.Start())
		return m, nil
	}
	var cmd tea.Cmd
	m.chat, cmd = m.chat.Update(msg)
	return m, cmd
}

func (m *RaceModel) handleEvent(ev client.Event) tea.Cmd {
	switch ev.Kind {
	case client.EventConnected:
		m.online = true
		return nil
	case client.EventDisconnected:
		if m.online {
			m.notice("connection lost, reconnecting")
		}
		m.online = false
		return nil
	}

	upd, err := m.adapter.HandleInbound(ev.Data)
	if err != nil {
		log.Warn().Err(err).Msg("dropping frame from room")
		return nil
	}
	switch u := upd.(type) {
	case race.Connected:
		m.enterRoom(u.RoomExists)
	case race.RoomCreated:
		m.notice(fmt.Sprintf("room %s created", u.Code))
	case race.Roster:
		m.setRoster(u.Players)
	case race.RaceStarted:
		return m.startRace(u)
	case race.RaceFinished:
		m.haltDriver()
		m.final = u.Players
		m.phase = phaseResults
		m.setRoster(u.Players)
	case race.Chat:
		m.push(fmt.Sprintf("%s: %s", displayName(u.Username, u.From), u.Text))
	case race.Notice:
		m.notice(u.Text)
	case race.Failure:
		m.push(incorrectStyle.Render("! " + u.Message))
	case race.Synced:
		m.setRoster(protocol.PlayersToArray(u.Room.Players))
	}
	return nil
}

func (m *RaceModel) enterRoom(exists bool) {
	if m.phase == phaseConnecting {
		m.phase = phaseLobby
	}
	if !exists {
		m.report(m.adapter.Create(m.opts.Mode, m.opts.TimeLimit))
	}
	if m.joined {
		m.report(m.adapter.Rejoin())
		return
	}
	if err := m.adapter.Join(m.opts.Username); err != nil {
		m.report(err)
		return
	}
	m.joined = true
}

func (m *RaceModel) startRace(u race.RaceStarted) tea.Cmd {
	m.haltDriver()
	limit := u.TimeLimit
	if limit <= 0 {
		limit = model.DefaultTimeLimit
	}
	session := typing.NewFixedSession(model.Preferences{TimeLimitSeconds: limit, Mode: m.adapter.Mode()}, u.WordList)
	driver := typing.NewDriver(session, m.opts.Clock)
	ctx, cancel := context.WithCancel(m.ctx)
	go func() {
		if err := driver.Run(ctx); err != nil {
			log.Error().Err(err).Msg("race driver stopped")
		}
	}()
	driver.Start()

	m.gen++
	m.driver = driver
	m.stopDriver = cancel
	m.snaps = driver.Subscribe()
	m.snap = typing.Snapshot{}
	m.final = nil
	m.phase = phaseRacing
	m.chat.Blur()
	return waitRaceSnapshot(m.snaps, m.gen)
}

func (m *RaceModel) haltDriver() {
	if m.stopDriver != nil {
		m.stopDriver()
	}
	m.stopDriver = nil
	m.driver = nil
	m.snaps = nil
	m.gen++
}

func (m *RaceModel) selfReady() bool {
	for _, p := range m.adapter.Players() {
		if p.ID == m.adapter.PlayerID() {
			return p.Ready
		}
	}
	return false
}

func (m *RaceModel) setRoster(players []model.Player) {
	rows := make([]table.Row, 0, len(players))
	for _, p := range players {
		name := displayName(p.Username, p.ID)
		if p.ID == m.adapter.HostID() {
			name += " *"
		}
		if p.ID == m.adapter.PlayerID() {
			name += " (you)"
		}
		ready := ""
		if p.Ready {
			ready = "yes"
		}
		if p.Finished {
			ready = "done"
		}
		rows = append(rows, table.Row{
			name,
			ready,
			fmt.Sprintf("%d", p.Progress),
			fmt.Sprintf("%.0f", scoring.FinalWPM(p)),
			fmt.Sprintf("%.0f%%", scoring.FinalAccuracy(p)),
		})
	}
	m.roster.SetRows(rows)
}

func (m *RaceModel) report(err error) {
	if err == nil {
		return
	}
	log.Warn().Err(err).Msg("race request failed")
	m.push(incorrectStyle.Render("! " + err.Error()))
}

func (m *RaceModel) notice(text string) {
	m.push(noticeStyle.Render("* " + text))
}

func (m *RaceModel) push(line string) {
	m.feed = append(m.feed, line)
	if len(m.feed) > feedLines {
		m.feed = m.feed[len(m.feed)-feedLines:]
	}
}

// View implements tea.Model.
func (m *RaceModel) View() string {
	var body string
	var help string
	switch m.phase {
	case phaseConnecting:
		body = noticeStyle.Render("connecting to room " + m.opts.Code + "...")
		help = "esc: quit"
	case phaseRacing:
		area := renderTypingArea(m.snap, m.width)
		if m.snap.Finished() {
			area = renderResults(m.snap) + "\n\n" + noticeStyle.Render("waiting for the other players")
		}
		body = area + "\n\n" + m.renderProgress()
		help = "esc: quit"
	case phaseResults:
		body = headerStyle.Render("Results") + "\n\n" + strings.Join(scoring.LeaderboardLines(m.final), "\n")
		help = "enter/esc: quit"
	default:
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.roster.View(),
			"",
			strings.Join(m.feed, "\n"),
			m.chat.View(),
		)
		help = "enter: send  ctrl+r: ready  ctrl+s: start (host)  esc: quit"
	}
	content := m.renderHeader() + "\n\n" + body
	return placeWithFooter(m.width, m.height, content, footerStyle.Render(help))
}

func (m *RaceModel) renderHeader() string {
	status := offlineText
	if m.online {
		status = onlineText
	}
	role := ""
	if m.adapter.IsHost() {
		role = " · host"
	}
	return headerStyle.Render(fmt.Sprintf("Room %s", m.opts.Code)) +
		footerStyle.Render(fmt.Sprintf(" · %s%s · ", m.adapter.Mode(), role)) + status
}

func (m *RaceModel) renderProgress() string {
	total := len(m.snap.WordList)
	lines := make([]string, 0, len(m.adapter.Players()))
	for _, p := range m.adapter.Players() {
		lines = append(lines, fmt.Sprintf("%-16s %s %3.0f wpm",
			truncateName(displayName(p.Username, p.ID), 16),
			progressBar(p.Progress, total, barWidth),
			scoring.FinalWPM(p)))
	}
	return strings.Join(lines, "\n")
}

func progressBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return correctStyle.Render(strings.Repeat("█", filled)) + pendingStyle.Render(strings.Repeat("░", width-filled))
}

func displayName(username, id string) string {
	if username != "" {
		return username
	}
	return id
}

func truncateName(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func rosterColumns() []table.Column {
	return []table.Column{
		{Title: "Player", Width: 24},
		{Title: "Ready", Width: 6},
		{Title: "Words", Width: 6},
		{Title: "WPM", Width: 5},
		{Title: "Acc", Width: 5},
	}
}

func rosterTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell
	return styles
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
