package scoring

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/verte-zerg/tuirace/internal/model"
)

var (
	winnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
)

// FinalWPM returns the player's scored WPM, falling back to the live value.
func FinalWPM(p model.Player) float64 {
	if p.Results != nil {
		return float64(p.Results.WPM)
	}
	return p.WPM
}

// FinalAccuracy returns the player's scored accuracy, falling back to the live value.
func FinalAccuracy(p model.Player) float64 {
	if p.Results != nil {
		return float64(p.Results.Accuracy)
	}
	return p.Accuracy
}

// Rank orders players by WPM, then accuracy, then id. The input is not modified.
func Rank(players []model.Player) []model.Player {
	out := make([]model.Player, len(players))
	copy(out, players)
	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := FinalWPM(out[i]), FinalWPM(out[j])
		if wi != wj {
			return wi > wj
		}
		ai, aj := FinalAccuracy(out[i]), FinalAccuracy(out[j])
		if ai != aj {
			return ai > aj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// LeaderboardLines formats ranked players as aligned table lines.
func LeaderboardLines(players []model.Player) []string {
	ranked := Rank(players)
	headers := []string{"#", "Player", "WPM", "Accuracy", "Words"}
	rows := make([][]string, 0, len(ranked))
	for i, p := range ranked {
		name := p.Username
		if name == "" {
			name = p.ID
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			name,
			fmt.Sprintf("%.0f", FinalWPM(p)),
			fmt.Sprintf("%.0f%%", FinalAccuracy(p)),
			fmt.Sprintf("%d", p.Progress),
		})
	}
	return formatTable(headers, rows, map[int]bool{0: true, 2: true, 3: true, 4: true})
}

// RenderLeaderboard writes the final standings. The winner row is highlighted when useColor is set.
func RenderLeaderboard(w io.Writer, players []model.Player, useColor bool) error {
	if len(players) == 0 {
		_, err := fmt.Fprintln(w, "No players finished.")
		return err
	}
	lines := LeaderboardLines(players)
	for i, line := range lines {
		if useColor {
			switch i {
			case 0:
				line = mutedStyle.Render(line)
			case 1:
				line = winnerStyle.Render(line)
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// UseColor reports whether w is a terminal that should receive styled output.
func UseColor(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
