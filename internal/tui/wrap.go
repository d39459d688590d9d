// Package tui provides the Bubble Tea typing interface.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tuirace/internal/typing"
)

// lookahead bounds how many words past the cursor are laid out.
const lookahead = 80

type styledRune struct {
	s       string
	width   int
	isSpace bool
	caret   bool
}

func buildStyledRunes(snap typing.Snapshot) []styledRune {
	last := snap.CursorIndex + lookahead
	if last > len(snap.WordList) {
		last = len(snap.WordList)
	}
	out := make([]styledRune, 0, last*6)
	for i := 0; i < last; i++ {
		if i > 0 {
			out = append(out, styledRune{s: " ", width: 1, isSpace: true})
		}
		out = appendWord(out, snap, i)
	}
	return out
}

func appendWord(out []styledRune, snap typing.Snapshot, i int) []styledRune {
	view := snap.ViewWord(i)
	caretAt := -1
	if view.Active && !snap.Finished() {
		caretAt = len([]rune(snap.TypedWord))
	}
	for j, r := range view.Target {
		style := pendingStyle
		switch view.States[j] {
		case typing.CharRight:
			style = correctStyle
		case typing.CharWrong:
			style = incorrectStyle
		default:
			if view.Active {
				style = currentWordStyle
			}
		}
		if !view.Active && view.Wrong {
			style = style.Underline(true)
		}
		out = append(out, newStyledRune(r, style, j == caretAt, snap.CaretBlink))
	}
	for k, r := range view.Extra {
		out = append(out, newStyledRune(r, extraStyle, len(view.Target)+k == caretAt, snap.CaretBlink))
	}
	if caretAt >= len(view.Target)+len(view.Extra) {
		// Caret after the last typed character sits on a blank cell.
		out = append(out, newStyledRune(' ', pendingStyle, true, snap.CaretBlink))
	}
	return out
}

func newStyledRune(r rune, style lipgloss.Style, caret, blink bool) styledRune {
	if caret {
		if blink {
			style = style.Underline(true)
		} else {
			style = style.Reverse(true)
		}
	}
	return styledRune{
		s:     style.Render(string(r)),
		width: runewidth.RuneWidth(r),
		caret: caret,
	}
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledRunes breaks runes into lines no wider than width, preferring
// spaces as break points. It also returns the index of the line holding the caret.
func wrapStyledRunes(runes []styledRune, width int) ([]string, int) {
	if width <= 0 {
		return []string{renderStyledRunes(runes)}, 0
	}
	var lines []string
	caretLine := 0
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpaceIdx := -1

	flush := func(part []styledRune) {
		for _, item := range part {
			if item.caret {
				caretLine = len(lines)
			}
		}
		lines = append(lines, renderStyledRunes(part))
	}

	for i := 0; i < len(runes); {
		item := runes[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if lastSpaceIdx >= 0 {
				flush(line[:lastSpaceIdx])
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				flush(line)
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	flush(line)
	return lines, caretLine
}

// visibleLines keeps n lines starting one line above the caret.
func visibleLines(lines []string, caretLine, n int) []string {
	if n <= 0 || len(lines) <= n {
		return lines
	}
	start := caretLine - 1
	if start < 0 {
		start = 0
	}
	if start+n > len(lines) {
		start = len(lines) - n
	}
	return lines[start : start+n]
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
