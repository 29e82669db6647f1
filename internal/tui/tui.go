// Package tui provides a read-only BubbleTea browser over a completed
// scan's CveMatch results: a list pane on the left, and a detail pane
// showing per-hunk scores and diff text for the selected match. It never
// reruns the matching engine — all results are computed before the model
// is constructed.
//
// Layout:
//
//	┌─────────────────────────────────────┐
//	│  cvematch  match browser             │  ← header
//	│  ─────────────────────────────────  │  ← divider
//	│  0.0800  CVE-2020-1  foo.c           │  ← match list
//	│  ...                                │
//	│  ─────────────────────────────────  │  ← divider
//	│  3 match(es)  ↑↓ nav  enter detail … │  ← status bar
//	└─────────────────────────────────────┘
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/u91738/cvematch/internal/ingest"
	"github.com/u91738/cvematch/internal/match"
)

var (
	colorAccent  = lipgloss.Color("#7C6AF7")
	colorDim     = lipgloss.Color("#555555")
	colorMuted   = lipgloss.Color("#888888")
	colorText    = lipgloss.Color("#DDDDDD")
	colorSubdued = lipgloss.Color("#444444")
	colorScore   = lipgloss.Color("#5ECEF5")
	colorGreen   = lipgloss.Color("#5AF078")

	sTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	sAccent  = lipgloss.NewStyle().Foreground(colorAccent)
	sDim     = lipgloss.NewStyle().Foreground(colorDim)
	sMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	sScore   = lipgloss.NewStyle().Foreground(colorScore).Bold(true)
	sPath    = lipgloss.NewStyle().Foreground(colorText)
	sGreen   = lipgloss.NewStyle().Foreground(colorGreen)
	sDivider = lipgloss.NewStyle().Foreground(colorSubdued)
	sSel     = lipgloss.NewStyle().Background(lipgloss.Color("#1E1A3A")).Foreground(colorText)
	sHint    = lipgloss.NewStyle().Foreground(colorDim).Background(lipgloss.Color("#111111"))
)

// Entry pairs a CveMatch with the ingested file it was found in, so the
// detail view can resolve line numbers via f.LineAt.
type Entry struct {
	Match match.CveMatch
	File  *ingest.File
}

type viewMode int

const (
	viewList viewMode = iota
	viewDetail
)

// Model is the BubbleTea application model for browsing a fixed set of
// Entries computed before the TUI starts. The detail pane's hunk/diff text
// can run much longer than one screen, so it scrolls through a
// bubbles/viewport rather than being laid out by hand like the list pane.
type Model struct {
	entries []Entry
	cursor  int
	mode    viewMode
	width   int
	height  int
	detail  viewport.Model
}

// New builds a browser model over entries, sorted by the caller beforehand
// (the engine does not guarantee cross-file match ordering, so callers
// typically sort by score before presenting).
func New(entries []Entry) Model {
	return Model{entries: entries, mode: viewList, detail: viewport.New(0, 0)}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.detail.Width = clamp(m.width, 10, 200)
		m.detail.Height = clamp(m.height-5, 1, 1000)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q", "q":
			return m, tea.Quit
		case "esc":
			if m.mode == viewDetail {
				m.mode = viewList
			}
			return m, nil
		case "up", "ctrl+p", "k":
			if m.mode == viewDetail {
				m.detail.LineUp(1)
				return m, nil
			}
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "ctrl+n", "j":
			if m.mode == viewDetail {
				m.detail.LineDown(1)
				return m, nil
			}
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
			return m, nil
		case "ctrl+u":
			if m.mode == viewDetail {
				m.detail.HalfViewUp()
			}
			return m, nil
		case "ctrl+d":
			if m.mode == viewDetail {
				m.detail.HalfViewDown()
			}
			return m, nil
		case "enter":
			if m.mode == viewList && len(m.entries) > 0 {
				m.mode = viewDetail
				m.detail.SetContent(m.detailBody())
				m.detail.GotoTop()
			}
			return m, nil
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	if m.mode == viewDetail && len(m.entries) > 0 {
		return m.detailView()
	}
	return m.listView()
}

func (m Model) listView() string {
	var b strings.Builder
	w := clamp(m.width, 10, 200)
	divider := sDivider.Render(strings.Repeat("─", w-2))

	fmt.Fprintln(&b, "  "+sTitle.Render("cvematch")+"  "+sMuted.Render("match browser"))
	fmt.Fprintln(&b, "  "+divider)

	if len(m.entries) == 0 {
		fmt.Fprintln(&b, "")
		fmt.Fprintln(&b, sMuted.Render("  no matches found"))
	} else {
		for i, e := range m.entries {
			line := fmt.Sprintf("  %s  %s  %s", sScore.Render(fmt.Sprintf("%.4f", e.Match.ScoreBefore)), sAccent.Render(e.Match.ChangeID), sPath.Render(e.File.Path))
			if i == m.cursor {
				line = sSel.Render(line)
			}
			fmt.Fprintln(&b, line)
		}
	}

	fmt.Fprintln(&b, "  "+divider)
	left := sGreen.Render(fmt.Sprintf("  %d match(es)", len(m.entries)))
	right := sHint.Render("↑↓ nav  enter detail  esc back  q quit  ")
	fmt.Fprint(&b, padBetween(left, right, w))
	return b.String()
}

func (m Model) detailView() string {
	e := m.entries[m.cursor]
	var b strings.Builder
	w := clamp(m.width, 10, 200)
	divider := sDivider.Render(strings.Repeat("─", w-2))

	fmt.Fprintln(&b, "  "+sTitle.Render(e.Match.ChangeID)+"  "+sMuted.Render(e.File.Path))
	fmt.Fprintln(&b, "  "+divider)
	fmt.Fprint(&b, m.detail.View())
	fmt.Fprintln(&b, "\n  "+divider)
	fmt.Fprint(&b, sHint.Render("  ↑↓ scroll  ctrl+u/d half-page  esc back  ctrl+q quit"))
	return b.String()
}

// detailBody renders the selected entry's score summary and per-hunk
// diff text, the content the detail viewport scrolls through.
func (m Model) detailBody() string {
	e := m.entries[m.cursor]
	var b strings.Builder
	fmt.Fprintf(&b, "  score before: %s   score after: %s\n",
		sScore.Render(fmt.Sprintf("%.4f", e.Match.ScoreBefore)),
		sScore.Render(fmt.Sprintf("%.4f", e.Match.ScoreAfter)))
	fmt.Fprintln(&b, "")

	for _, h := range e.Match.Hunks {
		line := e.File.LineAt(e.Match.WindowOffset + h.Start)
		fmt.Fprintf(&b, "  %s:%d  dist_b=%.4f dist_a=%.4f\n", e.File.Path, line, h.DistBefore, h.DistAfter)
		for _, l := range strings.Split(strings.TrimRight(h.Hunk.Src, "\n"), "\n") {
			fmt.Fprintln(&b, "    "+sMuted.Render(l))
		}
		fmt.Fprintln(&b, "")
	}
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func padBetween(left, right string, width int) string {
	lv := visibleLen(left)
	rv := visibleLen(right)
	gap := width - lv - rv - 2
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func visibleLen(s string) int {
	n := 0
	inEsc := false
	for _, c := range s {
		if c == '\x1b' {
			inEsc = true
		}
		if inEsc {
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				inEsc = false
			}
			continue
		}
		n++
	}
	return n
}
