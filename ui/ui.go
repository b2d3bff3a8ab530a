// Package ui is the live terminal view for a recording session: streaming
// transcript with interim text, a loudness meter, and — once the note
// arrives — statement navigation with source inspection in either inline
// highlight or segmented list mode.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PratikAg001/doc-scribe/link"
	"github.com/PratikAg001/doc-scribe/session"
	"github.com/PratikAg001/doc-scribe/soap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	interimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#25A065"))
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	highlightStyle = lipgloss.NewStyle().Background(lipgloss.Color("#3A5A40")).Foreground(lipgloss.Color("#FFFDF5"))
	citedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	editedStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#FFA500"))
)

type updateMsg struct{}

type statementRef struct {
	section string
	index   int
}

type model struct {
	ctrl     *session.Controller
	viewport viewport.Model
	ready    bool

	showSegments bool
	refs         []statementRef
	selected     int
}

// Run starts the live session view and blocks until the user quits.
func Run(ctrl *session.Controller) error {
	p := tea.NewProgram(
		model{ctrl: ctrl, selected: -1},
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd {
	return waitForUpdate(m.ctrl)
}

func waitForUpdate(ctrl *session.Controller) tea.Cmd {
	return func() tea.Msg {
		<-ctrl.Updates()
		return updateMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.ctrl.Close()
			return m, tea.Quit
		case "s":
			if err := m.ctrl.Stop(); err != nil {
				// surfaced on the next render through the snapshot
				break
			}
		case "r":
			m.ctrl.Reset()
			m.selected = -1
		case "tab":
			m.showSegments = !m.showSegments
		case "j", "down":
			m.moveSelection(1)
		case "k", "up":
			m.moveSelection(-1)
		case "esc":
			m.selected = -1
			m.ctrl.Unhover()
		}
		m.refresh()

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.footerView())
		verticalMarginHeight := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMarginHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMarginHeight
		}
		m.refresh()

	case updateMsg:
		m.refresh()
		m.viewport.GotoBottom()
		cmds = append(cmds, waitForUpdate(m.ctrl))
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) moveSelection(delta int) {
	snap := m.ctrl.Snapshot()
	m.refs = flatten(snap.Note)
	if len(m.refs) == 0 {
		return
	}
	m.selected += delta
	if m.selected < 0 {
		m.selected = 0
	}
	if m.selected >= len(m.refs) {
		m.selected = len(m.refs) - 1
	}
	ref := m.refs[m.selected]
	m.ctrl.Hover(ref.section, ref.index)
}

func flatten(note soap.Note) []statementRef {
	var refs []statementRef
	for _, name := range soap.SectionNames {
		for i := range note.Sections[name] {
			refs = append(refs, statementRef{name, i})
		}
	}
	for name, stmts := range note.Sections {
		if contains(soap.SectionNames, name) {
			continue
		}
		for i := range stmts {
			refs = append(refs, statementRef{name, i})
		}
	}
	return refs
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (m *model) refresh() {
	if m.ready {
		m.viewport.SetContent(m.contentView())
	}
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf(
		"%s\n%s\n%s",
		m.headerView(),
		m.viewport.View(),
		m.footerView(),
	)
}

func (m model) headerView() string {
	snap := m.ctrl.Snapshot()
	title := titleStyle.Render("doc-scribe")
	status := fmt.Sprintf(" %s", snap.State)
	if snap.Mode != "" {
		status += fmt.Sprintf(" · %s", snap.Mode)
	}
	if snap.State == link.Streaming {
		if snap.Speech != "" {
			status += fmt.Sprintf(" · %s", snap.Speech)
		}
		status += fmt.Sprintf(" %s", levelMeter(snap.AudioLevel))
	}
	line := strings.Repeat(
		"─",
		max(0, m.viewport.Width-lipgloss.Width(title)-lipgloss.Width(status)),
	)
	return lipgloss.JoinHorizontal(lipgloss.Center, title, status, line)
}

func (m model) footerView() string {
	info := titleStyle.Render("s stop · tab source view · j/k statements · r reset · q quit")
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(info)))
	return lipgloss.JoinHorizontal(lipgloss.Center, line, info)
}

func levelMeter(level float64) string {
	bars := int(level * 100)
	if bars > 10 {
		bars = 10
	}
	return "[" + strings.Repeat("█", bars) + strings.Repeat(" ", 10-bars) + "]"
}

func (m model) contentView() string {
	snap := m.ctrl.Snapshot()

	var b strings.Builder

	if snap.Err != "" {
		b.WriteString(errStyle.Render("Error: " + snap.Err))
		b.WriteString("\n\n")
	}

	b.WriteString(m.transcriptView(snap))

	if len(snap.Note.Sections) > 0 {
		b.WriteString("\n")
		b.WriteString(m.noteView(snap))
	}

	return b.String()
}

func (m model) transcriptView(snap session.Snapshot) string {
	var b strings.Builder

	switch {
	case m.showSegments && len(snap.Segments) > 0:
		// Segmented list mode: every segment as a numbered row, cited rows
		// of the focused statement marked.
		var refs []int
		if snap.Hovered != nil {
			refs = snap.Hovered.SourceSegments
		}
		for _, row := range soap.SegmentRows(snap.Segments, refs) {
			line := fmt.Sprintf("%2d. %s", row.Ordinal, row.Text)
			if row.Cited {
				line = citedStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}

	case snap.Hovered != nil && snap.Final != "":
		// Inline highlight mode over the flat transcript.
		b.WriteString(soap.Highlight(
			snap.Final,
			snap.Segments,
			snap.Hovered.SourceSegments,
			func(s string) string { return highlightStyle.Render(s) },
		))
		b.WriteString("\n")

	default:
		if snap.Final != "" {
			b.WriteString(snap.Final)
		}
		if snap.Interim != "" {
			if snap.Final != "" {
				b.WriteString(" ")
			}
			b.WriteString(interimStyle.Render(snap.Interim))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (m model) noteView(snap session.Snapshot) string {
	var b strings.Builder
	refs := flatten(snap.Note)

	for i, ref := range refs {
		if i == 0 || refs[i-1].section != ref.section {
			b.WriteString(sectionStyle.Render(strings.ToUpper(ref.section)))
			b.WriteString("\n")
		}

		stmt, _ := snap.Note.Statement(ref.section, ref.index)
		text, _ := m.ctrl.StatementText(ref.section, ref.index)

		line := fmt.Sprintf("  • %s (%.0f%%)", text, stmt.Confidence*100)
		if text != stmt.Statement {
			line = editedStyle.Render(line)
		}
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")

		if i == m.selected && snap.Hovered != nil {
			b.WriteString(interimStyle.Render("    source: " + snap.Hovered.SourceText))
			b.WriteString("\n")
		}
	}

	if snap.ProcessingTime > 0 {
		b.WriteString(fmt.Sprintf("\nprocessed in %.1fs\n", snap.ProcessingTime))
	}
	return b.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
