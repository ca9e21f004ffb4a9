// Package tui provides a Bubble Tea TUI for browsing shlog sessions.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/shlog/internal/session"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	lockStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabCommands
	tabFailed
	tabSessions
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Commands", "Failed", "Sessions"}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	doc       *session.Document
	filename  string
	sessions  []session.Info
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	newest    bool
	// Commands tab: cursor position and commands whose output is expanded
	cursor   int
	expanded map[int]bool
}

// New creates a TUI model for one decoded session file. sessions, when
// non-nil, fills the Sessions tab.
func New(doc *session.Document, filename string, sessions []session.Info) Model {
	return Model{
		doc:      doc,
		filename: filepath.Base(filename),
		sessions: sessions,
		expanded: make(map[int]bool),
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "s":
			if m.activeTab == tabCommands {
				m.newest = !m.newest
				m.cursor = 0
				m.refresh(tabCommands)
				m.viewports[tabCommands].GotoTop()
				return m, nil
			}
		case "up", "k":
			if m.activeTab == tabCommands && m.cursor > 0 {
				m.cursor--
				m.refresh(tabCommands)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabCommands && m.cursor < len(m.doc.Commands)-1 {
				m.cursor++
				m.refresh(tabCommands)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabCommands && len(m.doc.Commands) > 0 {
				i := m.order()[m.cursor]
				if m.doc.Commands[i].Output != "" {
					if m.expanded[i] {
						delete(m.expanded, i)
					} else {
						m.expanded[i] = true
					}
					m.refresh(tabCommands)
				}
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  shlog  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  q quit"
	if m.activeTab == tabCommands {
		dir := "oldest first"
		if m.newest {
			dir = "newest first"
		}
		hint += "  enter output  s sort (" + dir + ")"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(
		hint + strings.Repeat(" ", pad) + pct,
	)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) refresh(t tabID) {
	m.viewports[t].SetContent(m.renderTab(t))
}

// order returns command indices in display order.
func (m *Model) order() []int {
	n := len(m.doc.Commands)
	idx := make([]int, n)
	for i := range idx {
		if m.newest {
			idx[i] = n - 1 - i
		} else {
			idx[i] = i
		}
	}
	return idx
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabCommands:
		return m.renderCommands()
	case tabFailed:
		return m.renderFailed()
	case tabSessions:
		return m.renderSessions()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func formatEpoch(p *float64) string {
	if p == nil {
		return dimStyle.Render("(active)")
	}
	return session.FromEpoch(*p).Format("2006-01-02 15:04:05 MST")
}

func (m *Model) renderSummary() string {
	d := m.doc
	var sb strings.Builder
	sb.WriteString(heading("Session Summary"))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Session:", d.SessionID)
	row("Started:", formatEpoch(d.Times[0]))
	row("Ended:", formatEpoch(d.Times[1]))
	if d.Times[0] != nil && d.Times[1] != nil {
		row("Duration:", session.FromEpoch(*d.Times[1]).Sub(session.FromEpoch(*d.Times[0])).Round(time.Second).String())
	}
	if d.Locked {
		row("State:", lockStyle.Render("locked (recording)"))
	} else {
		row("State:", "closed")
	}

	failed := 0
	for _, c := range d.Commands {
		if c.Return != 0 {
			failed++
		}
	}
	sb.WriteString(heading("Counts"))
	row("Commands:", fmt.Sprintf("%d", len(d.Commands)))
	row("Failed:", fmt.Sprintf("%d", failed))
	return sb.String()
}

func commandRow(num int, c session.Command) string {
	status := okStyle.Render("✓")
	if c.Return != 0 {
		status = failStyle.Render(fmt.Sprintf("✗ %d", c.Return))
	}
	ts := timeStyle.Render(c.Start().Format("15:04:05"))
	dur := dimStyle.Render(c.End().Sub(c.Start()).Round(time.Millisecond).String())
	return fmt.Sprintf("%s  %s  %s  %s  %s",
		dimStyle.Render(fmt.Sprintf("  %4d", num)), ts, status, firstLine(c.Input), dur)
}

func (m *Model) renderCommands() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Commands (%d)", len(m.doc.Commands))))
	if len(m.doc.Commands) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for pos, i := range m.order() {
		c := m.doc.Commands[i]
		row := commandRow(i, c)
		if pos == m.cursor {
			row = selectedRowStyle.Width(m.width - 2).Render(row)
		}
		sb.WriteString(row + "\n")
		if m.expanded[i] {
			sb.WriteString(renderOutput(c.Output, m.width))
		}
	}
	return sb.String()
}

// renderOutput frames captured command output.
func renderOutput(out string, width int) string {
	var sb strings.Builder
	rule := 4
	if width > 8 {
		rule = width - 4
	}
	border := dimStyle.Render("  " + strings.Repeat("─", rule))
	sb.WriteString(border + "\n")
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		sb.WriteString(dimStyle.Render("  "+line) + "\n")
	}
	sb.WriteString(border + "\n")
	return sb.String()
}

func (m *Model) renderFailed() string {
	var sb strings.Builder
	var rows []string
	for i, c := range m.doc.Commands {
		if c.Return != 0 {
			rows = append(rows, commandRow(i, c))
		}
	}
	sb.WriteString(heading(fmt.Sprintf("Failed Commands (%d)", len(rows))))
	if len(rows) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for _, r := range rows {
		sb.WriteString(r + "\n")
	}
	return sb.String()
}

func (m *Model) renderSessions() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Sessions (%d)", len(m.sessions))))
	if len(m.sessions) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for _, in := range m.sessions {
		state := dimStyle.Render("closed")
		if in.Locked {
			state = lockStyle.Render("locked")
		}
		marker := "  "
		if in.SessionID == m.doc.SessionID {
			marker = okStyle.Render("▶ ")
		}
		sb.WriteString(fmt.Sprintf("%s%s  %s  %5d cmds  %s\n",
			marker, timeStyle.Render(in.Closed.Format("2006-01-02 15:04")), state, in.Commands, in.SessionID))
	}
	return sb.String()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func firstLine(s string) string {
	if line, _, found := strings.Cut(s, "\n"); found {
		return line + dimStyle.Render(" …")
	}
	return s
}

// Run starts the TUI for the given session.
func Run(doc *session.Document, filename string, sessions []session.Info) error {
	p := tea.NewProgram(New(doc, filename, sessions), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
