// ABOUTME: Bubbletea model for the node monitor
// ABOUTME: Defines monitor state and update logic
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lavago/lavago/pkg/node"
	"github.com/lavago/lavago/pkg/protocol"
)

const maxEvents = 5

// Model represents the TUI state
type Model struct {
	nodes    map[string]*nodeRow
	order    []string
	selected int

	events []string

	showDetail bool

	// Dimensions
	width  int
	height int
}

type nodeRow struct {
	address string
	state   protocol.State
	stats   *node.Stats
}

// StatsMsg carries a new stats snapshot for a node
type StatsMsg struct {
	Node    string
	Address string
	Stats   *node.Stats
}

// StateMsg reports a node's connection state
type StateMsg struct {
	Node    string
	Address string
	State   protocol.State
}

// EventMsg reports a player event
type EventMsg struct {
	Node    string
	GuildID string
	Type    protocol.EventType
	Title   string
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatsMsg:
		row := m.row(msg.Node, msg.Address)
		row.stats = msg.Stats
		row.state = protocol.StateConnected
	case StateMsg:
		m.row(msg.Node, msg.Address).state = msg.State
	case EventMsg:
		m.addEvent(msg)
	}

	return m, nil
}

func (m *Model) row(id, address string) *nodeRow {
	row, ok := m.nodes[id]
	if !ok {
		row = &nodeRow{}
		m.nodes[id] = row
		m.order = append(m.order, id)
		sort.Strings(m.order)
	}
	if address != "" {
		row.address = address
	}
	return row
}

func (m *Model) addEvent(msg EventMsg) {
	line := fmt.Sprintf("%s %s guild %s", msg.Node, msg.Type, msg.GuildID)
	if msg.Title != "" {
		line += ": " + msg.Title
	}
	m.events = append(m.events, line)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var s strings.Builder
	s.WriteString(m.renderHeader())
	s.WriteString(m.renderNodes())

	if m.showDetail {
		s.WriteString(m.renderDetail())
	}

	s.WriteString(m.renderEvents())
	s.WriteString(m.renderHelp())

	return s.String()
}

// renderHeader renders the title and node count
func (m Model) renderHeader() string {
	connected := 0
	for _, row := range m.nodes {
		if row.state == protocol.StateConnected {
			connected++
		}
	}

	return fmt.Sprintf(`┌─ lavago monitor ─────────────────────────────────────┐
│ Nodes: %d connected of %-29d │
├──────────────────────────────────────────────────────┤
`, connected, len(m.nodes))
}

// renderNodes renders one line per node
func (m Model) renderNodes() string {
	if len(m.order) == 0 {
		return "│ No nodes                                             │\n"
	}

	var s strings.Builder
	for i, id := range m.order {
		row := m.nodes[id]
		cursor := " "
		if i == m.selected {
			cursor = ">"
		}

		players := "-"
		load := "-"
		if row.stats != nil {
			players = fmt.Sprintf("%d/%d", row.stats.PlayingPlayers, row.stats.Players)
			load = fmt.Sprintf("%.0f%%", row.stats.LavalinkLoad*100)
		}

		fmt.Fprintf(&s, "│%s %-12s %-12s players %-7s load %-5s │\n",
			cursor, truncate(id, 12), row.state, players, load)
	}
	return s.String()
}

// renderDetail renders the selected node's full stats
func (m Model) renderDetail() string {
	if len(m.order) == 0 {
		return ""
	}
	id := m.order[m.selected]
	row := m.nodes[id]

	s := "├──────────────────────────────────────────────────────┤\n"
	s += fmt.Sprintf("│ %-52s │\n", truncate(id+" "+row.address, 52))
	if row.stats == nil {
		return s + "│   (no stats yet)                                     │\n"
	}

	st := row.stats
	s += fmt.Sprintf("│   Uptime: %-42s │\n", st.Uptime.Truncate(time.Second))
	s += fmt.Sprintf("│   Memory: [%s] %3.0f%%%-25s │\n", renderBar(st.MemoryUsage(), 10), st.MemoryUsage()*100, "")
	s += fmt.Sprintf("│   CPU:    %d cores, system %.0f%%, node %.0f%%%-13s │\n",
		st.CPUCores, st.SystemLoad*100, st.LavalinkLoad*100, "")
	if st.HasFrameStats() {
		s += fmt.Sprintf("│   Frames: sent %d deficit %d nulled %d%-12s │\n",
			st.FramesSent, st.FramesDeficit, st.FramesNulled, "")
	}
	return s
}

// renderEvents renders recent player events
func (m Model) renderEvents() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	if len(m.events) == 0 {
		return s + "│ No events                                            │\n"
	}
	for _, e := range m.events {
		s += fmt.Sprintf("│ %-52s │\n", truncate(e, 52))
	}
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ ↑/↓:Select  d:Detail  q:Quit                         │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up":
		if m.selected > 0 {
			m.selected--
		}
	case "down":
		if m.selected < len(m.order)-1 {
			m.selected++
		}
	case "d":
		m.showDetail = !m.showDetail
	}

	return m, nil
}

// Utility functions
func renderBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	return strings.Repeat("█", max(0, min(filled, width))) + strings.Repeat("░", width-max(0, min(filled, width)))
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
