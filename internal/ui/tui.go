// ABOUTME: TUI initialization and node wiring
// ABOUTME: Wraps the bubbletea program for the node monitor
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lavago/lavago/pkg/node"
)

// NewModel creates a new TUI model
func NewModel() Model {
	return Model{
		nodes: make(map[string]*nodeRow),
	}
}

// Run creates the monitor program. The caller starts it with Run.
func Run() *tea.Program {
	return tea.NewProgram(NewModel(), tea.WithAltScreen())
}

// Feed returns node callbacks that forward stats and events to p.
func Feed(p *tea.Program) (onStats func(*node.Stats), onEvent func(node.Event)) {
	onStats = func(s *node.Stats) {
		p.Send(StatsMsg{Node: s.Node.Identifier(), Address: s.Node.Address(), Stats: s})
	}
	onEvent = func(e node.Event) {
		msg := EventMsg{Node: e.Node.Identifier(), GuildID: e.GuildID, Type: e.Type}
		if e.Track != nil {
			msg.Title = e.Track.Title()
		}
		p.Send(msg)
	}
	return onStats, onEvent
}
