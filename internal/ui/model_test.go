// ABOUTME: Tests for the monitor model
// ABOUTME: Tests stats updates, key handling and rendering
package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavago/lavago/pkg/node"
	"github.com/lavago/lavago/pkg/protocol"
)

func sampleStats() *node.Stats {
	return &node.Stats{
		Uptime:          90 * time.Second,
		Players:         3,
		PlayingPlayers:  2,
		MemoryUsed:      50,
		MemoryAllocated: 100,
		CPUCores:        4,
		SystemLoad:      0.5,
		LavalinkLoad:    0.25,
		FramesSent:      node.FramesUnavailable,
		FramesDeficit:   node.FramesUnavailable,
		FramesNulled:    node.FramesUnavailable,
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model
}

func TestNewModel(t *testing.T) {
	model := NewModel()

	assert.Empty(t, model.order)
	assert.False(t, model.showDetail)
	assert.Equal(t, "Loading...", model.View())
}

func TestStatsMsg(t *testing.T) {
	model := NewModel()
	model = update(t, model, StatsMsg{Node: "main", Address: "localhost:2333", Stats: sampleStats()})

	require.Contains(t, model.nodes, "main")
	assert.Equal(t, protocol.StateConnected, model.nodes["main"].state)
	assert.Equal(t, "localhost:2333", model.nodes["main"].address)
	assert.Equal(t, 3, model.nodes["main"].stats.Players)
}

func TestStateMsgKeepsOrder(t *testing.T) {
	model := NewModel()
	model = update(t, model, StateMsg{Node: "b", State: protocol.StateConnecting})
	model = update(t, model, StateMsg{Node: "a", State: protocol.StateDisconnected})
	model = update(t, model, StateMsg{Node: "b", State: protocol.StateConnected})

	assert.Equal(t, []string{"a", "b"}, model.order)
	assert.Equal(t, protocol.StateConnected, model.nodes["b"].state)
}

func TestEventsAreBounded(t *testing.T) {
	model := NewModel()
	for range maxEvents + 3 {
		model = update(t, model, EventMsg{Node: "main", GuildID: "42", Type: protocol.TrackStartEvent, Title: "Song"})
	}

	assert.Len(t, model.events, maxEvents)
	assert.Equal(t, "main TrackStartEvent guild 42: Song", model.events[0])
}

func TestKeys(t *testing.T) {
	model := NewModel()
	model = update(t, model, StateMsg{Node: "a"})
	model = update(t, model, StateMsg{Node: "b"})

	model = update(t, model, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, model.selected)
	model = update(t, model, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, model.selected, "selection stops at the last node")
	model = update(t, model, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, model.selected)

	model = update(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	assert.True(t, model.showDetail)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestView(t *testing.T) {
	model := NewModel()
	model = update(t, model, tea.WindowSizeMsg{Width: 80, Height: 24})
	assert.Contains(t, model.View(), "No nodes")

	model = update(t, model, StatsMsg{Node: "main", Address: "localhost:2333", Stats: sampleStats()})
	model = update(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})

	view := model.View()
	assert.Contains(t, view, "1 connected of 1")
	assert.Contains(t, view, "players 2/3")
	assert.Contains(t, view, "load 25%")
	assert.Contains(t, view, "main localhost:2333")
	assert.Contains(t, view, "Uptime: 1m30s")
	assert.Contains(t, view, "4 cores")
	assert.NotContains(t, view, "Frames:")
	assert.Contains(t, view, "No events")
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "█████░░░░░", renderBar(0.5, 10))
	assert.Equal(t, "░░░░░░░░░░", renderBar(-1, 10))
	assert.Equal(t, "██████████", renderBar(2, 10))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
