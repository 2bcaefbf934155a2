// ABOUTME: Node statistics snapshot
// ABOUTME: Strict decoding of stats frames with optional frame counters
package node

import (
	"fmt"
	"time"

	"github.com/lavago/lavago/pkg/protocol"
)

// FramesUnavailable is the value of a frame counter the node did not report.
const FramesUnavailable int64 = -1

// Stats is a point-in-time report from a node. A newer snapshot replaces
// the previous one; snapshots are never modified.
type Stats struct {
	Node *Node // the node the report came from

	Uptime         time.Duration
	Players        int
	PlayingPlayers int

	MemoryReservable int64
	MemoryUsed       int64
	MemoryFree       int64
	MemoryAllocated  int64

	CPUCores     int
	SystemLoad   float64
	LavalinkLoad float64

	// Frame counters are FramesUnavailable when absent
	FramesSent    int64
	FramesDeficit int64
	FramesNulled  int64

	ReceivedAt time.Time
}

// DecodeStats decodes a stats payload. Every field except the frame
// counters is required.
func DecodeStats(n *Node, data []byte) (*Stats, error) {
	f, err := protocol.ParseFields(data)
	if err != nil {
		return nil, err
	}

	s := &Stats{
		Node:           n,
		Uptime:         time.Duration(f.Int("uptime")) * time.Millisecond,
		Players:        int(f.Int("players")),
		PlayingPlayers: int(f.Int("playingPlayers")),

		MemoryReservable: f.Int("memory.reservable"),
		MemoryUsed:       f.Int("memory.used"),
		MemoryFree:       f.Int("memory.free"),
		MemoryAllocated:  f.Int("memory.allocated"),

		CPUCores:     int(f.Int("cpu.cores")),
		SystemLoad:   f.Float("cpu.systemLoad"),
		LavalinkLoad: f.Float("cpu.lavalinkLoad"),

		FramesSent:    f.OptInt("frameStats.sent", FramesUnavailable),
		FramesDeficit: f.OptInt("frameStats.deficit", FramesUnavailable),
		FramesNulled:  f.OptInt("frameStats.nulled", FramesUnavailable),

		ReceivedAt: time.Now(),
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("node: failed to decode stats: %w", err)
	}
	return s, nil
}

// HasFrameStats reports whether the node sent frame counters.
func (s *Stats) HasFrameStats() bool {
	return s.FramesSent != FramesUnavailable || s.FramesDeficit != FramesUnavailable || s.FramesNulled != FramesUnavailable
}

// MemoryUsage returns used memory as a fraction of allocated memory.
func (s *Stats) MemoryUsage() float64 {
	if s.MemoryAllocated == 0 {
		return 0
	}
	return float64(s.MemoryUsed) / float64(s.MemoryAllocated)
}
