// ABOUTME: FIFO track queue for a player
// ABOUTME: Safe for concurrent use
package player

import (
	"errors"
	"sync"

	"github.com/lavago/lavago/pkg/track"
)

var ErrQueueEmpty = errors.New("player: queue is empty")

// Queue holds tracks waiting to be played, oldest first.
type Queue struct {
	mu     sync.Mutex
	tracks []*track.Track
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Add appends a track.
func (q *Queue) Add(t *track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, t)
}

// AddAll appends tracks in order.
func (q *Queue) AddAll(tracks []*track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, tracks...)
}

// AddMultiTrack appends every track of a collection.
func (q *Queue) AddMultiTrack(m *track.MultiTrack) {
	q.AddAll(m.Tracks())
}

// Next removes and returns the oldest track.
func (q *Queue) Next() (*track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return nil, ErrQueueEmpty
	}
	t := q.tracks[0]
	q.tracks[0] = nil
	q.tracks = q.tracks[1:]
	return t, nil
}

// Tracks returns a copy of the queued tracks.
func (q *Queue) Tracks() []*track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*track.Track(nil), q.tracks...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes every queued track.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = nil
}
