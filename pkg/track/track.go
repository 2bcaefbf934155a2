// ABOUTME: Track and MultiTrack resource types
// ABOUTME: Strict decoding of node track payloads into immutable values
package track

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lavago/lavago/pkg/protocol"
)

// Track is one playable item as reported by a node. Values are immutable
// once decoded.
type Track struct {
	kind       Kind
	id         string
	identifier string
	seekable   bool
	author     string
	length     time.Duration
	stream     bool
	source     string
	title      string
	uri        string
}

// Decode builds a track from its encoded id and a raw info object.
// Any missing or mistyped info field fails with protocol.ErrMalformedPayload.
func Decode(kind Kind, id string, info []byte) (*Track, error) {
	f, err := protocol.ParseFields(info)
	if err != nil {
		return nil, err
	}
	return decodeFields(kind, id, f)
}

// decodeEntry decodes a {"track": ..., "info": {...}} element of a load result.
func decodeEntry(kind Kind, entry gjson.Result) (*Track, error) {
	f := protocol.FieldsOf(entry)
	id := f.String("track")
	if err := f.Err(); err != nil {
		return nil, err
	}
	return decodeFields(kind, id, protocol.FieldsOf(entry.Get("info")))
}

func decodeFields(kind Kind, id string, f *protocol.Fields) (*Track, error) {
	t := &Track{
		kind:       kind,
		id:         id,
		identifier: f.String("identifier"),
		seekable:   f.Bool("isSeekable"),
		author:     f.String("author"),
		length:     time.Duration(f.Int("length")) * time.Millisecond,
		stream:     f.Bool("isStream"),
		source:     f.String("sourceName"),
		title:      f.String("title"),
		uri:        f.String("uri"),
	}
	if err := f.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Kind returns the variant this track was resolved as.
func (t *Track) Kind() Kind { return t.kind }

// ID returns the encoded track, which the node uses to rebuild it.
func (t *Track) ID() string { return t.id }

// Identifier returns the source site's identifier.
func (t *Track) Identifier() string { return t.identifier }

func (t *Track) IsSeekable() bool { return t.seekable }

func (t *Track) Author() string { return t.author }

// Length returns the track duration. Streams report an arbitrary length.
func (t *Track) Length() time.Duration { return t.length }

func (t *Track) IsStream() bool { return t.stream }

// Source returns the source site tag, e.g. "youtube".
func (t *Track) Source() string { return t.source }

func (t *Track) Title() string { return t.title }

func (t *Track) URI() string { return t.uri }

func (t *Track) String() string {
	return fmt.Sprintf("%s - %s (%s)", t.author, t.title, t.length)
}

// MultiTrack is a named, ordered collection of tracks such as a playlist.
type MultiTrack struct {
	name     string
	selected int
	tracks   []*Track
}

// NewMultiTrack creates a collection. selected is the index of the
// preselected track, or -1 when there is none.
func NewMultiTrack(name string, tracks []*Track, selected int) *MultiTrack {
	if selected < -1 || selected >= len(tracks) {
		selected = -1
	}
	return &MultiTrack{
		name:     name,
		selected: selected,
		tracks:   append([]*Track(nil), tracks...),
	}
}

func (m *MultiTrack) Name() string { return m.name }

// Tracks returns the tracks in playback order.
func (m *MultiTrack) Tracks() []*Track {
	return append([]*Track(nil), m.tracks...)
}

func (m *MultiTrack) Len() int { return len(m.tracks) }

// Selected returns the preselected track, if the source named one.
func (m *MultiTrack) Selected() (*Track, bool) {
	if m.selected < 0 {
		return nil, false
	}
	return m.tracks[m.selected], true
}

func (m *MultiTrack) String() string {
	return fmt.Sprintf("%s (%d tracks)", m.name, len(m.tracks))
}
