// ABOUTME: Decoding of node load results
// ABOUTME: Classifies a loadtracks body by loadType into a Result
package track

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/lavago/lavago/pkg/protocol"
)

// Load types reported by the node.
const (
	LoadTrackLoaded    = "TRACK_LOADED"
	LoadPlaylistLoaded = "PLAYLIST_LOADED"
	LoadSearchResult   = "SEARCH_RESULT"
	LoadNoMatches      = "NO_MATCHES"
	LoadFailed         = "LOAD_FAILED"
)

// LoadFailedError is returned when the node could not load a resource.
type LoadFailedError struct {
	Message  string
	Severity string
}

func (e *LoadFailedError) Error() string {
	return fmt.Sprintf("track: load failed (%s): %s", e.Severity, e.Message)
}

// DecodeLoadResult decodes a load result body. Tracks are decoded as kind,
// or as kind's member kind inside playlists.
func DecodeLoadResult(kind Kind, body []byte) (Result, error) {
	f, err := protocol.ParseFields(body)
	if err != nil {
		return Result{}, err
	}
	loadType := f.String("loadType")
	if err := f.Err(); err != nil {
		return Result{}, err
	}
	root := f.Root()

	switch loadType {
	case LoadNoMatches:
		return Result{}, nil

	case LoadFailed:
		return Result{}, &LoadFailedError{
			Message:  root.Get("exception.message").String(),
			Severity: root.Get("exception.severity").String(),
		}

	case LoadTrackLoaded:
		tracks, err := decodeTracks(kind, root)
		if err != nil {
			return Result{}, err
		}
		if len(tracks) == 0 {
			return Result{}, &protocol.PayloadError{Field: "tracks", Reason: "is empty for " + LoadTrackLoaded}
		}
		return Result{Type: ResultTrack, Track: tracks[0]}, nil

	case LoadSearchResult:
		tracks, err := decodeTracks(kind, root)
		if err != nil {
			return Result{}, err
		}
		if len(tracks) == 0 {
			return Result{}, nil
		}
		return Result{Type: ResultTracks, Tracks: tracks}, nil

	case LoadPlaylistLoaded:
		tracks, err := decodeTracks(kind.MemberKind(), root)
		if err != nil {
			return Result{}, err
		}
		info := protocol.FieldsOf(root.Get("playlistInfo"))
		name := info.String("name")
		selected := info.OptInt("selectedTrack", -1)
		if err := info.Err(); err != nil {
			return Result{}, err
		}
		return Result{Type: ResultMultiTrack, MultiTrack: NewMultiTrack(name, tracks, int(selected))}, nil

	default:
		return Result{}, &protocol.PayloadError{Field: "loadType", Reason: fmt.Sprintf("has unknown value %q", loadType)}
	}
}

func decodeTracks(kind Kind, root gjson.Result) ([]*Track, error) {
	list := root.Get("tracks")
	if !list.IsArray() {
		return nil, &protocol.PayloadError{Field: "tracks", Reason: "is not an array"}
	}

	var tracks []*Track
	var err error
	list.ForEach(func(_, entry gjson.Result) bool {
		var t *Track
		t, err = decodeEntry(kind, entry)
		if err != nil {
			return false
		}
		tracks = append(tracks, t)
		return true
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}
