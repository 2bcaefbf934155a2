// ABOUTME: Resource kind table for searchable sources
// ABOUTME: Maps each kind to its search tag and, for collections, its member kind
package track

import "strings"

// Kind identifies the source variant of a resource and selects its search
// tag. Collection kinds carry the kind used to hydrate their members.
type Kind string

const (
	KindTrack           Kind = "track"
	KindYouTube         Kind = "youtube"
	KindYouTubeMusic    Kind = "youtube_music"
	KindSoundCloud      Kind = "soundcloud"
	KindYouTubePlaylist Kind = "youtube_playlist"
)

type kindInfo struct {
	searchTag string
	member    Kind
}

var kinds = map[Kind]kindInfo{
	KindTrack:           {},
	KindYouTube:         {searchTag: "ytsearch"},
	KindYouTubeMusic:    {searchTag: "ytmsearch"},
	KindSoundCloud:      {searchTag: "scsearch"},
	KindYouTubePlaylist: {searchTag: "ytsearch", member: KindYouTube},
}

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{KindTrack, KindYouTube, KindYouTubeMusic, KindSoundCloud, KindYouTubePlaylist}
}

// ParseKind resolves a kind from its name, also accepting a few short aliases.
func ParseKind(name string) (Kind, bool) {
	switch strings.ToLower(name) {
	case "yt":
		return KindYouTube, true
	case "ytm", "ytmusic":
		return KindYouTubeMusic, true
	case "sc":
		return KindSoundCloud, true
	case "playlist":
		return KindYouTubePlaylist, true
	}
	k := Kind(strings.ToLower(name))
	_, ok := kinds[k]
	return k, ok
}

// SearchTag returns the prefix used for free-text queries, or "" when the
// kind cannot be searched by text.
func (k Kind) SearchTag() string {
	return kinds[k].searchTag
}

// IsCollection reports whether lookups of this kind produce a MultiTrack.
func (k Kind) IsCollection() bool {
	return kinds[k].member != ""
}

// MemberKind returns the kind used for tracks inside a collection of this
// kind. For non-collection kinds it is k itself.
func (k Kind) MemberKind() Kind {
	if m := kinds[k].member; m != "" {
		return m
	}
	return k
}

// Prefix builds the free-text query "{tag}:{query}".
func (k Kind) Prefix(query string) string {
	return k.SearchTag() + ":" + query
}

// KindFromSource maps a node's sourceName to a kind.
func KindFromSource(source string) Kind {
	switch source {
	case "youtube":
		return KindYouTube
	case "soundcloud":
		return KindSoundCloud
	default:
		return KindTrack
	}
}
