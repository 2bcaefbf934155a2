// ABOUTME: Resource model package
// ABOUTME: Tracks, collections, partial resources and search
// Package track holds the resources a node reports and the search entry
// point that produces them.
//
// Search is polymorphic over Kind: the kind selects the free-text search
// tag and, for collections, the kind of the member tracks.
//
// Example:
//
//	res, err := track.Search(ctx, track.KindYouTube, "never gonna give you up", node,
//	    track.SearchOptions{UseQuery: true, ReturnFirst: true})
//	if err == nil && !res.IsEmpty() {
//	    fmt.Println(res.Track.Title())
//	}
package track
