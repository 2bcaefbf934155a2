// ABOUTME: Player package
// ABOUTME: Guild players, queues and equalizers on top of a node
// Package player drives playback for one guild on a node.
//
// Example:
//
//	p := player.New(n, "guild-id", player.Config{AutoAdvance: true})
//	res, _ := track.Search(ctx, track.KindYouTube, "song", n,
//	    track.SearchOptions{UseQuery: true, ReturnFirst: true})
//	err := p.PlayResult(ctx, res, player.PlayOptions{})
package player
