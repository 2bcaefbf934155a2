// ABOUTME: Node package
// ABOUTME: Lavalink nodes, their statistics and the node pool
// Package node wraps a protocol.Session with the node's REST lookups,
// statistics and event routing, and groups nodes into a Pool.
//
// A Node implements track.Loader and a Pool implements track.Provider, so
// either can be handed to track.Search.
package node
