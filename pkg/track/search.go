// ABOUTME: Polymorphic resource search and lookup results
// ABOUTME: Query prefixing, partial resources and first-result selection
package track

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoLoader is returned when neither a loader nor a provider was given.
	ErrNoLoader = errors.New("track: no loader available")

	// ErrNotSearchable is returned for free-text searches on a kind without a search tag.
	ErrNotSearchable = errors.New("track: kind has no search tag")
)

// ResultType tells which field of a Result is populated.
type ResultType int

const (
	ResultEmpty ResultType = iota
	ResultTrack
	ResultTracks
	ResultMultiTrack
	ResultPartial
)

// Result is the outcome of a search: one track, a list of tracks, a
// collection, a deferred partial resource, or nothing.
type Result struct {
	Type       ResultType
	Track      *Track
	Tracks     []*Track
	MultiTrack *MultiTrack
	Partial    *PartialResource
}

// IsEmpty reports whether the lookup found nothing.
func (r Result) IsEmpty() bool {
	return r.Type == ResultEmpty
}

// First returns the first playable track of any non-partial result.
func (r Result) First() (*Track, bool) {
	switch r.Type {
	case ResultTrack:
		return r.Track, true
	case ResultTracks:
		if len(r.Tracks) > 0 {
			return r.Tracks[0], true
		}
	case ResultMultiTrack:
		if t, ok := r.MultiTrack.Selected(); ok {
			return t, true
		}
		if r.MultiTrack.Len() > 0 {
			return r.MultiTrack.tracks[0], true
		}
	}
	return nil, false
}

// All returns every track carried by the result, in order.
func (r Result) All() []*Track {
	switch r.Type {
	case ResultTrack:
		return []*Track{r.Track}
	case ResultTracks:
		return append([]*Track(nil), r.Tracks...)
	case ResultMultiTrack:
		return r.MultiTrack.Tracks()
	default:
		return nil
	}
}

// Loader performs a lookup on a node. The query is sent as given.
type Loader interface {
	LoadTracks(ctx context.Context, kind Kind, query string) (Result, error)
}

// Provider hands out a loader when the caller did not pick one, typically
// a node pool.
type Provider interface {
	Loader(ctx context.Context) (Loader, error)
}

// SearchOptions controls Search.
type SearchOptions struct {
	// UseQuery treats the query as free text and prefixes the kind's search
	// tag. Otherwise the query is an exact identifier or URL.
	UseQuery bool
	// ReturnFirst returns only the first match of a free-text search.
	ReturnFirst bool
	// Partial defers the lookup and returns a PartialResource.
	Partial bool
	// Provider supplies a loader when none is passed to Search.
	Provider Provider
}

// Search looks up resources of kind on a node. Partial searches return
// immediately without any network access. An empty lookup is an empty
// Result, not an error; loader errors are returned unchanged.
func Search(ctx context.Context, kind Kind, query string, loader Loader, opts SearchOptions) (Result, error) {
	if opts.UseQuery {
		if kind.SearchTag() == "" {
			return Result{}, fmt.Errorf("%w: %s", ErrNotSearchable, kind)
		}
		query = kind.Prefix(query)
	}

	if opts.Partial {
		return Result{Type: ResultPartial, Partial: NewPartialResource(kind, query, opts.UseQuery)}, nil
	}

	if loader == nil {
		if opts.Provider == nil {
			return Result{}, ErrNoLoader
		}
		l, err := opts.Provider.Loader(ctx)
		if err != nil {
			return Result{}, err
		}
		loader = l
	}

	res, err := loader.LoadTracks(ctx, kind, query)
	if err != nil {
		return Result{}, err
	}
	return selectFirst(res, opts.UseQuery && opts.ReturnFirst), nil
}

func selectFirst(res Result, first bool) Result {
	if first && res.Type == ResultTracks {
		if len(res.Tracks) == 0 {
			return Result{}
		}
		return Result{Type: ResultTrack, Track: res.Tracks[0]}
	}
	return res
}

// PartialResource is a deferred lookup. It holds the query to resolve at
// playback time and no track data.
type PartialResource struct {
	kind     Kind
	query    string
	useQuery bool
}

// NewPartialResource records a deferred lookup. The query is stored as
// given; Search has already prefixed free-text queries.
func NewPartialResource(kind Kind, query string, useQuery bool) *PartialResource {
	return &PartialResource{kind: kind, query: query, useQuery: useQuery}
}

func (p *PartialResource) Kind() Kind { return p.kind }

func (p *PartialResource) Query() string { return p.query }

// UseQuery reports whether the query is a free-text search.
func (p *PartialResource) UseQuery() bool { return p.useQuery }

// Resolve runs the deferred lookup on loader.
func (p *PartialResource) Resolve(ctx context.Context, loader Loader, returnFirst bool) (Result, error) {
	res, err := loader.LoadTracks(ctx, p.kind, p.query)
	if err != nil {
		return Result{}, err
	}
	return selectFirst(res, p.useQuery && returnFirst), nil
}

func (p *PartialResource) String() string {
	return fmt.Sprintf("partial %s %q", p.kind, p.query)
}
