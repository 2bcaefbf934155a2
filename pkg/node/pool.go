// ABOUTME: Registry of nodes keyed by identifier
// ABOUTME: Provides the default node for searches and fans out lifecycle calls
package node

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/lavago/lavago/pkg/track"
)

var (
	ErrNoNodes           = errors.New("node: no nodes available")
	ErrInvalidIdentifier = errors.New("node: no node with that identifier")
	ErrNodeOccupied      = errors.New("node: identifier already in use")
)

// Pool holds the nodes an application talks to. It is safe for concurrent use.
type Pool struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{nodes: make(map[string]*Node)}
}

// Add creates a node from config and registers it. An empty identifier is
// replaced by a random one.
func (p *Pool) Add(config Config) (*Node, error) {
	if config.Identifier == "" {
		config.Identifier = uuid.NewString()[:8]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.nodes[config.Identifier]; ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeOccupied, config.Identifier)
	}

	n := New(config)
	p.nodes[config.Identifier] = n
	return n, nil
}

// Get returns the node registered under identifier.
func (p *Pool) Get(identifier string) (*Node, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.nodes) == 0 {
		return nil, ErrNoNodes
	}
	n, ok := p.nodes[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidIdentifier, identifier)
	}
	return n, nil
}

// Nodes returns every node ordered by identifier.
func (p *Pool) Nodes() []*Node {
	p.mu.RLock()
	nodes := lo.Values(p.nodes)
	p.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Identifier() < nodes[j].Identifier()
	})
	return nodes
}

// Best returns the connected node with the fewest players, falling back to
// any node while none are connected yet.
func (p *Pool) Best() (*Node, error) {
	nodes := p.Nodes()
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}

	candidates := lo.Filter(nodes, func(n *Node, _ int) bool { return n.IsConnected() })
	if len(candidates) == 0 {
		candidates = nodes
	}
	return lo.MinBy(candidates, func(a, b *Node) bool {
		return a.PlayerCount() < b.PlayerCount()
	}), nil
}

// Loader returns the best node as a track loader.
func (p *Pool) Loader(context.Context) (track.Loader, error) {
	n, err := p.Best()
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Remove closes and unregisters a node.
func (p *Pool) Remove(identifier string) error {
	p.mu.Lock()
	n, ok := p.nodes[identifier]
	delete(p.nodes, identifier)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidIdentifier, identifier)
	}
	return n.Close()
}

// WaitConnected waits for every node to connect and returns the first failure.
func (p *Pool) WaitConnected(ctx context.Context) error {
	nodes := p.Nodes()
	if len(nodes) == 0 {
		return ErrNoNodes
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		g.Go(func() error {
			if err := n.WaitConnected(ctx); err != nil {
				return fmt.Errorf("node %s: %w", n.Identifier(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every node and empties the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	nodes := lo.Values(p.nodes)
	p.nodes = make(map[string]*Node)
	p.mu.Unlock()

	var g errgroup.Group
	for _, n := range nodes {
		g.Go(n.Close)
	}
	return g.Wait()
}
