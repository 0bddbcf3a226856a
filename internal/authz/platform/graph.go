package platform

import (
	"context"
	"slices"
	"sync"

	"github.com/aussiebroadwan/authz/internal/authz/domain"
)

// Graph is an in-memory edge store. Edges are unique per (src, dst, tag).
type Graph struct {
	mu    sync.RWMutex
	edges []domain.Edge
}

func NewGraph() *Graph { return &Graph{} }

// MakeEdge adds e unless it already exists.
func (g *Graph) MakeEdge(_ context.Context, e domain.Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.edges, e) {
		g.edges = append(g.edges, e)
	}
	return nil
}

// RemoveEdge deletes e. Removing a missing edge is a no-op.
func (g *Graph) RemoveEdge(_ context.Context, e domain.Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = slices.DeleteFunc(g.edges, func(x domain.Edge) bool { return x == e })
	return nil
}

// Edges returns every edge matching q.
func (g *Graph) Edges(_ context.Context, q domain.EdgeQuery) ([]domain.Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []domain.Edge
	for _, e := range g.edges {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// DeleteNode removes every edge touching urn.
func (g *Graph) DeleteNode(_ context.Context, urn string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = slices.DeleteFunc(g.edges, func(e domain.Edge) bool { return e.Src == urn || e.Dst == urn })
	return nil
}
