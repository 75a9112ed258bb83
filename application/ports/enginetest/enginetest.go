// Package enginetest provides an in-memory reference implementation of
// ports.Engine for use in tests. It honours the same contract as the real
// adapters (conflict on duplicate ids, silent edge deduplication,
// materialised counts, shortest-hop impact levels) so service and HTTP
// tests can run without any external store.
package enginetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"graphserver/application/ports"
	"graphserver/domain/graph"
	apperrors "graphserver/pkg/errors"
)

// Engine is an in-memory ports.Engine. The zero value is not usable; call New.
type Engine struct {
	mu      sync.RWMutex
	dbs     map[string]map[string]*graph.Data // database -> graphID -> snapshot
	defDB   string
	multi   bool
	dialect string

	// FailWith, when set, is returned verbatim by every data operation.
	// Tests use it to simulate a lost back-end.
	FailWith error
}

// Option configures the test engine.
type Option func(*Engine)

// WithDatabases enables multi-database mode with the given namespaces; the
// first one is the default.
func WithDatabases(names ...string) Option {
	return func(e *Engine) {
		e.multi = true
		for i, n := range names {
			e.dbs[n] = make(map[string]*graph.Data)
			if i == 0 {
				e.defDB = n
			}
		}
	}
}

// WithDialect makes ExecuteRawQuery succeed, echoing the query back as a
// single row, and reports the given dialect in Capabilities.
func WithDialect(dialect string) Option {
	return func(e *Engine) { e.dialect = dialect }
}

// New returns an empty in-memory engine with a single default namespace.
func New(opts ...Option) *Engine {
	e := &Engine{
		dbs:   map[string]map[string]*graph.Data{"default": {}},
		defDB: "default",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) database(name string) (map[string]*graph.Data, string, error) {
	if name == "" {
		name = e.defDB
	}
	db, ok := e.dbs[name]
	if !ok {
		return nil, "", apperrors.NewNotFound("database %q not found", name)
	}
	return db, name, nil
}

func (e *Engine) ListDatabases(ctx context.Context) ([]graph.DatabaseInfo, error) {
	if e.FailWith != nil {
		return nil, e.FailWith
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.dbs))
	for n := range e.dbs {
		names = append(names, n)
	}
	sort.Strings(names)

	infos := make([]graph.DatabaseInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, graph.DatabaseInfo{Name: n, Default: n == e.defDB, Status: "online"})
	}
	return infos, nil
}

func (e *Engine) ListGraphs(ctx context.Context, database string) ([]graph.Summary, error) {
	if e.FailWith != nil {
		return nil, e.FailWith
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	db, _, err := e.database(database)
	if err != nil {
		return nil, err
	}
	summaries := make([]graph.Summary, 0, len(db))
	for _, g := range db {
		summaries = append(summaries, g.Summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (e *Engine) GetGraph(ctx context.Context, database, graphID string) (*graph.Data, error) {
	if e.FailWith != nil {
		return nil, e.FailWith
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot(database, graphID)
}

// snapshot returns a deep copy so callers can never mutate stored state.
func (e *Engine) snapshot(database, graphID string) (*graph.Data, error) {
	db, _, err := e.database(database)
	if err != nil {
		return nil, err
	}
	g, ok := db[graphID]
	if !ok {
		return nil, apperrors.NewNotFound("graph %q not found", graphID)
	}
	cp := &graph.Data{Summary: g.Summary}
	cp.Nodes = append([]graph.Node(nil), g.Nodes...)
	cp.Edges = append([]graph.Edge(nil), g.Edges...)
	if cp.Nodes == nil {
		cp.Nodes = []graph.Node{}
	}
	if cp.Edges == nil {
		cp.Edges = []graph.Edge{}
	}
	return cp, nil
}

func (e *Engine) GetGraphStats(ctx context.Context, database, graphID string) (*graph.Stats, error) {
	if e.FailWith != nil {
		return nil, e.FailWith
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	g, err := e.snapshot(database, graphID)
	if err != nil {
		return nil, err
	}
	stats := &graph.Stats{
		NodeCount: int64(len(g.Nodes)),
		EdgeCount: int64(len(g.Edges)),
		NodeTypes: make(map[string]int64),
		EdgeTypes: make(map[string]int64),
	}
	for _, n := range g.Nodes {
		stats.NodeTypes[n.Type]++
	}
	for _, ed := range g.Edges {
		stats.EdgeTypes[ed.Type]++
	}
	if stats.NodeCount > 0 {
		stats.AvgDegree = float64(stats.EdgeCount) / float64(stats.NodeCount)
	}
	return stats, nil
}

func (e *Engine) CreateGraph(ctx context.Context, database string, spec ports.CreateGraphSpec) (*graph.Summary, error) {
	if e.FailWith != nil {
		return nil, e.FailWith
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	db, _, err := e.database(database)
	if err != nil {
		return nil, err
	}

	id := graph.NewGraphID()
	if _, exists := db[id]; exists {
		return nil, apperrors.NewConflict("graph %q already exists", id)
	}

	edges := graph.DedupeEdges(spec.Edges)
	g := &graph.Data{
		Summary: graph.Summary{
			ID:          id,
			Title:       spec.Title,
			Description: spec.Description,
			GraphType:   spec.GraphType,
			NodeCount:   int64(len(spec.Nodes)),
			EdgeCount:   int64(len(edges)),
			CreatedAt:   time.Now().UTC(),
		},
		Nodes: append([]graph.Node(nil), spec.Nodes...),
		Edges: edges,
	}
	db[id] = g
	summary := g.Summary
	return &summary, nil
}

func (e *Engine) DeleteGraph(ctx context.Context, database, graphID string) error {
	if e.FailWith != nil {
		return e.FailWith
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	db, _, err := e.database(database)
	if err != nil {
		return err
	}
	if _, ok := db[graphID]; !ok {
		return apperrors.NewNotFound("graph %q not found", graphID)
	}
	delete(db, graphID)
	return nil
}

func (e *Engine) GetNodeNeighbors(ctx context.Context, database, graphID, nodeID string, hops int) (*graph.Data, error) {
	if e.FailWith != nil {
		return nil, e.FailWith
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	g, err := e.snapshot(database, graphID)
	if err != nil {
		return nil, err
	}
	nodeSet := make(map[string]struct{})
	if _, ok := findNode(g.Nodes, nodeID); !ok {
		return nil, apperrors.NewNotFound("node %q not found in graph %q", nodeID, graphID)
	}
	nodeSet[nodeID] = struct{}{}

	// Undirected frontier expansion up to the requested hop count.
	frontier := map[string]struct{}{nodeID: {}}
	for h := 0; h < hops; h++ {
		next := make(map[string]struct{})
		for _, ed := range g.Edges {
			if _, ok := frontier[ed.Source]; ok {
				if _, seen := nodeSet[ed.Target]; !seen {
					next[ed.Target] = struct{}{}
				}
			}
			if _, ok := frontier[ed.Target]; ok {
				if _, seen := nodeSet[ed.Source]; !seen {
					next[ed.Source] = struct{}{}
				}
			}
		}
		for id := range next {
			nodeSet[id] = struct{}{}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	out := &graph.Data{Summary: g.Summary, Nodes: []graph.Node{}, Edges: []graph.Edge{}}
	for _, n := range g.Nodes {
		if _, ok := nodeSet[n.ID]; ok {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, ed := range g.Edges {
		_, s := nodeSet[ed.Source]
		_, t := nodeSet[ed.Target]
		if s && t {
			out.Edges = append(out.Edges, ed)
		}
	}
	return out, nil
}

func (e *Engine) ComputeImpact(ctx context.Context, database, graphID, sourceID string, depth int) (*graph.ImpactResult, error) {
	if e.FailWith != nil {
		return nil, e.FailWith
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	g, err := e.snapshot(database, graphID)
	if err != nil {
		return nil, err
	}
	if _, ok := findNode(g.Nodes, sourceID); !ok {
		return nil, apperrors.NewNotFound("node %q not found in graph %q", sourceID, graphID)
	}

	adjacency := make(map[string][]string)
	for _, ed := range g.Edges {
		adjacency[ed.Source] = append(adjacency[ed.Source], ed.Target)
	}

	// Frontier-loop BFS over outgoing edges; first visit wins, so levels are
	// shortest-hop distances.
	levels := map[string]int{sourceID: 0}
	frontier := []string{sourceID}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, target := range adjacency[id] {
				if _, seen := levels[target]; seen {
					continue
				}
				levels[target] = d
				next = append(next, target)
			}
		}
		frontier = next
	}

	impacted := make([]graph.ImpactedNode, 0, len(levels)-1)
	for id, level := range levels {
		if id == sourceID {
			continue
		}
		impacted = append(impacted, graph.ImpactedNode{NodeID: id, Level: level})
	}
	sort.Slice(impacted, func(i, j int) bool {
		if impacted[i].Level != impacted[j].Level {
			return impacted[i].Level < impacted[j].Level
		}
		return impacted[i].NodeID < impacted[j].NodeID
	})

	return &graph.ImpactResult{
		SourceID:      sourceID,
		ImpactedNodes: impacted,
		Depth:         depth,
	}, nil
}

func (e *Engine) RecountGraph(ctx context.Context, database, graphID string) (*graph.Summary, error) {
	if e.FailWith != nil {
		return nil, e.FailWith
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	db, _, err := e.database(database)
	if err != nil {
		return nil, err
	}
	g, ok := db[graphID]
	if !ok {
		return nil, apperrors.NewNotFound("graph %q not found", graphID)
	}
	g.NodeCount = int64(len(g.Nodes))
	g.EdgeCount = int64(len(g.Edges))
	summary := g.Summary
	return &summary, nil
}

func (e *Engine) ExecuteRawQuery(ctx context.Context, database, query string) (*graph.QueryResult, error) {
	if e.FailWith != nil {
		return nil, e.FailWith
	}
	if e.dialect == "" {
		return nil, apperrors.NewNotSupported("raw queries are not supported by this engine")
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.NewInvalid("query must not be empty")
	}
	return &graph.QueryResult{
		Columns: []string{"query"},
		Rows:    [][]any{{query}},
	}, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.FailWith
}

func (e *Engine) Close(ctx context.Context) error { return nil }

func (e *Engine) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		MultiDatabase:   e.multi,
		DefaultDatabase: e.defDB,
		RawQuery:        e.dialect != "",
		RawQueryDialect: e.dialect,
	}
}

func findNode(nodes []graph.Node, id string) (graph.Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return graph.Node{}, false
}

var _ ports.Engine = (*Engine)(nil)
