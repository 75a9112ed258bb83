// Package ports defines the contracts between the application layer and the
// storage engines. Every back-end implements Engine; the registry binds each
// request to exactly one implementation.
package ports

import (
	"context"

	"graphserver/domain/graph"
)

// CreateGraphSpec carries everything an engine needs to persist a new graph.
// Mermaid text has already been converted into Nodes and Edges by the
// service layer; engines never see raw Mermaid.
type CreateGraphSpec struct {
	Title       string
	Description string
	GraphType   string
	Nodes       []graph.Node
	Edges       []graph.Edge
}

// Capabilities declares what an engine can and cannot do. The router
// refuses operations an engine declares unsupported instead of dispatching
// them.
type Capabilities struct {
	// MultiDatabase is true when the engine partitions graphs into more
	// than one selectable namespace.
	MultiDatabase bool
	// DefaultDatabase is the canonical name of the namespace served when a
	// request leaves the database selector empty. Cache keys are built on
	// this name, so the empty selector and the explicit name share entries.
	DefaultDatabase string
	// RawQuery is true when ExecuteRawQuery is implemented.
	RawQuery bool
	// RawQueryDialect names the native query language ("cypher", "sql");
	// empty when RawQuery is false.
	RawQueryDialect string
}

// Engine is the uniform capability set every storage back-end provides.
//
// All methods are request-scoped, may suspend on I/O, and must be safe for
// concurrent calls on distinct inputs. Implementations translate every
// driver-specific failure into a pkg/errors Kind and never leak their own
// engine name into returned values; the router stamps the authoritative tag.
type Engine interface {
	// ListDatabases returns the engine's namespaces in a stable order.
	ListDatabases(ctx context.Context) ([]graph.DatabaseInfo, error)

	// ListGraphs returns summaries of all graphs in the database
	// (engine default when empty), ordered by creation time descending.
	ListGraphs(ctx context.Context, database string) ([]graph.Summary, error)

	// GetGraph returns the full snapshot of one graph.
	GetGraph(ctx context.Context, database, graphID string) (*graph.Data, error)

	// GetGraphStats returns counts, per-type histograms and average degree.
	GetGraphStats(ctx context.Context, database, graphID string) (*graph.Stats, error)

	// CreateGraph persists a new graph and returns its summary with
	// materialised counts. Duplicate graph ids are a Conflict.
	CreateGraph(ctx context.Context, database string, spec CreateGraphSpec) (*graph.Summary, error)

	// DeleteGraph removes a graph with all of its nodes and edges.
	// A second delete of the same id is NotFound, never a success.
	DeleteGraph(ctx context.Context, database, graphID string) error

	// GetNodeNeighbors returns the N-hop neighbourhood of a node as a
	// partial graph snapshot.
	GetNodeNeighbors(ctx context.Context, database, graphID, nodeID string, hops int) (*graph.Data, error)

	// ComputeImpact runs a bounded forward BFS from sourceID. The returned
	// levels are shortest-hop distances; the source itself is excluded.
	// Depth has been validated by the caller.
	ComputeImpact(ctx context.Context, database, graphID, sourceID string, depth int) (*graph.ImpactResult, error)

	// RecountGraph recomputes the materialised node/edge counts from the
	// live data and returns the corrected summary.
	RecountGraph(ctx context.Context, database, graphID string) (*graph.Summary, error)

	// ExecuteRawQuery runs dialect-specific query text. Engines without a
	// raw dialect return NotSupported.
	ExecuteRawQuery(ctx context.Context, database, query string) (*graph.QueryResult, error)

	// Ping verifies connectivity to the back-end.
	Ping(ctx context.Context) error

	// Close releases the engine's connection pool.
	Close(ctx context.Context) error

	Capabilities() Capabilities
}
