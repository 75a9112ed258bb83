// Package neo4j implements the storage engine contract on top of the Bolt
// protocol. The same adapter serves Neo4j proper and Memgraph; the two
// differ only in multi-database support and index DDL, which Options select.
package neo4j

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"graphserver/application/ports"
	"graphserver/domain/graph"
	apperrors "graphserver/pkg/errors"
)

// Bolt cannot parameterise UNWIND payloads of unbounded size without
// blowing the transaction memory limit, so writes go out in fixed batches.
const defaultWriteBatchSize = 1000

// Options configures one Bolt-speaking engine instance.
type Options struct {
	// Name tags errors and logs ("neo4j" or "memgraph").
	Name string
	URI  string
	// Username may be empty for unauthenticated Memgraph instances.
	Username string
	Password string
	// DefaultDatabase is used when a request does not select one.
	DefaultDatabase string
	// MultiDatabase enables SHOW DATABASES and per-request database
	// selection. Memgraph serves a single unnamed database.
	MultiDatabase bool
	// WriteBatchSize caps the rows per UNWIND statement. Zero selects the
	// default of 1000; servers with small transaction memory limits can
	// tune it down.
	WriteBatchSize int
}

// Engine talks to one Bolt endpoint through a shared driver; sessions are
// opened per operation and closed before it returns.
type Engine struct {
	driver neo4j.DriverWithContext
	opts   Options

	mu       sync.Mutex
	prepared map[string]bool
}

var _ ports.Engine = (*Engine)(nil)

// New connects to the Bolt endpoint. The driver pools connections lazily;
// call Ping to verify the endpoint is actually reachable.
func New(opts Options) (*Engine, error) {
	if opts.DefaultDatabase == "" && opts.MultiDatabase {
		opts.DefaultDatabase = "neo4j"
	}
	if opts.WriteBatchSize <= 0 {
		opts.WriteBatchSize = defaultWriteBatchSize
	}
	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(opts.URI, auth)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(opts.Name, err)
	}
	return &Engine{driver: driver, opts: opts, prepared: make(map[string]bool)}, nil
}

// Capabilities implements ports.Engine.
func (e *Engine) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		MultiDatabase:   e.opts.MultiDatabase,
		DefaultDatabase: e.opts.DefaultDatabase,
		RawQuery:        true,
		RawQueryDialect: "cypher",
	}
}

// Ping verifies connectivity to the Bolt endpoint.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.driver.VerifyConnectivity(ctx); err != nil {
		return apperrors.NewStoreUnavailable(e.opts.Name, err)
	}
	return nil
}

// Close drains the driver's connection pool.
func (e *Engine) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

// resolveDatabase maps the request's database selector onto a session
// database name. Single-database variants accept only the empty selector or
// their own name.
func (e *Engine) resolveDatabase(database string) (string, error) {
	if database == "" || database == e.opts.DefaultDatabase {
		return e.opts.DefaultDatabase, nil
	}
	if !e.opts.MultiDatabase {
		return "", apperrors.NewNotFound("database %q not found, engine %q serves a single database", database, e.opts.Name)
	}
	return database, nil
}

func (e *Engine) session(ctx context.Context, database string, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return e.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: database,
		AccessMode:   mode,
	})
}

// ListDatabases implements ports.Engine. Multi-database variants ask the
// system database; single-database variants report their one namespace.
func (e *Engine) ListDatabases(ctx context.Context) ([]graph.DatabaseInfo, error) {
	if !e.opts.MultiDatabase {
		return []graph.DatabaseInfo{{Name: e.opts.DefaultDatabase, Default: true, Status: "online"}}, nil
	}

	session := e.session(ctx, "system", neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "SHOW DATABASES", nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, e.translate(err)
	}

	var infos []graph.DatabaseInfo
	for _, record := range records.([]*neo4j.Record) {
		name := stringValue(record, "name")
		if name == "system" {
			continue
		}
		infos = append(infos, graph.DatabaseInfo{
			Name:    name,
			Default: boolValue(record, "default") || name == e.opts.DefaultDatabase,
			Status:  stringValue(record, "currentStatus"),
		})
	}
	return infos, nil
}

// ListGraphs implements ports.Engine.
func (e *Engine) ListGraphs(ctx context.Context, database string) ([]graph.Summary, error) {
	db, err := e.resolveDatabase(database)
	if err != nil {
		return nil, err
	}
	session := e.session(ctx, db, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (g:Graph)
			RETURN g.id AS id, g.title AS title, g.description AS description,
			       g.graph_type AS graph_type, g.node_count AS node_count,
			       g.edge_count AS edge_count, g.created_at AS created_at
			ORDER BY g.created_at DESC`, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, e.translate(err)
	}

	summaries := make([]graph.Summary, 0, len(records.([]*neo4j.Record)))
	for _, record := range records.([]*neo4j.Record) {
		summaries = append(summaries, summaryFromRecord(record))
	}
	return summaries, nil
}

// GetGraph implements ports.Engine.
func (e *Engine) GetGraph(ctx context.Context, database, graphID string) (*graph.Data, error) {
	db, err := e.resolveDatabase(database)
	if err != nil {
		return nil, err
	}
	session := e.session(ctx, db, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		summary, err := e.fetchSummary(ctx, tx, graphID)
		if err != nil {
			return nil, err
		}

		data := &graph.Data{Summary: *summary, Nodes: []graph.Node{}, Edges: []graph.Edge{}}

		res, err := tx.Run(ctx, `
			MATCH (n:GraphNode {graph_id: $graph_id})
			RETURN n.node_id AS node_id, n.label AS label,
			       n.node_type AS node_type, n.properties AS properties`,
			map[string]any{"graph_id": graphID})
		if err != nil {
			return nil, err
		}
		nodeRecords, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range nodeRecords {
			data.Nodes = append(data.Nodes, nodeFromRecord(record))
		}

		res, err = tx.Run(ctx, `
			MATCH (s:GraphNode {graph_id: $graph_id})-[r:CONNECTED_TO]->(t:GraphNode {graph_id: $graph_id})
			RETURN s.node_id AS source_id, t.node_id AS target_id,
			       r.edge_type AS edge_type, r.label AS label, r.properties AS properties`,
			map[string]any{"graph_id": graphID})
		if err != nil {
			return nil, err
		}
		edgeRecords, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range edgeRecords {
			data.Edges = append(data.Edges, edgeFromRecord(record))
		}
		return data, nil
	})
	if err != nil {
		return nil, e.translate(err)
	}
	return result.(*graph.Data), nil
}

// GetGraphStats implements ports.Engine. Counts come from the live data,
// not the materialised summary, so drift is visible here.
func (e *Engine) GetGraphStats(ctx context.Context, database, graphID string) (*graph.Stats, error) {
	db, err := e.resolveDatabase(database)
	if err != nil {
		return nil, err
	}
	session := e.session(ctx, db, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := e.fetchSummary(ctx, tx, graphID); err != nil {
			return nil, err
		}

		stats := &graph.Stats{NodeTypes: map[string]int64{}, EdgeTypes: map[string]int64{}}

		res, err := tx.Run(ctx, `
			MATCH (n:GraphNode {graph_id: $graph_id})
			RETURN n.node_type AS node_type, count(n) AS c`,
			map[string]any{"graph_id": graphID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			count := intValue(record, "c")
			stats.NodeTypes[stringValue(record, "node_type")] += count
			stats.NodeCount += count
		}

		res, err = tx.Run(ctx, `
			MATCH (:GraphNode {graph_id: $graph_id})-[r:CONNECTED_TO]->(:GraphNode {graph_id: $graph_id})
			RETURN r.edge_type AS edge_type, count(r) AS c`,
			map[string]any{"graph_id": graphID})
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			count := intValue(record, "c")
			stats.EdgeTypes[stringValue(record, "edge_type")] += count
			stats.EdgeCount += count
		}

		if stats.NodeCount > 0 {
			stats.AvgDegree = float64(stats.EdgeCount) / float64(stats.NodeCount)
		}
		return stats, nil
	})
	if err != nil {
		return nil, e.translate(err)
	}
	return result.(*graph.Stats), nil
}

// CreateGraph implements ports.Engine. The metadata node and every batch go
// through one write transaction, so a failed batch never leaves a partial
// graph behind.
func (e *Engine) CreateGraph(ctx context.Context, database string, spec ports.CreateGraphSpec) (*graph.Summary, error) {
	db, err := e.resolveDatabase(database)
	if err != nil {
		return nil, err
	}
	if err := e.ensureSchema(ctx, db); err != nil {
		return nil, err
	}

	specEdges := graph.DedupeEdges(spec.Edges)
	summary := graph.Summary{
		ID:          graph.NewGraphID(),
		Title:       spec.Title,
		Description: spec.Description,
		GraphType:   spec.GraphType,
		NodeCount:   int64(len(spec.Nodes)),
		EdgeCount:   int64(len(specEdges)),
		CreatedAt:   time.Now().UTC(),
	}

	session := e.session(ctx, db, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			CREATE (:Graph {
				id: $id, title: $title, description: $description,
				graph_type: $graph_type, node_count: $node_count,
				edge_count: $edge_count, created_at: $created_at
			})`,
			map[string]any{
				"id":          summary.ID,
				"title":       summary.Title,
				"description": summary.Description,
				"graph_type":  summary.GraphType,
				"node_count":  summary.NodeCount,
				"edge_count":  summary.EdgeCount,
				"created_at":  summary.CreatedAt.Format(time.RFC3339Nano),
			})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		for start := 0; start < len(spec.Nodes); start += e.opts.WriteBatchSize {
			end := min(start+e.opts.WriteBatchSize, len(spec.Nodes))
			rows := make([]map[string]any, 0, end-start)
			for _, n := range spec.Nodes[start:end] {
				rows = append(rows, map[string]any{
					"node_id":    n.ID,
					"label":      n.Label,
					"node_type":  n.Type,
					"properties": graph.MarshalProperties(n.Properties),
				})
			}
			res, err := tx.Run(ctx, `
				UNWIND $rows AS r
				CREATE (:GraphNode {
					graph_id: $graph_id, node_id: r.node_id, label: r.label,
					node_type: r.node_type, properties: r.properties
				})`,
				map[string]any{"graph_id": summary.ID, "rows": rows})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		for start := 0; start < len(specEdges); start += e.opts.WriteBatchSize {
			end := min(start+e.opts.WriteBatchSize, len(specEdges))
			rows := make([]map[string]any, 0, end-start)
			for _, edge := range specEdges[start:end] {
				rows = append(rows, map[string]any{
					"source_id":  edge.Source,
					"target_id":  edge.Target,
					"edge_type":  edge.Type,
					"label":      edge.Label,
					"properties": graph.MarshalProperties(edge.Properties),
				})
			}
			res, err := tx.Run(ctx, `
				UNWIND $rows AS r
				MATCH (s:GraphNode {graph_id: $graph_id, node_id: r.source_id})
				MATCH (t:GraphNode {graph_id: $graph_id, node_id: r.target_id})
				CREATE (s)-[:CONNECTED_TO {
					edge_type: r.edge_type, label: r.label, properties: r.properties
				}]->(t)`,
				map[string]any{"graph_id": summary.ID, "rows": rows})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, e.translate(err)
	}
	return &summary, nil
}

// DeleteGraph implements ports.Engine.
func (e *Engine) DeleteGraph(ctx context.Context, database, graphID string) error {
	db, err := e.resolveDatabase(database)
	if err != nil {
		return err
	}
	session := e.session(ctx, db, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := e.fetchSummary(ctx, tx, graphID); err != nil {
			return nil, err
		}
		res, err := tx.Run(ctx,
			`MATCH (n:GraphNode {graph_id: $graph_id}) DETACH DELETE n`,
			map[string]any{"graph_id": graphID})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		res, err = tx.Run(ctx,
			`MATCH (g:Graph {id: $graph_id}) DELETE g`,
			map[string]any{"graph_id": graphID})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return e.translate(err)
}

// GetNodeNeighbors implements ports.Engine. Expansion is undirected; the
// hop bound is inlined because Bolt cannot parameterise variable-length
// pattern bounds. The caller has validated hops.
func (e *Engine) GetNodeNeighbors(ctx context.Context, database, graphID, nodeID string, hops int) (*graph.Data, error) {
	db, err := e.resolveDatabase(database)
	if err != nil {
		return nil, err
	}
	session := e.session(ctx, db, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		summary, err := e.fetchSummary(ctx, tx, graphID)
		if err != nil {
			return nil, err
		}
		source, err := e.fetchNode(ctx, tx, graphID, nodeID)
		if err != nil {
			return nil, err
		}

		data := &graph.Data{Summary: *summary, Nodes: []graph.Node{*source}, Edges: []graph.Edge{}}
		ids := []string{nodeID}

		query := fmt.Sprintf(`
			MATCH (s:GraphNode {graph_id: $graph_id, node_id: $node_id})
			MATCH (s)-[:CONNECTED_TO*1..%d]-(n:GraphNode {graph_id: $graph_id})
			WHERE n.node_id <> $node_id
			RETURN DISTINCT n.node_id AS node_id, n.label AS label,
			       n.node_type AS node_type, n.properties AS properties`, hops)
		res, err := tx.Run(ctx, query, map[string]any{"graph_id": graphID, "node_id": nodeID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			n := nodeFromRecord(record)
			data.Nodes = append(data.Nodes, n)
			ids = append(ids, n.ID)
		}

		res, err = tx.Run(ctx, `
			MATCH (s:GraphNode {graph_id: $graph_id})-[r:CONNECTED_TO]->(t:GraphNode {graph_id: $graph_id})
			WHERE s.node_id IN $ids AND t.node_id IN $ids
			RETURN s.node_id AS source_id, t.node_id AS target_id,
			       r.edge_type AS edge_type, r.label AS label, r.properties AS properties`,
			map[string]any{"graph_id": graphID, "ids": ids})
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			data.Edges = append(data.Edges, edgeFromRecord(record))
		}
		return data, nil
	})
	if err != nil {
		return nil, e.translate(err)
	}
	return result.(*graph.Data), nil
}

// ComputeImpact implements ports.Engine. The traversal follows edge
// direction only, and min(length(p)) collapses multiple paths to the
// shortest-hop level. The depth bound is inlined like the neighbour bound.
func (e *Engine) ComputeImpact(ctx context.Context, database, graphID, sourceID string, depth int) (*graph.ImpactResult, error) {
	db, err := e.resolveDatabase(database)
	if err != nil {
		return nil, err
	}
	session := e.session(ctx, db, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := e.fetchSummary(ctx, tx, graphID); err != nil {
			return nil, err
		}
		if _, err := e.fetchNode(ctx, tx, graphID, sourceID); err != nil {
			return nil, err
		}

		query := fmt.Sprintf(`
			MATCH (s:GraphNode {graph_id: $graph_id, node_id: $source_id})
			MATCH p = (s)-[:CONNECTED_TO*1..%d]->(n:GraphNode {graph_id: $graph_id})
			WHERE n.node_id <> $source_id
			RETURN n.node_id AS node_id, min(length(p)) AS level
			ORDER BY level ASC, node_id ASC`, depth)
		res, err := tx.Run(ctx, query, map[string]any{"graph_id": graphID, "source_id": sourceID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		impacted := make([]graph.ImpactedNode, 0, len(records))
		for _, record := range records {
			impacted = append(impacted, graph.ImpactedNode{
				NodeID: stringValue(record, "node_id"),
				Level:  int(intValue(record, "level")),
			})
		}
		return &graph.ImpactResult{ImpactedNodes: impacted}, nil
	})
	if err != nil {
		return nil, e.translate(err)
	}
	return result.(*graph.ImpactResult), nil
}

// RecountGraph implements ports.Engine.
func (e *Engine) RecountGraph(ctx context.Context, database, graphID string) (*graph.Summary, error) {
	db, err := e.resolveDatabase(database)
	if err != nil {
		return nil, err
	}
	session := e.session(ctx, db, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := e.fetchSummary(ctx, tx, graphID); err != nil {
			return nil, err
		}
		res, err := tx.Run(ctx, `
			MATCH (g:Graph {id: $graph_id})
			OPTIONAL MATCH (n:GraphNode {graph_id: $graph_id})
			WITH g, count(n) AS nodes
			OPTIONAL MATCH (:GraphNode {graph_id: $graph_id})-[r:CONNECTED_TO]->(:GraphNode {graph_id: $graph_id})
			WITH g, nodes, count(r) AS edges
			SET g.node_count = nodes, g.edge_count = edges
			RETURN g.id AS id, g.title AS title, g.description AS description,
			       g.graph_type AS graph_type, g.node_count AS node_count,
			       g.edge_count AS edge_count, g.created_at AS created_at`,
			map[string]any{"graph_id": graphID})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		summary := summaryFromRecord(record)
		return &summary, nil
	})
	if err != nil {
		return nil, e.translate(err)
	}
	return result.(*graph.Summary), nil
}

// ExecuteRawQuery implements ports.Engine. The query runs verbatim in an
// auto-commit transaction; values are flattened into JSON-friendly shapes
// before they leave the adapter.
func (e *Engine) ExecuteRawQuery(ctx context.Context, database, query string) (*graph.QueryResult, error) {
	db, err := e.resolveDatabase(database)
	if err != nil {
		return nil, err
	}
	session := e.session(ctx, db, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	started := time.Now()
	res, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, e.translate(err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, e.translate(err)
	}

	out := &graph.QueryResult{Rows: [][]any{}}
	if keys, err := res.Keys(); err == nil {
		out.Columns = keys
	}
	for _, record := range records {
		row := make([]any, len(record.Values))
		for i, v := range record.Values {
			row[i] = flattenValue(v)
		}
		out.Rows = append(out.Rows, row)
	}
	out.ElapsedMs = time.Since(started).Milliseconds()
	return out, nil
}

// fetchSummary loads a graph's metadata inside the given transaction,
// mapping an absent metadata node onto NotFound.
func (e *Engine) fetchSummary(ctx context.Context, tx neo4j.ManagedTransaction, graphID string) (*graph.Summary, error) {
	res, err := tx.Run(ctx, `
		MATCH (g:Graph {id: $graph_id})
		RETURN g.id AS id, g.title AS title, g.description AS description,
		       g.graph_type AS graph_type, g.node_count AS node_count,
		       g.edge_count AS edge_count, g.created_at AS created_at`,
		map[string]any{"graph_id": graphID})
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("graph %q not found", graphID)
	}
	summary := summaryFromRecord(records[0])
	return &summary, nil
}

// fetchNode loads one node of a graph, mapping absence onto NotFound.
func (e *Engine) fetchNode(ctx context.Context, tx neo4j.ManagedTransaction, graphID, nodeID string) (*graph.Node, error) {
	res, err := tx.Run(ctx, `
		MATCH (n:GraphNode {graph_id: $graph_id, node_id: $node_id})
		RETURN n.node_id AS node_id, n.label AS label,
		       n.node_type AS node_type, n.properties AS properties`,
		map[string]any{"graph_id": graphID, "node_id": nodeID})
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("node %q not found in graph %q", nodeID, graphID)
	}
	node := nodeFromRecord(records[0])
	return &node, nil
}

// ensureSchema creates the lookup indexes once per database. Neo4j and
// Memgraph use different DDL for the same thing.
func (e *Engine) ensureSchema(ctx context.Context, database string) error {
	e.mu.Lock()
	done := e.prepared[database]
	e.mu.Unlock()
	if done {
		return nil
	}

	statements := []string{
		"CREATE INDEX graph_meta_id IF NOT EXISTS FOR (g:Graph) ON (g.id)",
		"CREATE INDEX graph_node_lookup IF NOT EXISTS FOR (n:GraphNode) ON (n.graph_id, n.node_id)",
	}
	if !e.opts.MultiDatabase {
		statements = []string{
			"CREATE INDEX ON :Graph(id)",
			"CREATE INDEX ON :GraphNode(graph_id)",
		}
	}

	session := e.session(ctx, database, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	// Index DDL is best effort: Memgraph reports re-creating an existing
	// index as an error, and a failed index never blocks a write.
	for _, stmt := range statements {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			continue
		}
		_, _ = res.Consume(ctx)
	}

	e.mu.Lock()
	e.prepared[database] = true
	e.mu.Unlock()
	return nil
}
