// Package postgres implements the storage engine contract on a relational
// schema: one metadata table plus node and edge tables keyed by graph id.
// Traversals run as iterative frontier expansions inside a transaction
// instead of a single recursive query, which keeps memory bounded on dense
// graphs.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"graphserver/application/ports"
	"graphserver/domain/graph"
	apperrors "graphserver/pkg/errors"
)

// The widest insert carries 6 columns per row; 333 rows keeps a statement
// at no more than 1998 bind parameters.
const insertBatchSize = 333

// Frontier-expansion statements, executed once per level with
// (graphID, level). Every `$n` placeholder must be referenced: the extended
// protocol rejects a statement whose parameter type it cannot infer.
const (
	neighborExpandQuery = `
		INSERT INTO frontier (node_id, level)
		SELECT DISTINCT x.other, $2 FROM (
			SELECT e.target_id AS other
			FROM graph_edges e JOIN frontier f ON f.node_id = e.source_id AND f.level = $2 - 1
			WHERE e.graph_id = $1
			UNION
			SELECT e.source_id
			FROM graph_edges e JOIN frontier f ON f.node_id = e.target_id AND f.level = $2 - 1
			WHERE e.graph_id = $1
		) x
		ON CONFLICT (node_id) DO NOTHING`

	impactExpandQuery = `
		INSERT INTO frontier (node_id, level)
		SELECT DISTINCT e.target_id, $2
		FROM graph_edges e JOIN frontier f ON f.node_id = e.source_id AND f.level = $2 - 1
		WHERE e.graph_id = $1
		ON CONFLICT (node_id) DO NOTHING`
)

const schema = `
CREATE TABLE IF NOT EXISTS graphs (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	graph_type  TEXT NOT NULL DEFAULT '',
	node_count  BIGINT NOT NULL DEFAULT 0,
	edge_count  BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS graph_nodes (
	graph_id   TEXT NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
	node_id    TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	node_type  TEXT NOT NULL DEFAULT '',
	properties JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (graph_id, node_id)
);

CREATE TABLE IF NOT EXISTS graph_edges (
	graph_id   TEXT NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
	source_id  TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	edge_type  TEXT NOT NULL DEFAULT '',
	label      TEXT NOT NULL DEFAULT '',
	properties JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (graph_id, source_id, target_id)
);

CREATE INDEX IF NOT EXISTS graph_edges_forward ON graph_edges (graph_id, source_id);
CREATE INDEX IF NOT EXISTS graph_edges_reverse ON graph_edges (graph_id, target_id);
`

// Options configures the relational engine.
type Options struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Engine serves the storage contract from a single Postgres database. The
// sqlx pool is shared; transactions are opened per write or traversal.
type Engine struct {
	db *sqlx.DB

	currentOnce sync.Once
	currentName string
	currentErr  error
}

var _ ports.Engine = (*Engine)(nil)

// New opens the connection pool and applies the schema. Postgres must be
// reachable at construction time; a dead database fails boot instead of
// surfacing on the first request.
func New(ctx context.Context, opts Options) (*Engine, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", opts.DSN)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable("postgres", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.NewInternal("apply relational schema", err)
	}

	e := &Engine{db: db}
	// Resolve the pool's database name now so Capabilities can report it
	// without a context.
	if _, err := e.currentDatabase(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// Capabilities implements ports.Engine.
func (e *Engine) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		MultiDatabase:   false,
		DefaultDatabase: e.currentName,
		RawQuery:        true,
		RawQueryDialect: "sql",
	}
}

// Ping implements ports.Engine.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return apperrors.NewStoreUnavailable("postgres", err)
	}
	return nil
}

// Close implements ports.Engine.
func (e *Engine) Close(ctx context.Context) error {
	return e.db.Close()
}

// currentDatabase resolves the pool's database name once. Connection pools
// are bound to one database, so per-request selection is not supported.
func (e *Engine) currentDatabase(ctx context.Context) (string, error) {
	e.currentOnce.Do(func() {
		e.currentErr = e.db.GetContext(ctx, &e.currentName, "SELECT current_database()")
	})
	if e.currentErr != nil {
		return "", translate(e.currentErr)
	}
	return e.currentName, nil
}

func (e *Engine) checkDatabase(ctx context.Context, database string) error {
	if database == "" {
		return nil
	}
	current, err := e.currentDatabase(ctx)
	if err != nil {
		return err
	}
	if database != current {
		return apperrors.NewNotFound("database %q not found, pool is bound to %q", database, current)
	}
	return nil
}

// ListDatabases implements ports.Engine. The catalog is listed for
// visibility, but only the pool's own database is selectable.
func (e *Engine) ListDatabases(ctx context.Context) ([]graph.DatabaseInfo, error) {
	current, err := e.currentDatabase(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	err = e.db.SelectContext(ctx, &names,
		"SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname")
	if err != nil {
		return nil, translate(err)
	}

	infos := make([]graph.DatabaseInfo, 0, len(names))
	for _, name := range names {
		status := "online"
		if name != current {
			status = "unreachable"
		}
		infos = append(infos, graph.DatabaseInfo{Name: name, Default: name == current, Status: status})
	}
	return infos, nil
}

type graphRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	GraphType   string    `db:"graph_type"`
	NodeCount   int64     `db:"node_count"`
	EdgeCount   int64     `db:"edge_count"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r graphRow) summary() graph.Summary {
	return graph.Summary{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		GraphType:   r.GraphType,
		NodeCount:   r.NodeCount,
		EdgeCount:   r.EdgeCount,
		CreatedAt:   r.CreatedAt,
	}
}

type nodeRow struct {
	GraphID    string `db:"graph_id"`
	NodeID     string `db:"node_id"`
	Label      string `db:"label"`
	NodeType   string `db:"node_type"`
	Properties []byte `db:"properties"`
}

func (r nodeRow) node() graph.Node {
	return graph.Node{
		ID:         r.NodeID,
		Label:      r.Label,
		Type:       r.NodeType,
		Properties: graph.UnmarshalProperties(string(r.Properties)),
	}
}

type edgeRow struct {
	GraphID    string `db:"graph_id"`
	SourceID   string `db:"source_id"`
	TargetID   string `db:"target_id"`
	EdgeType   string `db:"edge_type"`
	Label      string `db:"label"`
	Properties []byte `db:"properties"`
}

func (r edgeRow) edge() graph.Edge {
	return graph.Edge{
		Source:     r.SourceID,
		Target:     r.TargetID,
		Type:       r.EdgeType,
		Label:      r.Label,
		Properties: graph.UnmarshalProperties(string(r.Properties)),
	}
}

// ListGraphs implements ports.Engine.
func (e *Engine) ListGraphs(ctx context.Context, database string) ([]graph.Summary, error) {
	if err := e.checkDatabase(ctx, database); err != nil {
		return nil, err
	}
	var rows []graphRow
	err := e.db.SelectContext(ctx, &rows, "SELECT * FROM graphs ORDER BY created_at DESC")
	if err != nil {
		return nil, translate(err)
	}
	summaries := make([]graph.Summary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, r.summary())
	}
	return summaries, nil
}

func (e *Engine) getSummary(ctx context.Context, q sqlx.QueryerContext, graphID string) (*graph.Summary, error) {
	var row graphRow
	err := sqlx.GetContext(ctx, q, &row, "SELECT * FROM graphs WHERE id = $1", graphID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("graph %q not found", graphID)
	}
	if err != nil {
		return nil, translate(err)
	}
	summary := row.summary()
	return &summary, nil
}

// GetGraph implements ports.Engine.
func (e *Engine) GetGraph(ctx context.Context, database, graphID string) (*graph.Data, error) {
	if err := e.checkDatabase(ctx, database); err != nil {
		return nil, err
	}
	summary, err := e.getSummary(ctx, e.db, graphID)
	if err != nil {
		return nil, err
	}

	data := &graph.Data{Summary: *summary, Nodes: []graph.Node{}, Edges: []graph.Edge{}}

	var nodes []nodeRow
	err = e.db.SelectContext(ctx, &nodes, "SELECT * FROM graph_nodes WHERE graph_id = $1", graphID)
	if err != nil {
		return nil, translate(err)
	}
	for _, r := range nodes {
		data.Nodes = append(data.Nodes, r.node())
	}

	var edges []edgeRow
	err = e.db.SelectContext(ctx, &edges, "SELECT * FROM graph_edges WHERE graph_id = $1", graphID)
	if err != nil {
		return nil, translate(err)
	}
	for _, r := range edges {
		data.Edges = append(data.Edges, r.edge())
	}
	return data, nil
}

// GetGraphStats implements ports.Engine.
func (e *Engine) GetGraphStats(ctx context.Context, database, graphID string) (*graph.Stats, error) {
	if err := e.checkDatabase(ctx, database); err != nil {
		return nil, err
	}
	if _, err := e.getSummary(ctx, e.db, graphID); err != nil {
		return nil, err
	}

	stats := &graph.Stats{NodeTypes: map[string]int64{}, EdgeTypes: map[string]int64{}}

	type typeCount struct {
		Type  string `db:"t"`
		Count int64  `db:"c"`
	}
	var counts []typeCount
	err := e.db.SelectContext(ctx, &counts,
		"SELECT node_type AS t, count(*) AS c FROM graph_nodes WHERE graph_id = $1 GROUP BY node_type", graphID)
	if err != nil {
		return nil, translate(err)
	}
	for _, tc := range counts {
		stats.NodeTypes[tc.Type] = tc.Count
		stats.NodeCount += tc.Count
	}

	counts = counts[:0]
	err = e.db.SelectContext(ctx, &counts,
		"SELECT edge_type AS t, count(*) AS c FROM graph_edges WHERE graph_id = $1 GROUP BY edge_type", graphID)
	if err != nil {
		return nil, translate(err)
	}
	for _, tc := range counts {
		stats.EdgeTypes[tc.Type] = tc.Count
		stats.EdgeCount += tc.Count
	}

	if stats.NodeCount > 0 {
		stats.AvgDegree = float64(stats.EdgeCount) / float64(stats.NodeCount)
	}
	return stats, nil
}

// CreateGraph implements ports.Engine. All inserts share one transaction.
func (e *Engine) CreateGraph(ctx context.Context, database string, spec ports.CreateGraphSpec) (*graph.Summary, error) {
	if err := e.checkDatabase(ctx, database); err != nil {
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

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO graphs (id, title, description, graph_type, node_count, edge_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		summary.ID, summary.Title, summary.Description, summary.GraphType,
		summary.NodeCount, summary.EdgeCount, summary.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}

	for start := 0; start < len(spec.Nodes); start += insertBatchSize {
		end := min(start+insertBatchSize, len(spec.Nodes))
		rows := make([]nodeRow, 0, end-start)
		for _, n := range spec.Nodes[start:end] {
			rows = append(rows, nodeRow{
				GraphID:    summary.ID,
				NodeID:     n.ID,
				Label:      n.Label,
				NodeType:   n.Type,
				Properties: []byte(graph.MarshalProperties(n.Properties)),
			})
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO graph_nodes (graph_id, node_id, label, node_type, properties)
			VALUES (:graph_id, :node_id, :label, :node_type, :properties)`, rows)
		if err != nil {
			return nil, translate(err)
		}
	}

	for start := 0; start < len(specEdges); start += insertBatchSize {
		end := min(start+insertBatchSize, len(specEdges))
		rows := make([]edgeRow, 0, end-start)
		for _, edge := range specEdges[start:end] {
			rows = append(rows, edgeRow{
				GraphID:    summary.ID,
				SourceID:   edge.Source,
				TargetID:   edge.Target,
				EdgeType:   edge.Type,
				Label:      edge.Label,
				Properties: []byte(graph.MarshalProperties(edge.Properties)),
			})
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO graph_edges (graph_id, source_id, target_id, edge_type, label, properties)
			VALUES (:graph_id, :source_id, :target_id, :edge_type, :label, :properties)`, rows)
		if err != nil {
			return nil, translate(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, translate(err)
	}
	return &summary, nil
}

// DeleteGraph implements ports.Engine. Node and edge rows go with the
// metadata row through the ON DELETE CASCADE constraints.
func (e *Engine) DeleteGraph(ctx context.Context, database, graphID string) error {
	if err := e.checkDatabase(ctx, database); err != nil {
		return err
	}
	res, err := e.db.ExecContext(ctx, "DELETE FROM graphs WHERE id = $1", graphID)
	if err != nil {
		return translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if affected == 0 {
		return apperrors.NewNotFound("graph %q not found", graphID)
	}
	return nil
}

// GetNodeNeighbors implements ports.Engine. The undirected expansion uses
// the same frontier loop as ComputeImpact, following edges both ways.
func (e *Engine) GetNodeNeighbors(ctx context.Context, database, graphID, nodeID string, hops int) (*graph.Data, error) {
	if err := e.checkDatabase(ctx, database); err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	defer tx.Rollback()

	summary, err := e.getSummary(ctx, tx, graphID)
	if err != nil {
		return nil, err
	}
	if err := e.seedFrontier(ctx, tx, graphID, nodeID); err != nil {
		return nil, err
	}

	for d := 1; d <= hops; d++ {
		res, err := tx.ExecContext(ctx, neighborExpandQuery, graphID, d)
		if err != nil {
			return nil, translate(err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			break
		}
	}

	data := &graph.Data{Summary: *summary, Nodes: []graph.Node{}, Edges: []graph.Edge{}}

	var nodes []nodeRow
	err = tx.SelectContext(ctx, &nodes, `
		SELECT n.* FROM graph_nodes n JOIN frontier f ON f.node_id = n.node_id
		WHERE n.graph_id = $1`, graphID)
	if err != nil {
		return nil, translate(err)
	}
	for _, r := range nodes {
		data.Nodes = append(data.Nodes, r.node())
	}

	var edges []edgeRow
	err = tx.SelectContext(ctx, &edges, `
		SELECT e.* FROM graph_edges e
		JOIN frontier s ON s.node_id = e.source_id
		JOIN frontier t ON t.node_id = e.target_id
		WHERE e.graph_id = $1`, graphID)
	if err != nil {
		return nil, translate(err)
	}
	for _, r := range edges {
		data.Edges = append(data.Edges, r.edge())
	}

	if err := tx.Commit(); err != nil {
		return nil, translate(err)
	}
	return data, nil
}

// ComputeImpact implements ports.Engine. Each iteration advances the BFS
// frontier one level; ON CONFLICT DO NOTHING keeps the first (shortest)
// level a node was reached at. A recursive CTE would enumerate every path
// before deduplicating, which explodes on dense graphs.
func (e *Engine) ComputeImpact(ctx context.Context, database, graphID, sourceID string, depth int) (*graph.ImpactResult, error) {
	if err := e.checkDatabase(ctx, database); err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	defer tx.Rollback()

	if _, err := e.getSummary(ctx, tx, graphID); err != nil {
		return nil, err
	}
	if err := e.seedFrontier(ctx, tx, graphID, sourceID); err != nil {
		return nil, err
	}

	for d := 1; d <= depth; d++ {
		res, err := tx.ExecContext(ctx, impactExpandQuery, graphID, d)
		if err != nil {
			return nil, translate(err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			break
		}
	}

	type visitedRow struct {
		NodeID string `db:"node_id"`
		Level  int    `db:"level"`
	}
	var visited []visitedRow
	err = tx.SelectContext(ctx, &visited,
		"SELECT node_id, level FROM frontier WHERE level > 0 ORDER BY level, node_id")
	if err != nil {
		return nil, translate(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, translate(err)
	}

	impacted := make([]graph.ImpactedNode, 0, len(visited))
	for _, v := range visited {
		impacted = append(impacted, graph.ImpactedNode{NodeID: v.NodeID, Level: v.Level})
	}
	return &graph.ImpactResult{ImpactedNodes: impacted}, nil
}

// seedFrontier creates the per-transaction visited table and plants the
// source node at level 0. A missing source is NotFound.
func (e *Engine) seedFrontier(ctx context.Context, tx *sqlx.Tx, graphID, nodeID string) error {
	var exists bool
	err := tx.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM graph_nodes WHERE graph_id = $1 AND node_id = $2)", graphID, nodeID)
	if err != nil {
		return translate(err)
	}
	if !exists {
		return apperrors.NewNotFound("node %q not found in graph %q", nodeID, graphID)
	}

	_, err = tx.ExecContext(ctx,
		"CREATE TEMPORARY TABLE frontier (node_id TEXT PRIMARY KEY, level INT NOT NULL) ON COMMIT DROP")
	if err != nil {
		return translate(err)
	}
	_, err = tx.ExecContext(ctx, "INSERT INTO frontier (node_id, level) VALUES ($1, 0)", nodeID)
	if err != nil {
		return translate(err)
	}
	return nil
}

// RecountGraph implements ports.Engine.
func (e *Engine) RecountGraph(ctx context.Context, database, graphID string) (*graph.Summary, error) {
	if err := e.checkDatabase(ctx, database); err != nil {
		return nil, err
	}

	var row graphRow
	err := e.db.GetContext(ctx, &row, `
		UPDATE graphs SET
			node_count = (SELECT count(*) FROM graph_nodes WHERE graph_id = $1),
			edge_count = (SELECT count(*) FROM graph_edges WHERE graph_id = $1)
		WHERE id = $1
		RETURNING *`, graphID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("graph %q not found", graphID)
	}
	if err != nil {
		return nil, translate(err)
	}
	summary := row.summary()
	return &summary, nil
}

// ExecuteRawQuery implements ports.Engine. Statements run verbatim;
// writes simply yield zero rows.
func (e *Engine) ExecuteRawQuery(ctx context.Context, database, query string) (*graph.QueryResult, error) {
	if err := e.checkDatabase(ctx, database); err != nil {
		return nil, err
	}

	started := time.Now()
	rows, err := e.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := &graph.QueryResult{Rows: [][]any{}}
	if cols, err := rows.Columns(); err == nil {
		out.Columns = cols
	}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, translate(err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
				continue
			}
			row[i] = v
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	out.ElapsedMs = time.Since(started).Milliseconds()
	return out, nil
}

// translate maps driver failures onto the application error taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return apperrors.NewConflict("duplicate key: %s", pqErr.Detail)
		case pqErr.Code == "23503":
			return apperrors.NewInvalid("constraint violation: %s", pqErr.Message)
		case pqErr.Code.Class() == "42":
			return apperrors.NewInvalid("%s", pqErr.Message)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			return apperrors.NewStoreUnavailable("postgres", err)
		}
		return apperrors.NewInternal(fmt.Sprintf("postgres error %s", pqErr.Code), err)
	}

	if errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		strings.Contains(err.Error(), "connection refused") {
		return apperrors.NewStoreUnavailable("postgres", err)
	}
	return apperrors.NewInternal("relational store request failed", err)
}
