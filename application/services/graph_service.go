// Package services contains the application service that ties the engine
// registry, the result cache, the Mermaid converter and the impact policy
// together behind one request-facing API.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"graphserver/application/impact"
	"graphserver/application/ports"
	"graphserver/application/registry"
	"graphserver/domain/graph"
	"graphserver/domain/mermaid"
	"graphserver/infrastructure/cache"
	apperrors "graphserver/pkg/errors"
)

// Cached operation names; part of the fingerprint, stable across releases.
const (
	opListGraphs = "list_graphs"
	opGetGraph   = "get_graph"
	opStats      = "stats"
	opNeighbors  = "neighbors"
)

// Neighbourhood expansion accepts the same hop range as impact analysis.
const maxNeighborHops = impact.MaxDepth

// RequestOptions carry the per-request routing parameters extracted from
// the query string.
type RequestOptions struct {
	// Engine name; empty selects the configured default.
	Engine string
	// Database namespace; empty selects the adapter-specific default.
	Database string
	// NoCache forces a fresh upstream call and refreshes the cached entry.
	NoCache bool
}

// CreateGraphRequest is the write payload. Either MermaidCode or the
// explicit Nodes/Edges pair must be supplied.
type CreateGraphRequest struct {
	Title       string       `json:"title" validate:"required,max=300"`
	Description string       `json:"description" validate:"max=2000"`
	GraphType   string       `json:"graph_type" validate:"max=100"`
	MermaidCode string       `json:"mermaid_code"`
	Nodes       []graph.Node `json:"nodes"`
	Edges       []graph.Edge `json:"edges"`
}

// GraphService routes every graph operation to the engine selected by the
// request and funnels cacheable reads through the result cache.
type GraphService struct {
	registry *registry.Registry
	cache    *cache.ResultCache
	validate *validator.Validate
	logger   *zap.Logger
}

// NewGraphService creates a GraphService.
func NewGraphService(reg *registry.Registry, resultCache *cache.ResultCache, logger *zap.Logger) *GraphService {
	return &GraphService{
		registry: reg,
		cache:    resultCache,
		validate: validator.New(),
		logger:   logger,
	}
}

// Engines returns the registered engine names and the default.
func (s *GraphService) Engines() (available []string, defaultName string) {
	return s.registry.Names(), s.registry.Default()
}

// CacheStats exposes the cache counters for the introspection endpoint.
func (s *GraphService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ListDatabases lists the namespaces of the selected engine. Not cached:
// the call is cheap and namespace changes happen out of band.
func (s *GraphService) ListDatabases(ctx context.Context, opts RequestOptions) (string, []graph.DatabaseInfo, error) {
	name, engine, err := s.registry.Resolve(opts.Engine)
	if err != nil {
		return "", nil, err
	}
	infos, err := engine.ListDatabases(ctx)
	if err != nil {
		return name, nil, err
	}
	return name, infos, nil
}

// resolve binds the request to an engine and canonicalises the database
// selector: the empty selector becomes the engine's default namespace, so
// cache entries never split across the two spellings of the same database.
func (s *GraphService) resolve(opts RequestOptions) (name string, engine ports.Engine, database string, err error) {
	name, engine, err = s.registry.Resolve(opts.Engine)
	if err != nil {
		return "", nil, "", err
	}
	database = opts.Database
	if database == "" {
		database = engine.Capabilities().DefaultDatabase
	}
	return name, engine, database, nil
}

// ListGraphs returns the serialised graph summaries for the selected
// engine and database.
func (s *GraphService) ListGraphs(ctx context.Context, opts RequestOptions) (string, []byte, cache.Outcome, error) {
	return s.cachedRead(ctx, opts, "", opListGraphs, nil, func(ctx context.Context, engine ports.Engine, database string) (any, error) {
		return engine.ListGraphs(ctx, database)
	})
}

// GetGraph returns the serialised full snapshot of one graph.
func (s *GraphService) GetGraph(ctx context.Context, opts RequestOptions, graphID string) (string, []byte, cache.Outcome, error) {
	return s.cachedRead(ctx, opts, graphID, opGetGraph, nil, func(ctx context.Context, engine ports.Engine, database string) (any, error) {
		return engine.GetGraph(ctx, database, graphID)
	})
}

// GetGraphStats returns the serialised stats of one graph.
func (s *GraphService) GetGraphStats(ctx context.Context, opts RequestOptions, graphID string) (string, []byte, cache.Outcome, error) {
	return s.cachedRead(ctx, opts, graphID, opStats, nil, func(ctx context.Context, engine ports.Engine, database string) (any, error) {
		return engine.GetGraphStats(ctx, database, graphID)
	})
}

// GetNodeNeighbors returns the serialised N-hop neighbourhood of a node.
func (s *GraphService) GetNodeNeighbors(ctx context.Context, opts RequestOptions, graphID, nodeID string, hops int) (string, []byte, cache.Outcome, error) {
	if hops < 1 || hops > maxNeighborHops {
		return "", nil, cache.OutcomeNone, apperrors.NewInvalid("hops must be between 1 and %d", maxNeighborHops)
	}
	params := []string{nodeID, strconv.Itoa(hops)}
	return s.cachedRead(ctx, opts, graphID, opNeighbors, params, func(ctx context.Context, engine ports.Engine, database string) (any, error) {
		return engine.GetNodeNeighbors(ctx, database, graphID, nodeID, hops)
	})
}

// cachedRead resolves the engine, then serves the read through the result
// cache: fingerprint lookup, single-flight upstream call on a miss, forced
// refresh on bypass.
func (s *GraphService) cachedRead(
	ctx context.Context,
	opts RequestOptions,
	graphID, operation string,
	params []string,
	fetch func(ctx context.Context, engine ports.Engine, database string) (any, error),
) (string, []byte, cache.Outcome, error) {
	name, engine, database, err := s.resolve(opts)
	if err != nil {
		return "", nil, cache.OutcomeNone, err
	}

	key := cache.Fingerprint(name, database, graphID, operation, params...)
	body, outcome, err := s.cache.GetOrLoad(ctx, key, opts.NoCache, func(ctx context.Context) ([]byte, error) {
		result, err := fetch(ctx, engine, database)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})
	if err != nil {
		return name, nil, outcome, err
	}
	return name, body, outcome, nil
}

// CreateGraph validates the payload, converts Mermaid text when present,
// persists through the selected engine and invalidates affected cache
// entries.
func (s *GraphService) CreateGraph(ctx context.Context, opts RequestOptions, req CreateGraphRequest) (string, *graph.Summary, error) {
	name, engine, database, err := s.resolve(opts)
	if err != nil {
		return "", nil, err
	}

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return name, nil, apperrors.NewInvalid("field %q failed validation rule %q", verrs[0].Field(), verrs[0].Tag())
		}
		return name, nil, apperrors.NewInvalid("invalid create payload")
	}

	nodes, edges := req.Nodes, req.Edges
	if strings.TrimSpace(req.MermaidCode) != "" {
		nodes, edges, err = mermaid.Parse(req.MermaidCode)
		if err != nil {
			var perr *mermaid.ParseError
			if errors.As(err, &perr) {
				return name, nil, apperrors.NewInvalid("%s", perr.Error())
			}
			return name, nil, apperrors.NewInvalid("unparsable mermaid code")
		}
	}

	if edge, dangling := graph.ValidateEndpoints(nodes, edges); dangling {
		return name, nil, apperrors.NewInvalid("edge (%s -> %s) references a node outside the graph", edge.Source, edge.Target)
	}
	edges = graph.DedupeEdges(edges)

	summary, err := engine.CreateGraph(ctx, database, ports.CreateGraphSpec{
		Title:       req.Title,
		Description: req.Description,
		GraphType:   req.GraphType,
		Nodes:       nodes,
		Edges:       edges,
	})
	if err != nil {
		return name, nil, err
	}

	s.cache.InvalidateGraph(name, database, summary.ID)
	s.logger.Info("graph created",
		zap.String("engine", name),
		zap.String("graphID", summary.ID),
		zap.Int64("nodes", summary.NodeCount),
		zap.Int64("edges", summary.EdgeCount),
	)
	return name, summary, nil
}

// DeleteGraph removes a graph and invalidates every cache entry that
// references it.
func (s *GraphService) DeleteGraph(ctx context.Context, opts RequestOptions, graphID string) (string, error) {
	name, engine, database, err := s.resolve(opts)
	if err != nil {
		return "", err
	}
	if err := engine.DeleteGraph(ctx, database, graphID); err != nil {
		return name, err
	}
	s.cache.InvalidateGraph(name, database, graphID)
	s.logger.Info("graph deleted", zap.String("engine", name), zap.String("graphID", graphID))
	return name, nil
}

// RecountGraph recomputes the materialised counts of a graph and refreshes
// the cache entries that may hold the stale summary.
func (s *GraphService) RecountGraph(ctx context.Context, opts RequestOptions, graphID string) (string, *graph.Summary, error) {
	name, engine, database, err := s.resolve(opts)
	if err != nil {
		return "", nil, err
	}
	summary, err := engine.RecountGraph(ctx, database, graphID)
	if err != nil {
		return name, nil, err
	}
	s.cache.InvalidateGraph(name, database, graphID)
	return name, summary, nil
}

// ComputeImpact runs the bounded forward BFS. Impact is never cached: the
// POST surface is used for benchmarking the engines against each other.
func (s *GraphService) ComputeImpact(ctx context.Context, opts RequestOptions, graphID, nodeID string, depth int) (string, *graph.ImpactResult, error) {
	name, engine, database, err := s.resolve(opts)
	if err != nil {
		return "", nil, err
	}
	if nodeID == "" {
		return name, nil, apperrors.NewInvalid("nodeId is required")
	}
	result, err := impact.Compute(ctx, engine, database, graphID, nodeID, depth)
	if err != nil {
		return name, nil, err
	}
	result.Engine = name
	return name, result, nil
}

// ExecuteRawQuery runs dialect-specific query text on the selected engine,
// refusing queries that are plainly written for another dialect. Raw
// queries never touch the result cache.
func (s *GraphService) ExecuteRawQuery(ctx context.Context, opts RequestOptions, query string) (string, *graph.QueryResult, error) {
	name, engine, database, err := s.resolve(opts)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(query) == "" {
		return name, nil, apperrors.NewInvalid("query must not be empty")
	}

	caps := engine.Capabilities()
	if !caps.RawQuery {
		return name, nil, apperrors.NewNotSupported("engine %q does not support raw queries", name)
	}
	if wrong, want := dialectMismatch(caps.RawQueryDialect, query); wrong {
		return name, nil, apperrors.NewNotSupported("query looks like %s but engine %q speaks %s", want, name, caps.RawQueryDialect)
	}

	result, err := engine.ExecuteRawQuery(ctx, database, query)
	if err != nil {
		return name, nil, err
	}
	return name, result, nil
}

// dialectMismatch sniffs the leading keyword of a raw query and reports
// when it clearly belongs to the other dialect.
func dialectMismatch(dialect, query string) (mismatch bool, looksLike string) {
	fields := strings.Fields(strings.ToUpper(query))
	if len(fields) == 0 {
		return false, ""
	}
	head := fields[0]

	sqlKeywords := map[string]bool{"SELECT": true, "INSERT": true, "UPDATE": true, "TRUNCATE": true, "ALTER": true}
	cypherKeywords := map[string]bool{"MATCH": true, "MERGE": true, "UNWIND": true, "RETURN": true, "OPTIONAL": true}

	switch dialect {
	case "cypher":
		if sqlKeywords[head] {
			return true, "SQL"
		}
	case "sql":
		if cypherKeywords[head] {
			return true, "Cypher"
		}
	}
	return false, ""
}
