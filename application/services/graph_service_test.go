package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphserver/application/ports"
	"graphserver/application/ports/enginetest"
	"graphserver/application/registry"
	"graphserver/domain/graph"
	"graphserver/infrastructure/cache"
	apperrors "graphserver/pkg/errors"
)

func newService(t *testing.T, engines map[string]ports.Engine, defaultName string) *GraphService {
	t.Helper()
	reg, err := registry.New(engines, defaultName)
	require.NoError(t, err)
	return NewGraphService(reg, cache.New(cache.Config{}, zap.NewNop()), zap.NewNop())
}

func TestCreateFromMermaid(t *testing.T) {
	svc := newService(t, map[string]ports.Engine{"memory": enginetest.New()}, "memory")
	ctx := context.Background()

	name, summary, err := svc.CreateGraph(ctx, RequestOptions{}, CreateGraphRequest{
		Title:       "T",
		GraphType:   "flowchart",
		MermaidCode: "graph TD\nA-->B\nB-->C",
	})
	require.NoError(t, err)
	assert.Equal(t, "memory", name)
	assert.Equal(t, int64(3), summary.NodeCount)
	assert.Equal(t, int64(2), summary.EdgeCount)

	_, body, outcome, err := svc.GetGraph(ctx, RequestOptions{}, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, cache.OutcomeMiss, outcome)

	var data graph.Data
	require.NoError(t, json.Unmarshal(body, &data))
	assert.Len(t, data.Nodes, 3)
	assert.Len(t, data.Edges, 2)
}

func TestCreateValidation(t *testing.T) {
	svc := newService(t, map[string]ports.Engine{"memory": enginetest.New()}, "memory")
	ctx := context.Background()

	_, _, err := svc.CreateGraph(ctx, RequestOptions{}, CreateGraphRequest{Title: ""})
	assert.True(t, apperrors.IsInvalid(err))

	_, _, err = svc.CreateGraph(ctx, RequestOptions{}, CreateGraphRequest{
		Title:       "bad mermaid",
		MermaidCode: "A-->",
	})
	assert.True(t, apperrors.IsInvalid(err))

	_, _, err = svc.CreateGraph(ctx, RequestOptions{}, CreateGraphRequest{
		Title: "dangling edge",
		Nodes: []graph.Node{{ID: "a"}},
		Edges: []graph.Edge{{Source: "a", Target: "ghost"}},
	})
	assert.True(t, apperrors.IsInvalid(err))
}

func TestReadsCacheAndWritesInvalidate(t *testing.T) {
	svc := newService(t, map[string]ports.Engine{"memory": enginetest.New()}, "memory")
	ctx := context.Background()

	_, summary, err := svc.CreateGraph(ctx, RequestOptions{}, CreateGraphRequest{
		Title: "cached",
		Nodes: []graph.Node{{ID: "a"}, {ID: "b"}},
		Edges: []graph.Edge{{Source: "a", Target: "b"}},
	})
	require.NoError(t, err)

	_, first, outcome, err := svc.GetGraph(ctx, RequestOptions{}, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, cache.OutcomeMiss, outcome)

	_, second, outcome, err := svc.GetGraph(ctx, RequestOptions{}, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, cache.OutcomeHit, outcome)
	assert.Equal(t, first, second)

	// Bypass forces the upstream call but keeps the entry warm.
	_, _, outcome, err = svc.GetGraph(ctx, RequestOptions{NoCache: true}, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, cache.OutcomeBypass, outcome)

	// Deleting invalidates; the next read is a miss and a NotFound.
	_, err = svc.DeleteGraph(ctx, RequestOptions{}, summary.ID)
	require.NoError(t, err)

	_, _, outcome, err = svc.GetGraph(ctx, RequestOptions{}, summary.ID)
	assert.Equal(t, cache.OutcomeMiss, outcome)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestEngineResolution(t *testing.T) {
	svc := newService(t, map[string]ports.Engine{
		"memory": enginetest.New(),
		"other":  enginetest.New(),
	}, "memory")

	names, def := svc.Engines()
	assert.Equal(t, []string{"memory", "other"}, names)
	assert.Equal(t, "memory", def)

	_, _, _, err := svc.ListGraphs(context.Background(), RequestOptions{Engine: "falkordb"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindEngineNotAvailable))
}

func TestComputeImpactTagsEngine(t *testing.T) {
	e := enginetest.New()
	svc := newService(t, map[string]ports.Engine{"memory": e}, "memory")
	ctx := context.Background()

	_, summary, err := svc.CreateGraph(ctx, RequestOptions{}, CreateGraphRequest{
		Title: "tiny",
		Nodes: []graph.Node{{ID: "a"}, {ID: "b"}},
		Edges: []graph.Edge{{Source: "a", Target: "b"}},
	})
	require.NoError(t, err)

	name, result, err := svc.ComputeImpact(ctx, RequestOptions{}, summary.ID, "a", 3)
	require.NoError(t, err)
	assert.Equal(t, "memory", name)
	assert.Equal(t, "memory", result.Engine)
	require.Len(t, result.ImpactedNodes, 1)

	_, _, err = svc.ComputeImpact(ctx, RequestOptions{}, summary.ID, "", 3)
	assert.True(t, apperrors.IsInvalid(err))

	_, _, err = svc.ComputeImpact(ctx, RequestOptions{}, summary.ID, "a", 0)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDepthLimitExceeded))
}

func TestRawQueryDialectGuard(t *testing.T) {
	svc := newService(t, map[string]ports.Engine{
		"cypher": enginetest.New(enginetest.WithDialect("cypher")),
		"sql":    enginetest.New(enginetest.WithDialect("sql")),
		"none":   enginetest.New(),
	}, "cypher")
	ctx := context.Background()

	// Matching dialect passes through.
	_, res, err := svc.ExecuteRawQuery(ctx, RequestOptions{Engine: "cypher"}, "MATCH (n) RETURN count(n)")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Rows)

	// SQL text on a Cypher engine is refused, and vice versa.
	_, _, err = svc.ExecuteRawQuery(ctx, RequestOptions{Engine: "cypher"}, "SELECT * FROM graphs")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotSupported))

	_, _, err = svc.ExecuteRawQuery(ctx, RequestOptions{Engine: "sql"}, "MATCH (n) RETURN n")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotSupported))

	// Engines without a dialect refuse everything.
	_, _, err = svc.ExecuteRawQuery(ctx, RequestOptions{Engine: "none"}, "SELECT 1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotSupported))

	_, _, err = svc.ExecuteRawQuery(ctx, RequestOptions{Engine: "cypher"}, "   ")
	assert.True(t, apperrors.IsInvalid(err))
}
