package impact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphserver/application/ports"
	"graphserver/application/ports/enginetest"
	"graphserver/domain/graph"
	apperrors "graphserver/pkg/errors"
)

func seedEngine(t *testing.T) (*enginetest.Engine, string) {
	t.Helper()
	e := enginetest.New()
	summary, err := e.CreateGraph(context.Background(), "", ports.CreateGraphSpec{
		Title: "diamond",
		Nodes: []graph.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}},
		Edges: []graph.Edge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: "c"},
			{Source: "b", Target: "d"},
			{Source: "c", Target: "d"},
			{Source: "d", Target: "e"},
		},
	})
	require.NoError(t, err)
	return e, summary.ID
}

func TestComputeDepthBounds(t *testing.T) {
	e, id := seedEngine(t)
	ctx := context.Background()

	for _, depth := range []int{0, -1, 21, 100} {
		_, err := Compute(ctx, e, "", id, "a", depth)
		assert.True(t, apperrors.IsKind(err, apperrors.KindDepthLimitExceeded), "depth %d", depth)
	}

	// Both boundary values are accepted.
	for _, depth := range []int{1, 20} {
		_, err := Compute(ctx, e, "", id, "a", depth)
		assert.NoError(t, err, "depth %d", depth)
	}
}

func TestComputeOrderingAndTiming(t *testing.T) {
	e, id := seedEngine(t)

	res, err := Compute(context.Background(), e, "", id, "a", 3)
	require.NoError(t, err)

	assert.Equal(t, []graph.ImpactedNode{
		{NodeID: "b", Level: 1},
		{NodeID: "c", Level: 1},
		{NodeID: "d", Level: 2},
		{NodeID: "e", Level: 3},
	}, res.ImpactedNodes)
	assert.Equal(t, "a", res.SourceID)
	assert.Equal(t, 3, res.Depth)
	assert.Greater(t, res.ElapsedMs, int64(0))
}

func TestComputeMonotoneInDepth(t *testing.T) {
	e, id := seedEngine(t)
	ctx := context.Background()

	shallow, err := Compute(ctx, e, "", id, "a", 2)
	require.NoError(t, err)
	deep, err := Compute(ctx, e, "", id, "a", 4)
	require.NoError(t, err)

	ids := func(nodes []graph.ImpactedNode) map[string]int {
		m := make(map[string]int)
		for _, n := range nodes {
			m[n.NodeID] = n.Level
		}
		return m
	}
	shallowIDs, deepIDs := ids(shallow.ImpactedNodes), ids(deep.ImpactedNodes)
	for id, level := range shallowIDs {
		assert.Equal(t, level, deepIDs[id])
	}
	assert.GreaterOrEqual(t, len(deepIDs), len(shallowIDs))
}

func TestNormalize(t *testing.T) {
	out := Normalize([]graph.ImpactedNode{
		{NodeID: "x", Level: 3},
		{NodeID: "y", Level: 1},
		{NodeID: "x", Level: 2}, // shorter path wins
		{NodeID: "src", Level: 1},
	}, "src")

	assert.Equal(t, []graph.ImpactedNode{
		{NodeID: "y", Level: 1},
		{NodeID: "x", Level: 2},
	}, out)
}

func TestComputePropagatesEngineErrors(t *testing.T) {
	e, id := seedEngine(t)
	e.FailWith = apperrors.NewStoreUnavailable("neo4j", nil)

	_, err := Compute(context.Background(), e, "", id, "a", 3)
	assert.True(t, apperrors.IsStoreUnavailable(err))
}
