package dynamo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"graphserver/domain/graph"
)

func edge(source, target string) graph.Edge {
	return graph.Edge{Source: source, Target: target}
}

func TestForwardReachLevelsAndOrder(t *testing.T) {
	// a -> b -> c -> d, plus a shortcut a -> c.
	edges := []graph.Edge{edge("a", "b"), edge("b", "c"), edge("c", "d"), edge("a", "c")}

	impacted := forwardReach(edges, "a", 10)
	assert.Equal(t, []graph.ImpactedNode{
		{NodeID: "b", Level: 1},
		{NodeID: "c", Level: 1},
		{NodeID: "d", Level: 2},
	}, impacted)
}

func TestForwardReachRespectsDepthBound(t *testing.T) {
	edges := []graph.Edge{edge("a", "b"), edge("b", "c"), edge("c", "d")}

	impacted := forwardReach(edges, "a", 2)
	assert.Equal(t, []graph.ImpactedNode{
		{NodeID: "b", Level: 1},
		{NodeID: "c", Level: 2},
	}, impacted)
}

func TestForwardReachIgnoresReverseEdgesAndCycles(t *testing.T) {
	// b -> a must not pull b in; the a <-> c cycle must terminate.
	edges := []graph.Edge{edge("b", "a"), edge("a", "c"), edge("c", "a")}

	impacted := forwardReach(edges, "a", 20)
	assert.Equal(t, []graph.ImpactedNode{{NodeID: "c", Level: 1}}, impacted)
}

func TestForwardReachIsolatedSource(t *testing.T) {
	impacted := forwardReach([]graph.Edge{edge("x", "y")}, "a", 5)
	assert.Empty(t, impacted)
}

func TestUndirectedReach(t *testing.T) {
	// b -> a and a -> c are both one hop from a regardless of direction.
	edges := []graph.Edge{edge("b", "a"), edge("a", "c"), edge("c", "d")}

	reached := undirectedReach(edges, "a", 1)
	assert.Len(t, reached, 3)
	assert.Contains(t, reached, "a")
	assert.Contains(t, reached, "b")
	assert.Contains(t, reached, "c")

	reached = undirectedReach(edges, "a", 2)
	assert.Contains(t, reached, "d")
}
