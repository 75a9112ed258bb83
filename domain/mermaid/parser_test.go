package mermaid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphserver/domain/graph"
)

func nodeByID(t *testing.T, nodes []graph.Node, id string) graph.Node {
	t.Helper()
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("node %q not found", id)
	return graph.Node{}
}

func TestParseSimpleChain(t *testing.T) {
	nodes, edges, err := Parse("graph TD\nA-->B\nB-->C")
	require.NoError(t, err)

	require.Len(t, nodes, 3)
	require.Len(t, edges, 2)
	assert.Equal(t, graph.Edge{Source: "A", Target: "B", Type: "arrow"}, edges[0])
	assert.Equal(t, graph.Edge{Source: "B", Target: "C", Type: "arrow"}, edges[1])

	// Implicit declarations label the node with its own id.
	assert.Equal(t, graph.Node{ID: "A", Label: "A", Type: "process"}, nodes[0])
}

func TestParseNodeShapes(t *testing.T) {
	code := `flowchart LR
Start((Begin))
Step[Do the work]
Check{Done?}
Round(Cleanup)
Start --> Step
Step --> Check
Check -->|no| Step
Check -->|yes| Round`

	nodes, edges, err := Parse(code)
	require.NoError(t, err)
	require.Len(t, nodes, 4)

	assert.Equal(t, graph.Node{ID: "Start", Label: "Begin", Type: "startend"}, nodeByID(t, nodes, "Start"))
	assert.Equal(t, graph.Node{ID: "Step", Label: "Do the work", Type: "process"}, nodeByID(t, nodes, "Step"))
	assert.Equal(t, graph.Node{ID: "Check", Label: "Done?", Type: "decision"}, nodeByID(t, nodes, "Check"))
	assert.Equal(t, graph.Node{ID: "Round", Label: "Cleanup", Type: "process"}, nodeByID(t, nodes, "Round"))

	require.Len(t, edges, 4)
	assert.Equal(t, "no", edges[2].Label)
	assert.Equal(t, "yes", edges[3].Label)
}

func TestParseEdgeVariants(t *testing.T) {
	nodes, edges, err := Parse("A --> B\nA --- C\nA ==> D\nA -.-> E")
	require.NoError(t, err)
	require.Len(t, nodes, 5)
	require.Len(t, edges, 4)

	assert.Equal(t, "arrow", edges[0].Type)
	assert.Equal(t, "open", edges[1].Type)
	assert.Equal(t, "thick", edges[2].Type)
	assert.Equal(t, "dotted", edges[3].Type)
}

func TestParseInlineDeclarations(t *testing.T) {
	nodes, edges, err := Parse("A[Source] -->|feeds| B{Sink?}")
	require.NoError(t, err)
	require.Len(t, edges, 1)

	assert.Equal(t, "Source", nodeByID(t, nodes, "A").Label)
	assert.Equal(t, "decision", nodeByID(t, nodes, "B").Type)
	assert.Equal(t, "feeds", edges[0].Label)
}

func TestParseIsolatedNode(t *testing.T) {
	nodes, edges, err := Parse("graph TD\nLonely[No edges here]")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Empty(t, edges)
}

func TestParseChainOnOneLine(t *testing.T) {
	nodes, edges, err := Parse("A --> B ==> C")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	require.Len(t, edges, 2)
	assert.Equal(t, "arrow", edges[0].Type)
	assert.Equal(t, "thick", edges[1].Type)
}

func TestParseDedupesParallelEdges(t *testing.T) {
	_, edges, err := Parse("A-->B\nA-->B\nB-->A")
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestParseExplicitDeclarationWins(t *testing.T) {
	// Implicit reference first, explicit declaration later.
	nodes, _, err := Parse("A --> B\nB{Really?}")
	require.NoError(t, err)
	assert.Equal(t, "decision", nodeByID(t, nodes, "B").Type)

	// First explicit declaration is not overwritten by a second one.
	nodes, _, err = Parse("B[First]\nB{Second}")
	require.NoError(t, err)
	assert.Equal(t, "First", nodeByID(t, nodes, "B").Label)
	assert.Equal(t, "process", nodeByID(t, nodes, "B").Type)
}

func TestParseIgnoresCommentsAndBlankLines(t *testing.T) {
	nodes, edges, err := Parse("graph TD\n\n%% a comment\nA-->B\n\n")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	assert.Len(t, edges, 1)
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		line int
	}{
		{"dangling arrow", "graph TD\nA-->", 2},
		{"missing source", "--> B", 1},
		{"unterminated label", "A -->|oops B", 1},
		{"malformed shape", "A[unclosed\nA-->B", 1},
		{"garbage identifier", "graph TD\n[] --> B", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, edges, err := Parse(tt.code)
			require.Error(t, err)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.line, perr.Line)

			// A failed parse never returns partial output.
			assert.Nil(t, nodes)
			assert.Nil(t, edges)
		})
	}
}
