package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeEdges(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Label: "first"},
		{Source: "b", Target: "c"},
		{Source: "a", Target: "b", Label: "second"},
		{Source: "b", Target: "a"}, // reverse direction is a distinct edge
	}

	out := DedupeEdges(edges)
	require.Len(t, out, 3)
	assert.Equal(t, "first", out[0].Label)
	assert.Equal(t, Edge{Source: "b", Target: "c"}, out[1])
	assert.Equal(t, Edge{Source: "b", Target: "a"}, out[2])
}

func TestValidateEndpoints(t *testing.T) {
	nodes := []Node{{ID: "a"}, {ID: "b"}}

	_, bad := ValidateEndpoints(nodes, []Edge{{Source: "a", Target: "b"}})
	assert.False(t, bad)

	e, bad := ValidateEndpoints(nodes, []Edge{{Source: "a", Target: "ghost"}})
	assert.True(t, bad)
	assert.Equal(t, "ghost", e.Target)

	e, bad = ValidateEndpoints(nodes, []Edge{{Source: "ghost", Target: "b"}})
	assert.True(t, bad)
	assert.Equal(t, "ghost", e.Source)
}

func TestPropertiesRoundTrip(t *testing.T) {
	props := map[string]any{"weight": float64(3), "critical": true}
	s := MarshalProperties(props)
	assert.Equal(t, props, UnmarshalProperties(s))

	assert.Equal(t, "{}", MarshalProperties(nil))
	assert.Nil(t, UnmarshalProperties("{}"))
	assert.Nil(t, UnmarshalProperties("not json"))
}

func TestAsInt64(t *testing.T) {
	assert.Equal(t, int64(7), AsInt64(int64(7)))
	assert.Equal(t, int64(7), AsInt64(7))
	assert.Equal(t, int64(7), AsInt64(int32(7)))
	assert.Equal(t, int64(7), AsInt64(float64(7)))
	assert.Equal(t, int64(7), AsInt64(json.Number("7")))
	assert.Equal(t, int64(0), AsInt64("7"))
}

func TestNewGraphIDUnique(t *testing.T) {
	assert.NotEqual(t, NewGraphID(), NewGraphID())
}
