// Package graph holds the canonical data shapes shared by every storage
// engine and the HTTP surface. The types are flat and transport-friendly;
// engines translate them into whatever layout their back-end requires.
package graph

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Node is a single labelled node inside one graph. ID is unique within the
// graph; Properties is an opaque bag that always surfaces as structured JSON.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Type       string         `json:"node_type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Edge is a directed connection between two nodes of the same graph.
// Parallel edges with identical (Source, Target) are forbidden; write paths
// deduplicate them silently.
type Edge struct {
	Source     string         `json:"source_id"`
	Target     string         `json:"target_id"`
	Type       string         `json:"edge_type"`
	Label      string         `json:"label,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Summary is the graph metadata row. NodeCount and EdgeCount are
// materialised at write time and must match the live counts.
type Summary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	GraphType   string    `json:"graph_type"`
	NodeCount   int64     `json:"node_count"`
	EdgeCount   int64     `json:"edge_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Data is a full graph snapshot.
type Data struct {
	Summary
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Stats describes a stored graph: counts, per-type histograms and the
// average out-degree.
type Stats struct {
	NodeCount int64            `json:"node_count"`
	EdgeCount int64            `json:"edge_count"`
	NodeTypes map[string]int64 `json:"node_types"`
	EdgeTypes map[string]int64 `json:"edge_types"`
	AvgDegree float64          `json:"avg_degree"`
}

// ImpactedNode is one node reached by a forward traversal, tagged with its
// shortest-hop distance from the source.
type ImpactedNode struct {
	NodeID string `json:"node_id"`
	Level  int    `json:"level"`
}

// ImpactResult is the outcome of a bounded forward BFS from SourceID.
// ImpactedNodes excludes the source, contains no duplicates and is sorted by
// (level, node_id).
type ImpactResult struct {
	SourceID      string         `json:"source_id"`
	ImpactedNodes []ImpactedNode `json:"impactedNodes"`
	Depth         int            `json:"depth"`
	ElapsedMs     int64          `json:"elapsed_ms"`
	Engine        string         `json:"engine,omitempty"`
}

// DatabaseInfo describes one engine-local namespace.
type DatabaseInfo struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
	Status  string `json:"status"`
}

// QueryResult holds tabular rows from a raw dialect-specific query.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

// NewGraphID generates a globally unique graph identifier.
func NewGraphID() string {
	return uuid.NewString()
}

// MarshalProperties serialises a property bag to a JSON string for engines
// that cannot store structured values natively. An empty bag becomes "{}".
func MarshalProperties(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// UnmarshalProperties is the inverse of MarshalProperties. Malformed input
// yields an empty bag rather than an error; stored bags are service-written.
func UnmarshalProperties(s string) map[string]any {
	if s == "" || s == "{}" {
		return nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil
	}
	return props
}

// DedupeEdges removes parallel edges, keeping the first occurrence of each
// (source, target) pair. Order is otherwise preserved.
func DedupeEdges(edges []Edge) []Edge {
	type pair struct{ s, t string }
	seen := make(map[pair]struct{}, len(edges))
	out := edges[:0:0]
	for _, e := range edges {
		p := pair{e.Source, e.Target}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, e)
	}
	return out
}

// ValidateEndpoints reports the first edge whose endpoints are not both
// declared in nodes. The boolean is false when all edges are well-formed.
func ValidateEndpoints(nodes []Node, edges []Edge) (Edge, bool) {
	ids := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = struct{}{}
	}
	for _, e := range edges {
		if _, ok := ids[e.Source]; !ok {
			return e, true
		}
		if _, ok := ids[e.Target]; !ok {
			return e, true
		}
	}
	return Edge{}, false
}

// AsInt64 widens back-end-specific integer encodings to 64 bits. Counts
// crossing an engine boundary always pass through here.
func AsInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
