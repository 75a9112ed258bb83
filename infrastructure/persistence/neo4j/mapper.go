package neo4j

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"graphserver/domain/graph"
	apperrors "graphserver/pkg/errors"
)

// Record accessors. Bolt properties are dynamically typed; every access
// funnels through here so a missing or oddly typed property degrades to a
// zero value instead of a panic.

func stringValue(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func intValue(record *neo4j.Record, key string) int64 {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return 0
	}
	return graph.AsInt64(v)
}

func boolValue(record *neo4j.Record, key string) bool {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func summaryFromRecord(record *neo4j.Record) graph.Summary {
	return graph.Summary{
		ID:          stringValue(record, "id"),
		Title:       stringValue(record, "title"),
		Description: stringValue(record, "description"),
		GraphType:   stringValue(record, "graph_type"),
		NodeCount:   intValue(record, "node_count"),
		EdgeCount:   intValue(record, "edge_count"),
		CreatedAt:   parseCreatedAt(stringValue(record, "created_at")),
	}
}

func nodeFromRecord(record *neo4j.Record) graph.Node {
	return graph.Node{
		ID:         stringValue(record, "node_id"),
		Label:      stringValue(record, "label"),
		Type:       stringValue(record, "node_type"),
		Properties: graph.UnmarshalProperties(stringValue(record, "properties")),
	}
}

func edgeFromRecord(record *neo4j.Record) graph.Edge {
	return graph.Edge{
		Source:     stringValue(record, "source_id"),
		Target:     stringValue(record, "target_id"),
		Type:       stringValue(record, "edge_type"),
		Label:      stringValue(record, "label"),
		Properties: graph.UnmarshalProperties(stringValue(record, "properties")),
	}
}

// Timestamps are stored as RFC 3339 strings so the same value round-trips
// through Neo4j and Memgraph identically.
func parseCreatedAt(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// flattenValue rewrites driver-native values into JSON-friendly shapes for
// raw query rows. Graph entities become maps, temporal values become
// strings, containers recurse.
func flattenValue(v any) any {
	switch val := v.(type) {
	case neo4j.Node:
		return map[string]any{
			"labels":     val.Labels,
			"properties": flattenMap(val.Props),
		}
	case neo4j.Relationship:
		return map[string]any{
			"type":       val.Type,
			"properties": flattenMap(val.Props),
		}
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = flattenValue(item)
		}
		return out
	case map[string]any:
		return flattenMap(val)
	default:
		return v
	}
}

func flattenMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = flattenValue(v)
	}
	return out
}

// translate maps driver failures onto the application error taxonomy.
// Errors already classified pass through untouched.
func (e *Engine) translate(err error) error {
	if err == nil {
		return nil
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case strings.Contains(neoErr.Code, "SyntaxError"),
			strings.Contains(neoErr.Code, "ArgumentError"),
			strings.Contains(neoErr.Code, "ParameterMissing"):
			return apperrors.NewInvalid("%s", neoErr.Msg)
		case strings.Contains(neoErr.Code, "DatabaseNotFound"):
			return apperrors.NewNotFound("%s", neoErr.Msg)
		case strings.Contains(neoErr.Code, "TransientError"),
			strings.Contains(neoErr.Code, "ServiceUnavailable"):
			return apperrors.NewStoreUnavailable(e.opts.Name, err)
		}
		return apperrors.NewInternal("cypher execution failed", err)
	}

	if neo4j.IsConnectivityError(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return apperrors.NewStoreUnavailable(e.opts.Name, err)
	}
	return apperrors.NewInternal("graph store request failed", err)
}
