// Package impact wraps the engine-specific impact implementations with the
// shared policy: depth bounds, result normalisation and server-side timing.
package impact

import (
	"context"
	"sort"
	"time"

	"graphserver/application/ports"
	"graphserver/domain/graph"
	apperrors "graphserver/pkg/errors"
)

// Depth bounds accepted by ComputeImpact. Depth 0 would make the traversal
// a no-op and anything past 20 hops is indistinguishable from full
// reachability on the graphs this service stores.
const (
	MinDepth = 1
	MaxDepth = 20
)

// Compute validates depth, delegates the traversal to the engine and
// normalises the result: the source is excluded, duplicates collapse to
// their minimum level, and the list is ordered by (level, node_id).
// Elapsed time is measured on this side of the driver with the monotonic
// clock.
func Compute(ctx context.Context, engine ports.Engine, database, graphID, sourceID string, depth int) (*graph.ImpactResult, error) {
	if depth < MinDepth || depth > MaxDepth {
		return nil, apperrors.NewDepthLimitExceeded(depth, MinDepth, MaxDepth)
	}

	start := time.Now()
	res, err := engine.ComputeImpact(ctx, database, graphID, sourceID, depth)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	res.SourceID = sourceID
	res.Depth = depth
	res.ImpactedNodes = Normalize(res.ImpactedNodes, sourceID)
	res.ElapsedMs = elapsed.Milliseconds()
	if res.ElapsedMs == 0 {
		// Millisecond resolution floors sub-millisecond traversals to zero;
		// report at least one so clients can tell the field is live.
		res.ElapsedMs = 1
	}
	return res, nil
}

// Normalize deduplicates impacted nodes to their minimum level, drops the
// source node and sorts by (level, node_id).
func Normalize(nodes []graph.ImpactedNode, sourceID string) []graph.ImpactedNode {
	best := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if n.NodeID == sourceID {
			continue
		}
		if level, ok := best[n.NodeID]; !ok || n.Level < level {
			best[n.NodeID] = n.Level
		}
	}

	out := make([]graph.ImpactedNode, 0, len(best))
	for id, level := range best {
		out = append(out, graph.ImpactedNode{NodeID: id, Level: level})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}
