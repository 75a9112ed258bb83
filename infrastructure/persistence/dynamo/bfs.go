package dynamo

import (
	"sort"

	"graphserver/domain/graph"
)

// forwardReach runs a level-by-level BFS over the loaded edge list,
// following edge direction. The source is excluded from the result; levels
// are shortest-hop distances, ordered (level, node id).
func forwardReach(edges []graph.Edge, sourceID string, depth int) []graph.ImpactedNode {
	forward := make(map[string][]string)
	for _, e := range edges {
		forward[e.Source] = append(forward[e.Source], e.Target)
	}

	levels := map[string]int{sourceID: 0}
	frontier := []string{sourceID}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, target := range forward[id] {
				if _, seen := levels[target]; seen {
					continue
				}
				levels[target] = d
				next = append(next, target)
			}
		}
		frontier = next
	}

	impacted := make([]graph.ImpactedNode, 0, len(levels)-1)
	for id, level := range levels {
		if id == sourceID {
			continue
		}
		impacted = append(impacted, graph.ImpactedNode{NodeID: id, Level: level})
	}
	sort.Slice(impacted, func(i, j int) bool {
		if impacted[i].Level != impacted[j].Level {
			return impacted[i].Level < impacted[j].Level
		}
		return impacted[i].NodeID < impacted[j].NodeID
	})
	return impacted
}

// undirectedReach returns the set of node ids within the hop bound of the
// source, ignoring edge direction. The source itself is included.
func undirectedReach(edges []graph.Edge, sourceID string, hops int) map[string]struct{} {
	adjacent := make(map[string][]string)
	for _, e := range edges {
		adjacent[e.Source] = append(adjacent[e.Source], e.Target)
		adjacent[e.Target] = append(adjacent[e.Target], e.Source)
	}

	reached := map[string]struct{}{sourceID: {}}
	frontier := []string{sourceID}
	for d := 1; d <= hops && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, other := range adjacent[id] {
				if _, seen := reached[other]; seen {
					continue
				}
				reached[other] = struct{}{}
				next = append(next, other)
			}
		}
		frontier = next
	}
	return reached
}
