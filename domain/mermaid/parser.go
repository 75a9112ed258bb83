// Package mermaid converts Mermaid flowchart text into the neutral
// {nodes, edges} representation consumed by the storage engines.
//
// The parser is pure and total: it never touches a store, and syntax errors
// come back as a typed *ParseError instead of a panic. Nothing is returned
// on error, so a failed parse can never be partially persisted.
package mermaid

import (
	"fmt"
	"strings"

	"graphserver/domain/graph"
)

// ParseError reports a syntax error with the 1-based line it occurred on.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mermaid syntax error on line %d: %s", e.Line, e.Message)
}

// Node shape classifiers, matching the flowchart dialect.
const (
	typeProcess  = "process"
	typeStartEnd = "startend"
	typeDecision = "decision"
)

type arrowToken struct {
	token    string
	edgeType string
}

// Supported edge tokens, longest first so that "-.->"
// is never mistaken for "---" or "-->".
var arrows = []arrowToken{
	{"-.->", "dotted"},
	{"==>", "thick"},
	{"-->", "arrow"},
	{"---", "open"},
}

// Parse converts Mermaid flowchart text into nodes and edges.
//
// Blank lines, %% comments and graph/flowchart directives are ignored. A
// node declaration on its own line creates an isolated node. Parallel edges
// with the same (source, target) are deduplicated silently.
func Parse(code string) ([]graph.Node, []graph.Edge, error) {
	p := &parser{
		index: make(map[string]int),
	}

	for i, raw := range strings.Split(code, "\n") {
		line := strings.TrimSpace(raw)
		lineNo := i + 1

		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		if isDirective(line) {
			continue
		}

		if err := p.parseLine(line, lineNo); err != nil {
			return nil, nil, err
		}
	}

	return p.nodes, graph.DedupeEdges(p.edges), nil
}

// isDirective reports whether the line is a graph/flowchart header such as
// "graph TD" or "flowchart LR".
func isDirective(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) > 2 {
		return false
	}
	head := strings.ToLower(fields[0])
	return head == "graph" || head == "flowchart"
}

type parser struct {
	nodes []graph.Node
	edges []graph.Edge
	// index maps node id to its position in nodes; explicit declarations
	// overwrite implicit ones exactly once.
	index    map[string]int
	explicit map[string]bool

	// Arrow consumed on the previous loop iteration of parseLine, applied
	// when its target node has been parsed.
	pendingType  string
	pendingLabel string
}

// parseLine handles one statement: either a standalone node declaration or a
// chain of node references joined by edge tokens (A --> B ==> C).
func (p *parser) parseLine(line string, lineNo int) error {
	rest := line
	var prev string
	first := true

	for {
		arrowIdx, arrow := findArrow(rest)

		var nodePart string
		if arrowIdx < 0 {
			nodePart = rest
		} else {
			nodePart = rest[:arrowIdx]
		}

		id, err := p.declareNode(nodePart, lineNo)
		if err != nil {
			return err
		}
		if !first {
			// prev/label were captured when the arrow was consumed below.
			p.edges = append(p.edges, graph.Edge{
				Source: prev,
				Target: id,
				Type:   p.pendingType,
				Label:  p.pendingLabel,
			})
		}

		if arrowIdx < 0 {
			if first && strings.TrimSpace(nodePart) == "" {
				return &ParseError{Line: lineNo, Message: "empty statement"}
			}
			return nil
		}

		rest = rest[arrowIdx+len(arrow.token):]
		label, remainder, err := consumeEdgeLabel(rest, lineNo)
		if err != nil {
			return err
		}
		rest = remainder

		if strings.TrimSpace(rest) == "" {
			return &ParseError{Line: lineNo, Message: "edge is missing its target node"}
		}

		prev = id
		p.pendingType = arrow.edgeType
		p.pendingLabel = label
		first = false
	}
}

// findArrow locates the earliest edge token in s. Tokens are tried longest
// first at each position so "-.->"/"==>" win over their substrings.
func findArrow(s string) (int, *arrowToken) {
	for i := 0; i < len(s); i++ {
		for j := range arrows {
			if strings.HasPrefix(s[i:], arrows[j].token) {
				return i, &arrows[j]
			}
		}
	}
	return -1, nil
}

// consumeEdgeLabel reads an optional |label| immediately after an arrow.
func consumeEdgeLabel(s string, lineNo int) (label, rest string, err error) {
	trimmed := strings.TrimLeft(s, " \t")
	if !strings.HasPrefix(trimmed, "|") {
		return "", s, nil
	}
	end := strings.Index(trimmed[1:], "|")
	if end < 0 {
		return "", "", &ParseError{Line: lineNo, Message: "unterminated edge label"}
	}
	return strings.TrimSpace(trimmed[1 : 1+end]), trimmed[end+2:], nil
}

// declareNode parses a node reference such as `A`, `A[Label]`, `A((Label))`,
// `A{Label}` or `A(Label)` and registers it, returning the node id.
func (p *parser) declareNode(part string, lineNo int) (string, error) {
	s := strings.TrimSpace(part)
	if s == "" {
		return "", &ParseError{Line: lineNo, Message: "missing node identifier"}
	}

	// Leading identifier: letters, digits, underscore, dash.
	idEnd := 0
	for idEnd < len(s) && isIdentChar(s[idEnd]) {
		idEnd++
	}
	if idEnd == 0 {
		return "", &ParseError{Line: lineNo, Message: fmt.Sprintf("invalid node reference %q", s)}
	}
	id := s[:idEnd]
	shape := strings.TrimSpace(s[idEnd:])

	if shape == "" {
		p.register(id, id, typeProcess, false)
		return id, nil
	}

	label, nodeType, err := parseShape(shape, lineNo)
	if err != nil {
		return "", err
	}
	p.register(id, label, nodeType, true)
	return id, nil
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}

// parseShape maps the bracket syntax to (label, node_type).
func parseShape(shape string, lineNo int) (string, string, error) {
	switch {
	case strings.HasPrefix(shape, "((") && strings.HasSuffix(shape, "))"):
		return strings.TrimSpace(shape[2 : len(shape)-2]), typeStartEnd, nil
	case strings.HasPrefix(shape, "[") && strings.HasSuffix(shape, "]"):
		return strings.TrimSpace(shape[1 : len(shape)-1]), typeProcess, nil
	case strings.HasPrefix(shape, "{") && strings.HasSuffix(shape, "}"):
		return strings.TrimSpace(shape[1 : len(shape)-1]), typeDecision, nil
	case strings.HasPrefix(shape, "(") && strings.HasSuffix(shape, ")"):
		return strings.TrimSpace(shape[1 : len(shape)-1]), typeProcess, nil
	default:
		return "", "", &ParseError{Line: lineNo, Message: fmt.Sprintf("malformed node shape %q", shape)}
	}
}

// register adds or updates a node. An explicit declaration replaces an
// implicit one; after that the first explicit declaration wins.
func (p *parser) register(id, label, nodeType string, isExplicit bool) {
	if p.explicit == nil {
		p.explicit = make(map[string]bool)
	}
	if pos, ok := p.index[id]; ok {
		if isExplicit && !p.explicit[id] {
			p.nodes[pos].Label = label
			p.nodes[pos].Type = nodeType
			p.explicit[id] = true
		}
		return
	}
	p.index[id] = len(p.nodes)
	p.nodes = append(p.nodes, graph.Node{ID: id, Label: label, Type: nodeType})
	p.explicit[id] = isExplicit
}
