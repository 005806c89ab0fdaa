package trace

// Node is a span with its visible children.
type Node struct {
	Span     Span
	Children []*Node
}

// Incomplete reports a span that never received its end event.
func (n *Node) Incomplete() bool {
	return n.Span.State == StateOpen
}

// Tree returns the visible spans as a forest ordered by open order. Spans
// whose parent was never seen are treated as roots.
func (e *Engine) Tree() []*Node {
	return BuildTree(e.Spans())
}

// BuildTree links spans into a forest by parent run id.
func BuildTree(spans []Span) []*Node {
	nodes := make(map[string]*Node, len(spans))
	for _, s := range spans {
		nodes[s.RunID] = &Node{Span: s}
	}
	var roots []*Node
	for _, s := range spans {
		n := nodes[s.RunID]
		if p, ok := nodes[s.ParentRunID]; ok && s.ParentRunID != s.RunID {
			p.Children = append(p.Children, n)
			continue
		}
		roots = append(roots, n)
	}
	return roots
}

// Walk visits nodes depth first. Returning false from fn skips the children.
func Walk(nodes []*Node, fn func(n *Node, depth int) bool) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		if !fn(n, depth) {
			return
		}
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, n := range nodes {
		visit(n, 0)
	}
}

// Find returns the first node whose span has the given name.
func Find(nodes []*Node, name string) *Node {
	var found *Node
	Walk(nodes, func(n *Node, _ int) bool {
		if found != nil {
			return false
		}
		if n.Span.Name == name {
			found = n
			return false
		}
		return true
	})
	return found
}
