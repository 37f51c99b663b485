// Package hierarchy builds the part-of forest from a flat component list.
//
// Each component names at most one meaningful parent, the first entry of its
// partOf list. Components without a parent become roots. The builder never
// fails: a parent name that does not resolve, or a partOf chain that loops
// back on itself, is repaired by rooting the affected component and reported
// as an [imf.Issue]. Every component is therefore reachable from exactly one
// root.
//
// Roots and children are kept in input order, which the layout depends on.
// All traversals use explicit stacks, so arbitrarily deep hierarchies are
// safe.
package hierarchy

import (
	"github.com/matzehuels/imfgraph/pkg/imf"
)

// Node is one component in the forest.
type Node struct {
	Name     string
	TagID    string
	Index    int      // position in the input
	Parent   string   // resolved parent name, "" for roots
	Children []string // child names in input order
	Depth    int      // 0 for roots
}

// IsRoot reports whether the node has no resolved parent.
func (n *Node) IsRoot() bool { return n.Parent == "" }

// Forest is a rooted forest over component names.
//
// The zero value is not usable; use [Build].
type Forest struct {
	nodes map[string]*Node
	order []string
	roots []string
}

// Build constructs the forest from components in input order. Names are
// assumed unique (see imf.Validate).
func Build(comps []imf.Component) (*Forest, []imf.Issue) {
	f := &Forest{
		nodes: make(map[string]*Node, len(comps)),
		order: make([]string, 0, len(comps)),
	}
	var issues []imf.Issue

	for i, c := range comps {
		f.nodes[c.Name] = &Node{Name: c.Name, TagID: c.TagID, Index: i}
		f.order = append(f.order, c.Name)
	}

	for _, c := range comps {
		parent := c.PrimaryParent()
		if parent == "" {
			continue
		}
		if _, ok := f.nodes[parent]; !ok {
			issues = append(issues, imf.Issue{
				Kind:      imf.IssueUnresolvedReference,
				Component: c.Name,
				Reference: parent,
			})
			continue
		}
		f.nodes[c.Name].Parent = parent
	}

	issues = append(issues, f.breakCycles()...)

	for _, name := range f.order {
		n := f.nodes[name]
		if n.IsRoot() {
			f.roots = append(f.roots, name)
			continue
		}
		p := f.nodes[n.Parent]
		p.Children = append(p.Children, name)
	}

	for _, name := range f.PreOrder() {
		n := f.nodes[name]
		if !n.IsRoot() {
			n.Depth = f.nodes[n.Parent].Depth + 1
		}
	}
	return f, issues
}

// breakCycles walks each component's parent chain in input order. When a
// chain reaches a node already on the current walk, the node whose parent
// link closed the loop is detached and becomes a root.
func (f *Forest) breakCycles() []imf.Issue {
	const (
		unvisited = iota
		onPath
		done
	)

	var issues []imf.Issue
	state := make(map[string]int, len(f.nodes))
	var path []string

	for _, start := range f.order {
		if state[start] == done {
			continue
		}
		path = path[:0]
		for name := start; ; {
			state[name] = onPath
			path = append(path, name)

			n := f.nodes[name]
			if n.IsRoot() {
				break
			}
			next := n.Parent
			if state[next] == onPath {
				issues = append(issues, imf.Issue{
					Kind:      imf.IssueCyclicReference,
					Component: name,
					Reference: next,
				})
				n.Parent = ""
				break
			}
			if state[next] == done {
				break
			}
			name = next
		}
		for _, name := range path {
			state[name] = done
		}
	}
	return issues
}

// Len returns the number of nodes.
func (f *Forest) Len() int { return len(f.order) }

// Names returns all node names in input order.
func (f *Forest) Names() []string { return f.order }

// Roots returns root names in input order.
func (f *Forest) Roots() []string { return f.roots }

// Node returns the node called name, or nil.
func (f *Forest) Node(name string) *Node { return f.nodes[name] }

// Children returns the child names of name in input order.
func (f *Forest) Children(name string) []string {
	if n := f.nodes[name]; n != nil {
		return n.Children
	}
	return nil
}

// Parent returns the resolved parent of name.
func (f *Forest) Parent(name string) (string, bool) {
	n := f.nodes[name]
	if n == nil || n.IsRoot() {
		return "", false
	}
	return n.Parent, true
}

// MaxDepth returns the depth of the deepest node, or -1 for an empty forest.
func (f *Forest) MaxDepth() int {
	d := -1
	for _, n := range f.nodes {
		d = max(d, n.Depth)
	}
	return d
}

// PreOrder returns every node, parents before children, roots and siblings
// left to right.
func (f *Forest) PreOrder() []string {
	out := make([]string, 0, len(f.order))
	stack := make([]string, 0, len(f.roots))
	for i := len(f.roots) - 1; i >= 0; i-- {
		stack = append(stack, f.roots[i])
	}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, name)

		kids := f.nodes[name].Children
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return out
}

// PostOrder returns every node, children before parents, siblings left to
// right.
func (f *Forest) PostOrder() []string {
	type frame struct {
		name string
		next int
	}

	out := make([]string, 0, len(f.order))
	for _, root := range f.roots {
		stack := []frame{{name: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			kids := f.nodes[top.name].Children
			if top.next < len(kids) {
				child := kids[top.next]
				top.next++
				stack = append(stack, frame{name: child})
				continue
			}
			out = append(out, top.name)
			stack = stack[:len(stack)-1]
		}
	}
	return out
}
