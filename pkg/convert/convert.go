// Package convert assembles the IMF graph document from an ordered component
// list.
//
// A conversion runs four steps on state it owns exclusively:
//
//  1. Validate identities (imf.Validate) and geometry. Failures abort the
//     conversion before anything is laid out.
//  2. Build the part-of forest (package hierarchy).
//  3. Lay out products and functions (package layout).
//  4. Emit nodes and edges.
//
// # Labels
//
// Every node gets a display label "Block{n}" from a single counter starting
// at 1. Components are visited in input order; each component takes the next
// label, then its functions take the following ones in fulfills order.
//
// # Nodes
//
// Product nodes come first, in input order, followed by function nodes in
// function-layer order (see layout.PlaceFunctions). A product whose parent
// did not resolve keeps the "void" parent and an empty directPartOf.
// children/directParts are filled in after every product exists, so a child
// listed before its parent is still attached.
//
// # Edges
//
// For each product node in node order: one "part" edge to its parent when
// the parent resolved, then one "fulfilled" edge per function. Edge ids and
// labels come from a counter starting at 0. Handles are chosen from the
// relative positions of the endpoints; see [Handles].
//
// Timestamps are the only field that depends on anything but the input; pass
// a fixed [Options.Now] for byte-identical output.
package convert

import (
	"fmt"
	"math"
	"time"

	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/hierarchy"
	"github.com/matzehuels/imfgraph/pkg/imf"
	"github.com/matzehuels/imfgraph/pkg/layout"
)

// Options configures a conversion.
type Options struct {
	Layout layout.Options
	// Now stamps createdAt/updatedAt. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the standard geometry and the wall clock.
func DefaultOptions() Options {
	return Options{Layout: layout.DefaultOptions()}
}

// Stats summarizes a conversion.
type Stats struct {
	Products       int `json:"products"`
	Functions      int `json:"functions"`
	Roots          int `json:"roots"`
	MaxDepth       int `json:"max_depth"`
	PartEdges      int `json:"part_edges"`
	FulfilledEdges int `json:"fulfilled_edges"`
	Issues         int `json:"issues"`
}

// Result is the output of [Convert].
type Result struct {
	Document *imf.Document
	Issues   []imf.Issue
	Stats    Stats
}

// Convert builds the graph document for comps. Hard validation failures
// (missing or duplicate identifiers, bad geometry) are returned as errors;
// data-quality findings are returned in Result.Issues.
func Convert(comps []imf.Component, opts Options) (*Result, error) {
	if err := imf.Validate(comps); err != nil {
		return nil, err
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	forest, issues := hierarchy.Build(comps)
	positions := layout.Compute(forest, opts.Layout)

	b := &builder{
		opts:   opts.Layout,
		stamp:  now().UnixMilli(),
		labels: make(map[string]string, len(comps)),
		nodes:  make(map[string]int, len(comps)),
		doc:    &imf.Document{Nodes: []imf.Node{}, Edges: []imf.Edge{}},
	}

	names := make(map[string]bool, len(comps))
	tags := make(map[string]bool, len(comps))
	for _, c := range comps {
		names[c.Name] = true
		tags[c.TagID] = true
	}
	for _, c := range comps {
		for i := range c.Fulfills {
			if id := layout.FunctionID(c.TagID, i); tags[id] {
				return nil, errors.New(errors.ErrCodeDuplicateIdentifier,
					"function %d of %q collides with tagID %q", i, c.Name, id)
			}
		}
	}
	for _, c := range comps {
		for _, target := range c.ConnectedTo {
			if !names[target] {
				issues = append(issues, imf.Issue{
					Kind:      imf.IssueUnresolvedConnection,
					Component: c.Name,
					Reference: target,
				})
			}
		}
	}

	funcs := b.addProducts(comps, forest, positions)
	b.addFunctions(layout.PlaceFunctions(funcs, opts.Layout))
	b.linkChildren()
	b.addEdges()

	return &Result{
		Document: b.doc,
		Issues:   issues,
		Stats: Stats{
			Products:       len(comps),
			Functions:      len(funcs),
			Roots:          len(forest.Roots()),
			MaxDepth:       forest.MaxDepth(),
			PartEdges:      b.partEdges,
			FulfilledEdges: b.fulfilledEdges,
			Issues:         len(issues),
		},
	}, nil
}

// =============================================================================
// Builder
// =============================================================================

// builder holds the counters and indexes of one conversion.
type builder struct {
	opts  layout.Options
	stamp int64
	doc   *imf.Document

	nextLabel int
	labels    map[string]string // node id -> label
	nodes     map[string]int    // node id -> index in doc.Nodes

	edgeCount      int
	partEdges      int
	fulfilledEdges int
}

func (b *builder) label(id string) string {
	b.nextLabel++
	l := fmt.Sprintf("Block%d", b.nextLabel)
	b.labels[id] = l
	return l
}

func (b *builder) newNode(id string, aspect imf.Aspect, pos imf.Position) imf.Node {
	data := imf.NewNodeData(aspect)
	data.CreatedAt = b.stamp
	data.UpdatedAt = b.stamp
	data.Width = b.opts.NodeWidth
	data.Height = b.opts.NodeHeight
	return imf.Node{
		ID:       id,
		Type:     imf.NodeType,
		Width:    b.opts.NodeWidth,
		Height:   b.opts.NodeHeight,
		Position: pos,
		Data:     data,
	}
}

func (b *builder) push(n imf.Node) {
	b.nodes[n.ID] = len(b.doc.Nodes)
	b.doc.Nodes = append(b.doc.Nodes, n)
}

// addProducts emits one product node per component and returns the
// unplaced functions.
func (b *builder) addProducts(comps []imf.Component, forest *hierarchy.Forest, positions *layout.Result) []layout.Function {
	tagOf := make(map[string]string, len(comps))
	for _, c := range comps {
		tagOf[c.Name] = c.TagID
	}

	var funcs []layout.Function
	for _, c := range comps {
		pos := positions.Position(c.Name)
		n := b.newNode(c.TagID, imf.AspectProduct, pos)
		n.Data.Label = b.label(c.TagID)
		n.Data.CustomName = c.Name
		n.Data.Parent = imf.Void
		if parent, ok := forest.Parent(c.Name); ok {
			n.Data.Parent = tagOf[parent]
			n.Data.DirectPartOf = tagOf[parent]
		}

		for i, desc := range c.Fulfills {
			id := layout.FunctionID(c.TagID, i)
			funcs = append(funcs, layout.Function{
				ID:          id,
				Label:       b.label(id),
				Description: desc,
				Owner:       c.TagID,
				OwnerPos:    pos,
				Index:       i,
			})
			n.Data.FulfilledBy = append(n.Data.FulfilledBy, imf.Ref{ID: id})
		}
		b.push(n)
	}
	return funcs
}

func (b *builder) addFunctions(placed []layout.PlacedFunction) {
	for _, fn := range placed {
		n := b.newNode(fn.ID, imf.AspectFunction, fn.Position)
		n.Data.Label = fn.Label
		n.Data.CustomName = fn.Description
		n.Data.Parent = imf.Void
		n.Data.Fulfills = append(n.Data.Fulfills, imf.Ref{ID: fn.Owner})
		b.push(n)
	}
}

// linkChildren back-fills children/directParts from each product's parent.
func (b *builder) linkChildren() {
	for i := range b.doc.Nodes {
		n := &b.doc.Nodes[i]
		if n.Data.Aspect != imf.AspectProduct || n.Data.Parent == imf.Void {
			continue
		}
		p := &b.doc.Nodes[b.nodes[n.Data.Parent]]
		ref := imf.Ref{ID: n.ID}
		p.Data.Children = append(p.Data.Children, ref)
		p.Data.DirectParts = append(p.Data.DirectParts, ref)
	}
}

func (b *builder) addEdges() {
	for _, n := range b.doc.Nodes {
		if n.Data.Aspect != imf.AspectProduct {
			continue
		}
		if n.Data.Parent != imf.Void {
			b.addEdge(n.ID, n.Data.Parent, imf.EdgePart)
			b.partEdges++
		}
		for _, fn := range n.Data.FulfilledBy {
			b.addEdge(n.ID, fn.ID, imf.EdgeFulfilled)
			b.fulfilledEdges++
		}
	}
}

func (b *builder) addEdge(source, target string, kind imf.EdgeType) {
	src := b.doc.Nodes[b.nodes[source]].Position
	tgt := b.doc.Nodes[b.nodes[target]].Position
	srcDir, tgtDir := Handles(src, tgt)

	b.doc.Edges = append(b.doc.Edges, imf.Edge{
		ID:           EdgeID(source, target, kind),
		Source:       source,
		Target:       target,
		SourceHandle: fmt.Sprintf("%s_%s_source", b.labels[source], srcDir),
		TargetHandle: fmt.Sprintf("%s_%s_target", b.labels[target], tgtDir),
		Type:         kind,
		Data: imf.EdgeData{
			ID:        fmt.Sprint(b.edgeCount),
			CreatedAt: b.stamp,
			UpdatedAt: b.stamp,
			Label:     fmt.Sprintf("Edge %d", b.edgeCount),
			CreatedBy: imf.CreatedBy,
		},
	})
	b.edgeCount++
}

// =============================================================================
// Handles
// =============================================================================

// EdgeID returns the editor id of an edge.
func EdgeID(source, target string, kind imf.EdgeType) string {
	return fmt.Sprintf("reactflow__edge-%s-%s-%s", source, target, kind)
}

// Handles picks the sides an edge leaves its source and enters its target.
// A mostly horizontal delta (|dx| >= |dy|, ties included) uses right/left,
// otherwise bottom/top; the sign of the delta picks the orientation.
func Handles(source, target imf.Position) (src, tgt imf.Direction) {
	dx := target.X - source.X
	dy := target.Y - source.Y
	if math.Abs(dx) >= math.Abs(dy) {
		if dx >= 0 {
			return imf.Right, imf.Left
		}
		return imf.Left, imf.Right
	}
	if dy >= 0 {
		return imf.Bottom, imf.Top
	}
	return imf.Top, imf.Bottom
}

// ConvertJSON decodes a strictly valid relations mapping and converts it.
func ConvertJSON(data []byte, opts Options) (*Result, error) {
	comps, err := imf.ParseRelations(data)
	if err != nil {
		return nil, err
	}
	return Convert(comps, opts)
}
