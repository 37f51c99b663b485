// Package layout assigns planar positions to the part-of forest and to the
// function layer above it.
//
// # Product layer
//
// Widths are computed bottom-up: a leaf reserves one horizontal slot
// (XGap), an internal node the larger of one slot and the sum of its
// children's widths. Positions are then assigned top-down. Roots are laid
// out left to right, each starting where the previous root's subtree ended
// plus one extra slot. Within a subtree a node is centered over its
// children:
//
//	x = xStart + max(0, Σ width(child) − XGap) / 2
//	y = depth × YGap
//
// and children start at xStart, each advancing by its own subtree width.
// Every node of a subtree lies inside [xStart, xStart + width − XGap], so two
// nodes on the same row are always at least XGap apart.
//
// # Function layer
//
// Function nodes sit on a single row at FunctionY (above the products, since
// y grows downward). See [PlaceFunctions].
//
// Both passes use explicit stacks and are pure functions of their input.
package layout

import (
	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/hierarchy"
	"github.com/matzehuels/imfgraph/pkg/imf"
)

// Default geometry.
const (
	DefaultXGap        = 250
	DefaultYGap        = 150
	DefaultFunctionY   = -400
	DefaultFunctionGap = 150
)

// Options controls the layout geometry.
type Options struct {
	XGap        float64 `toml:"x_gap" json:"x_gap"`               // horizontal slot per leaf
	YGap        float64 `toml:"y_gap" json:"y_gap"`               // vertical distance between generations
	FunctionY   float64 `toml:"function_y" json:"function_y"`     // y of the function layer
	FunctionGap float64 `toml:"function_gap" json:"function_gap"` // horizontal distance between functions
	NodeWidth   float64 `toml:"node_width" json:"node_width"`
	NodeHeight  float64 `toml:"node_height" json:"node_height"`
}

// DefaultOptions returns the standard editor geometry.
func DefaultOptions() Options {
	return Options{
		XGap:        DefaultXGap,
		YGap:        DefaultYGap,
		FunctionY:   DefaultFunctionY,
		FunctionGap: DefaultFunctionGap,
		NodeWidth:   imf.DefaultNodeWidth,
		NodeHeight:  imf.DefaultNodeHeight,
	}
}

// Validate rejects geometry that would let nodes collide.
func (o Options) Validate() error {
	switch {
	case o.XGap <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "layout x_gap must be positive, got %v", o.XGap)
	case o.YGap <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "layout y_gap must be positive, got %v", o.YGap)
	case o.FunctionGap <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "layout function_gap must be positive, got %v", o.FunctionGap)
	case o.NodeWidth <= 0 || o.NodeHeight <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "layout node size must be positive, got %vx%v", o.NodeWidth, o.NodeHeight)
	}
	return nil
}

// Result holds the computed subtree widths and positions by component name.
type Result struct {
	Widths    map[string]float64
	Positions map[string]imf.Position
}

// Position returns the position of name.
func (r *Result) Position(name string) imf.Position { return r.Positions[name] }

// Width returns the subtree width of name.
func (r *Result) Width(name string) float64 { return r.Widths[name] }

// Compute lays out the forest.
func Compute(f *hierarchy.Forest, opts Options) *Result {
	r := &Result{
		Widths:    computeWidths(f, opts.XGap),
		Positions: make(map[string]imf.Position, f.Len()),
	}

	type frame struct {
		name   string
		xStart float64
	}

	var xRoot float64
	for _, root := range f.Roots() {
		stack := []frame{{name: root, xStart: xRoot}}
		for len(stack) > 0 {
			fr := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			kids := f.Children(fr.name)
			var childrenWidth float64
			for _, k := range kids {
				childrenWidth += r.Widths[k]
			}
			r.Positions[fr.name] = imf.Position{
				X: fr.xStart + max(0, childrenWidth-opts.XGap)/2,
				Y: float64(f.Node(fr.name).Depth) * opts.YGap,
			}

			starts := make([]float64, len(kids))
			x := fr.xStart
			for i, k := range kids {
				starts[i] = x
				x += r.Widths[k]
			}
			// Push right to left so children pop in input order.
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, frame{name: kids[i], xStart: starts[i]})
			}
		}
		xRoot += r.Widths[root] + opts.XGap
	}
	return r
}

// computeWidths returns width(n) = max(xGap, Σ width(child)) for every node.
func computeWidths(f *hierarchy.Forest, xGap float64) map[string]float64 {
	widths := make(map[string]float64, f.Len())
	for _, name := range f.PostOrder() {
		var sum float64
		for _, k := range f.Children(name) {
			sum += widths[k]
		}
		widths[name] = max(xGap, sum)
	}
	return widths
}
