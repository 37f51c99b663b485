package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/matzehuels/imfgraph/pkg/imf"
)

// Options configures DOT generation.
type Options struct {
	// Detailed adds the block label under the display name.
	Detailed bool
	// Scale multiplies document coordinates; 1 maps one pixel to one point.
	Scale float64
}

// DefaultOptions draws at three quarters of editor size.
func DefaultOptions() Options {
	return Options{Scale: 0.75}
}

// ToDOT converts an IMF document to Graphviz DOT with every node pinned at
// its document position. The result is meant for neato (see [RenderSVG]);
// no layout is computed by Graphviz.
//
// Document coordinates grow downward and name the top-left corner of a block,
// while DOT positions grow upward and name the center, so y is flipped and
// shifted by half the block size.
func ToDOT(doc *imf.Document, opts Options) string {
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}

	var buf bytes.Buffer
	buf.WriteString("digraph IMF {\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  inputscale=72;\n")
	buf.WriteString("  splines=line;\n")
	buf.WriteString("  outputorder=edgesfirst;\n")
	buf.WriteString("  node [fixedsize=true, fontsize=10, fontname=\"Helvetica\", style=\"filled\", penwidth=1.2];\n")
	buf.WriteString("  edge [arrowsize=0.6, penwidth=1.0];\n")
	buf.WriteString("\n")

	for _, n := range doc.Nodes {
		cx := (n.Position.X + n.Width/2) * scale
		cy := -(n.Position.Y + n.Height/2) * scale
		attrs := []string{
			fmt.Sprintf("label=%q", nodeLabel(n, opts.Detailed)),
			fmt.Sprintf("pos=\"%.2f,%.2f!\"", cx, cy),
			fmt.Sprintf("width=%.3f", n.Width*scale/72),
			fmt.Sprintf("height=%.3f", n.Height*scale/72),
		}
		attrs = append(attrs, aspectAttrs(n.Data.Aspect)...)
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range doc.Edges {
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", e.Source, e.Target, strings.Join(edgeAttrs(e.Type), ", "))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeLabel(n imf.Node, detailed bool) string {
	name := n.Data.CustomName
	if name == "" {
		name = n.ID
	}
	if !detailed {
		return name
	}
	return name + "\n" + n.Data.Label
}

func aspectAttrs(a imf.Aspect) []string {
	switch a {
	case imf.AspectFunction:
		return []string{"shape=ellipse", "fillcolor=\"#fdf1dc\"", "color=\"#c98a1b\""}
	default:
		return []string{"shape=box", "style=\"rounded,filled\"", "fillcolor=\"#e6f0fa\"", "color=\"#2f6fab\""}
	}
}

func edgeAttrs(t imf.EdgeType) []string {
	switch t {
	case imf.EdgeFulfilled:
		return []string{"style=dashed", "arrowhead=vee", "color=\"#c98a1b\""}
	default:
		return []string{"arrowhead=onormal", "color=\"#2f6fab\""}
	}
}
