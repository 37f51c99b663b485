// Package render draws IMF documents for preview.
//
// # Overview
//
// The converter already computes every position, so rendering never asks
// Graphviz for a layout. [ToDOT] pins each block at its document position
// and [RenderSVG] runs the neato engine, which honours pinned nodes and only
// routes the straight edges.
//
//	dot := render.ToDOT(doc, render.DefaultOptions())
//	svg, err := render.RenderSVG(ctx, dot)
//	pdf, err := render.ToPDF(svg)
//
// [Render] does all of the above for a format name.
//
// # Styling
//
// Products are rounded boxes and functions are ellipses. Part edges are
// solid; fulfilled edges are dashed.
//
// # Dependencies
//
// SVG rendering runs in-process through [github.com/goccy/go-graphviz].
// PDF and PNG conversion requires librsvg (rsvg-convert).
package render
