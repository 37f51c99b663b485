package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/imfgraph/pkg/imf"
	"github.com/matzehuels/imfgraph/pkg/render"
)

type renderOpts struct {
	output   string
	formats  []string
	detailed bool
	scale    float64
	noCache  bool
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var formatsStr string
	opts := renderOpts{scale: render.DefaultOptions().Scale}

	cmd := &cobra.Command{
		Use:   "render [document.imf]",
		Short: "Render an IMF graph document as a preview",
		Long: `Render an IMF graph document as a preview.

Nodes are drawn at the positions stored in the document: components as boxes,
functions as ellipses, part-of edges solid and fulfilled edges dashed. DOT
output needs nothing else; SVG is rendered with Graphviz and PDF/PNG are
converted from SVG with rsvg-convert.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formats = parseFormats(formatsStr)
			for _, f := range opts.formats {
				if err := render.ValidateFormat(f); err != nil {
					return err
				}
			}
			return c.runRender(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), dot, pdf, png (comma-separated)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show tag ids and labels")
	cmd.Flags().Float64Var(&opts.scale, "scale", opts.scale, "points per document pixel")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")

	return cmd
}

// parseFormats parses the --format flag. If empty, defaults to ["svg"].
func parseFormats(s string) []string {
	if s == "" {
		return []string{render.FormatSVG}
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func (c *CLI) runRender(ctx context.Context, input string, opts renderOpts) error {
	doc, err := imf.ReadDocumentFile(input)
	if err != nil {
		return err
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	runner, err := c.newRunner(ctx, cfg, opts.noCache, false)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	popts := c.pipelineOptions(cfg, false)
	popts.Render.Detailed = opts.detailed
	popts.Render.Scale = opts.scale

	var paths []string
	for _, format := range opts.formats {
		data, cached, err := runner.RenderWithCacheInfo(ctx, doc, format, popts)
		if err != nil {
			return fmt.Errorf("render %s: %w", format, err)
		}
		path := renderPath(input, opts.output, format, len(opts.formats) > 1)
		if err := imf.WriteFileAtomic(path, data); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		c.Logger.Debug("rendered", "format", format, "bytes", len(data), "cached", cached)
		paths = append(paths, path)
	}

	printSuccess("Rendered %d nodes, %d edges", len(doc.Nodes), len(doc.Edges))
	for _, p := range paths {
		printFile(p)
	}
	return nil
}

// renderPath names the file for one format. An explicit output is used as is
// for a single format and as a base path for several.
func renderPath(input, output, format string, multi bool) string {
	if output != "" && !multi {
		return output
	}
	base := output
	if base == "" {
		base = input
	}
	return outputPath(base, "", "."+format)
}
