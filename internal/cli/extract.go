package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/imfgraph/pkg/config"
	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/imf"
	"github.com/matzehuels/imfgraph/pkg/loader/pdf"
	"github.com/matzehuels/imfgraph/pkg/store"
)

type extractOpts struct {
	outDir  string
	noCache bool
	refresh bool
}

// extractCommand creates the extract command.
func (c *CLI) extractCommand() *cobra.Command {
	var opts extractOpts

	cmd := &cobra.Command{
		Use:   "extract [document.pdf|document.txt]",
		Short: "Extract an IMF graph document from a technical document",
		Long: `Extract an IMF graph document from a technical document.

The text generator is asked twice: first for the component hierarchy, then for
the relations of every component given that hierarchy. Both answers are
repaired and stored next to the converted graph document:

  <name>_components.json   component hierarchy
  <name>.json              relations mapping
  <name>.imf               IMF graph document

Requires a generator API key (IMFGRAPH_API_KEY or OPENAI_API_KEY). Generator
answers are cached, so repeating a run costs nothing unless --refresh is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runExtract(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "output-dir", "o", "", "output directory (default: store.dir from the configuration)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "ask the generator again even when cached")

	return cmd
}

func (c *CLI) runExtract(ctx context.Context, input string, opts extractOpts) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	text, err := documentText(ctx, input)
	if err != nil {
		return err
	}

	storeCfg := cfg.Store
	if opts.outDir != "" {
		storeCfg = config.StoreConfig{Backend: config.BackendFile, Dir: opts.outDir}
	}
	st, err := openStore(ctx, storeCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runner, err := c.newRunner(ctx, cfg, opts.noCache, true)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	spinner := newSpinnerWithContext(ctx, "Starting...")
	spinner.Start()
	out, err := runner.ProcessDocument(ctx, text, c.pipelineOptions(cfg, opts.refresh), spinner.Progress())
	if err != nil {
		spinner.StopWithError("Extraction failed")
		return err
	}
	spinner.Stop()

	doc, err := imf.MarshalDocument(out.Conversion.Document)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	rec := store.Record{Name: name, Hierarchy: out.Hierarchy, Relations: out.Relations, Document: doc}
	if err := st.Save(ctx, rec); err != nil {
		return err
	}

	printSuccess("Extraction complete")
	if fs, ok := st.(*store.FileStore); ok {
		for _, suffix := range []string{store.SuffixHierarchy, store.SuffixRelations, store.SuffixDocument} {
			printFile(filepath.Join(fs.Dir(), name+suffix))
		}
	} else {
		printDetail("Stored as %q", name)
	}
	printStats(out.Conversion.Stats, out.CacheInfo.RelationsHit && out.CacheInfo.ConvertHit)
	printIssues(out.Conversion.Issues, maxIssuesShown)
	c.Logger.Debug("generation timings",
		"hierarchy", out.Stats.HierarchyTime,
		"relations", out.Stats.RelationsTime,
		"convert", out.Stats.ConvertTime)
	return nil
}

// askCommand creates the ask command.
func (c *CLI) askCommand() *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "ask [document.pdf|document.txt] [question]",
		Short: "Ask the text generator a question about a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			text, err := documentText(ctx, args[0])
			if err != nil {
				return err
			}
			runner, err := c.newRunner(ctx, cfg, noCache, true)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			defer runner.Close()

			answer, err := runner.Answer(ctx, text, args[1], c.pipelineOptions(cfg, false))
			if err != nil {
				return err
			}
			fmt.Println(strings.TrimSpace(answer))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	return cmd
}

// documentText returns the text of a PDF through pdftotext, or the contents
// of any other file as is.
func documentText(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return pdf.New().TextFile(ctx, path)
	}
	text, err := readInput(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "%s is empty", path)
	}
	return text, nil
}
