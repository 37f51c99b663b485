package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/imf"
)

// maxIssuesShown bounds the issue list printed after a conversion.
const maxIssuesShown = 10

type convertOpts struct {
	output  string
	noCache bool
	refresh bool
	strict  bool
}

// convertCommand creates the convert command.
func (c *CLI) convertCommand() *cobra.Command {
	var opts convertOpts

	cmd := &cobra.Command{
		Use:   "convert [relations.json|-]",
		Short: "Convert a relations mapping into an IMF graph document",
		Long: `Convert a relations mapping into an IMF graph document.

The input may be raw text generator output: code fences, surrounding prose,
missing or trailing commas and a missing closing brace are repaired before the
mapping is parsed. Components keep the order they have in the input.

Unresolved parents, part-of cycles and unknown connection targets are reported
as warnings; use --strict to fail on them instead.`,
		Example: `  imfgraph convert pump_manual.json
  imfgraph convert pump_manual.json -o pump.imf
  cat generator_output.txt | imfgraph convert - > pump.imf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runConvert(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: <input>.imf, stdout for -)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "recompute even when cached")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail when the conversion reports issues")

	return cmd
}

func (c *CLI) runConvert(ctx context.Context, input string, opts convertOpts) error {
	text, err := readInput(input)
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

	prog := newProgress(c.Logger)
	res, cached, err := runner.ConvertTextWithCacheInfo(ctx, text, c.pipelineOptions(cfg, opts.refresh))
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Converted %d components", res.Stats.Products))

	if opts.strict && len(res.Issues) > 0 {
		printIssues(res.Issues, maxIssuesShown)
		return errors.New(errors.ErrCodeInvalidInput, "conversion reported %d issues", len(res.Issues))
	}

	data, err := imf.MarshalDocument(res.Document)
	if err != nil {
		return err
	}
	output := outputPath(input, opts.output, ".imf")
	if output == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := imf.WriteFileAtomic(output, data); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	printSuccess("Conversion complete")
	printFile(output)
	printStats(res.Stats, cached)
	printIssues(res.Issues, maxIssuesShown)
	printNewline()
	printNextStep("Preview", "imfgraph render "+output)
	return nil
}

// readInput reads a file, or stdin for "-".
func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", errors.New(errors.ErrCodeFileNotFound, "file not found: %s", path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// outputPath returns explicit when set, "" (stdout) for stdin input, and
// otherwise input with its extension replaced by ext.
func outputPath(input, explicit, ext string) string {
	if explicit != "" {
		return explicit
	}
	if input == "-" {
		return ""
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}
