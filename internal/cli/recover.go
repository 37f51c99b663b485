package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/imfgraph/pkg/imf"
)

// recoverCommand creates the recover command.
func (c *CLI) recoverCommand() *cobra.Command {
	var (
		output  string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "recover [file|-]",
		Short: "Repair text generator output into strict JSON",
		Long: `Repair text generator output into a strict JSON object.

Newlines are removed, missing commas between members are inserted, trailing
commas are dropped and everything outside the outermost braces is discarded.
If the result still lacks a closing brace, one is appended and parsing is
retried once. Key order is preserved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRecover(cmd.Context(), args[0], output, noCache)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}

func (c *CLI) runRecover(ctx context.Context, input, output string, noCache bool) error {
	text, err := readInput(input)
	if err != nil {
		return err
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	runner, err := c.newRunner(ctx, cfg, noCache, false)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	res, err := runner.Recover(ctx, text, c.pipelineOptions(cfg, false))
	if err != nil {
		return err
	}
	if res.Retried {
		c.Logger.Warn("appended a closing brace to complete the object")
	}

	data := indent(res.Data)
	if output == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := imf.WriteFileAtomic(output, data); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	printSuccess("Recovered JSON object")
	printFile(output)
	return nil
}

// indent pretty-prints JSON with four spaces, the layout the processed files
// use. Invalid input is returned unchanged.
func indent(data []byte) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "    "); err != nil {
		return data
	}
	return buf.Bytes()
}
