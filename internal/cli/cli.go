// Package cli implements the imfgraph command-line interface.
//
// # Commands
//
//   - convert: near-JSON relations mapping to an IMF graph document
//   - recover: generator output to strict JSON
//   - extract: PDF or text document to hierarchy, relations and IMF document
//   - ask: question about a document, answered by the text generator
//   - render: IMF document to DOT, SVG, PDF or PNG previews
//   - serve: HTTP server with background document processing
//   - cache: manage the local pipeline cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. The logger is
// attached to the command context and handed to the pipeline runner.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/imfgraph/pkg/ai"
	"github.com/matzehuels/imfgraph/pkg/ai/openai"
	"github.com/matzehuels/imfgraph/pkg/buildinfo"
	"github.com/matzehuels/imfgraph/pkg/cache"
	"github.com/matzehuels/imfgraph/pkg/config"
	"github.com/matzehuels/imfgraph/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "imfgraph"

	// redisKeyPrefix namespaces pipeline entries in a shared Redis.
	redisKeyPrefix = "imfgraph:"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "imfgraph turns component descriptions into IMF graph documents",
		Long:         `imfgraph recovers the relations mapping a text generator extracts from a technical document, arranges the components as a part-of hierarchy and writes an editor-ready IMF graph document.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.installHooks()
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "TOML configuration file")

	root.AddCommand(c.convertCommand())
	root.AddCommand(c.recoverCommand())
	root.AddCommand(c.extractCommand())
	root.AddCommand(c.askCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads --config, .env and the environment.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("loaded configuration", "file", c.configPath, "cache", cfg.Cache.Backend, "store", cfg.Store.Backend)
	return cfg, nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use. The generator is attached
// only when withGenerator is set, so offline commands work without an API key.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config, noCache, withGenerator bool) (*pipeline.Runner, error) {
	store, keyer, err := newCache(ctx, cfg.Cache, noCache)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewRunner(store, keyer, c.Logger)
	if !withGenerator {
		return runner, nil
	}

	gen, err := newGenerator(cfg.Generator)
	if err != nil {
		runner.Close()
		return nil, err
	}
	runner.Generator = gen
	runner.Model = cfg.Generator.Model
	temperature := cfg.Generator.Temperature
	runner.Temperature = &temperature
	return runner, nil
}

// newGenerator builds the OpenAI-compatible generator. Every attempt of a
// retried request waits for the rate limiter.
func newGenerator(cfg config.GeneratorConfig) (ai.Generator, error) {
	g, err := openai.New(openai.Options{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return ai.WithRetry(ai.NewRateLimited(g, cfg.RequestsPerMinute), ai.DefaultRetryPolicy), nil
}

// newCache opens the configured cache backend. A file cache that cannot be
// created degrades to no caching.
func newCache(ctx context.Context, cfg config.CacheConfig, noCache bool) (cache.Cache, cache.Keyer, error) {
	if noCache {
		return cache.NewNullCache(), nil, nil
	}
	switch cfg.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil, nil
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return rc, cache.NewScopedKeyer(nil, redisKeyPrefix), nil
	}

	dir := cfg.Dir
	if dir == "" {
		var err error
		if dir, err = cacheDir(); err != nil {
			return cache.NewNullCache(), nil, nil
		}
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return cache.NewNullCache(), nil, nil
	}
	return fc, nil, nil
}

// pipelineOptions maps the configuration onto pipeline options.
func (c *CLI) pipelineOptions(cfg *config.Config, refresh bool) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Layout = cfg.Layout
	opts.Refresh = refresh
	opts.Logger = c.Logger
	return opts
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/imfgraph/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
