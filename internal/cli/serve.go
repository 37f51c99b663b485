package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/imfgraph/pkg/cache"
	"github.com/matzehuels/imfgraph/pkg/config"
	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/loader/pdf"
	"github.com/matzehuels/imfgraph/pkg/server"
	"github.com/matzehuels/imfgraph/pkg/store"
	"github.com/matzehuels/imfgraph/pkg/task"
)

// taskKeyPrefix namespaces task statuses in Redis.
const taskKeyPrefix = redisKeyPrefix + "task:"

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server.

Uploaded PDFs are processed in the background; clients poll
/status/{task_id} until the task completes and then fetch the result from
/documents/{name}. Stop the server with Ctrl-C; running tasks get the shutdown
grace period to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from the configuration)")
	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}

	runner, err := c.newRunner(ctx, cfg, false, true)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	statuses, closeStatuses, err := openTaskStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStatuses()

	srv, err := server.New(server.Config{
		Runner:         runner,
		Tasks:          task.NewRunner(statuses, c.Logger, cfg.Server.TaskTimeout),
		Store:          st,
		Extractor:      pdf.New(),
		Options:        c.pipelineOptions(cfg, false),
		Logger:         c.Logger,
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})
	if err != nil {
		return err
	}

	c.Logger.Info("starting server",
		"addr", addr,
		"model", cfg.Generator.Model,
		"cache", cfg.Cache.Backend,
		"store", cfg.Store.Backend,
		"tasks", cfg.Server.TaskBackend)
	return srv.ListenAndServe(ctx, addr)
}

// =============================================================================
// Backends
// =============================================================================

// openStore opens the processed-document store.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		return store.NewMongoStore(ctx, store.MongoOptions{
			URI:        cfg.MongoURI,
			Database:   cfg.Database,
			Collection: cfg.Collection,
		})
	case config.BackendFile, "":
		return store.NewFileStore(cfg.Dir)
	}
	return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown store backend %q", cfg.Backend)
}

// openTaskStore opens the task status store. The returned func releases it.
func openTaskStore(ctx context.Context, cfg *config.Config) (task.Store, func(), error) {
	if cfg.Server.TaskBackend != config.BackendRedis {
		return task.NewMemoryStore(), func() {}, nil
	}
	rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	return task.NewRedisStore(rc.Client(), taskKeyPrefix, 0), func() { _ = rc.Close() }, nil
}
