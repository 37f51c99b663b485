// Package config loads imfgraph settings from a TOML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the TOML file, a .env file in
// the working directory, process environment variables.
//
//	[layout]
//	x_gap = 250
//
//	[generator]
//	model = "gpt-4o-mini"
//	requests_per_minute = 30
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/layout"
)

// Backend names.
const (
	BackendNone   = "none"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Config is the complete configuration.
type Config struct {
	Layout    layout.Options  `toml:"layout"`
	Generator GeneratorConfig `toml:"generator"`
	Server    ServerConfig    `toml:"server"`
	Cache     CacheConfig     `toml:"cache"`
	Store     StoreConfig     `toml:"store"`
}

// GeneratorConfig configures the text generator.
type GeneratorConfig struct {
	BaseURL           string        `toml:"base_url"`
	APIKey            string        `toml:"api_key"`
	Model             string        `toml:"model"`
	Temperature       float64       `toml:"temperature"`
	RequestsPerMinute int           `toml:"requests_per_minute"`
	Timeout           time.Duration `toml:"timeout"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr        string        `toml:"addr"`
	UploadDir   string        `toml:"upload_dir"`
	MaxUploadMB int64         `toml:"max_upload_mb"`
	TaskTimeout time.Duration `toml:"task_timeout"`
	// TaskBackend is "memory" or "redis" (shares cache.redis_addr).
	TaskBackend string `toml:"task_backend"`
}

// CacheConfig selects the pipeline cache.
type CacheConfig struct {
	Backend       string `toml:"backend"` // none, file, redis
	Dir           string `toml:"dir"`     // empty uses the user cache dir
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// StoreConfig selects where processed documents are kept.
type StoreConfig struct {
	Backend    string `toml:"backend"` // file, mongo
	Dir        string `toml:"dir"`
	MongoURI   string `toml:"mongo_uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Layout: layout.DefaultOptions(),
		Generator: GeneratorConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			Timeout:     5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:        ":5001",
			UploadDir:   "uploads",
			MaxUploadMB: 32,
			TaskTimeout: 15 * time.Minute,
			TaskBackend: BackendMemory,
		},
		Cache: CacheConfig{Backend: BackendFile},
		Store: StoreConfig{
			Backend:    BackendFile,
			Dir:        "processed_data",
			Database:   "imfgraph",
			Collection: "documents",
		},
	}
}

// Load reads path (optional), a .env file (optional) and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read .env")
	}
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment and no .env file.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", filepath.Base(path))
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown keys in %s: %s", filepath.Base(path), strings.Join(keys, ", "))
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from IMFGRAPH_* variables. OPENAI_API_KEY is
// honoured when IMFGRAPH_API_KEY is unset.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("OPENAI_API_KEY", &c.Generator.APIKey)
	str("IMFGRAPH_API_KEY", &c.Generator.APIKey)
	str("IMFGRAPH_BASE_URL", &c.Generator.BaseURL)
	str("IMFGRAPH_MODEL", &c.Generator.Model)
	str("IMFGRAPH_ADDR", &c.Server.Addr)
	str("IMFGRAPH_UPLOAD_DIR", &c.Server.UploadDir)
	str("IMFGRAPH_TASK_BACKEND", &c.Server.TaskBackend)
	str("IMFGRAPH_CACHE_BACKEND", &c.Cache.Backend)
	str("IMFGRAPH_CACHE_DIR", &c.Cache.Dir)
	str("IMFGRAPH_REDIS_ADDR", &c.Cache.RedisAddr)
	str("IMFGRAPH_REDIS_PASSWORD", &c.Cache.RedisPassword)
	str("IMFGRAPH_STORE_BACKEND", &c.Store.Backend)
	str("IMFGRAPH_STORE_DIR", &c.Store.Dir)
	str("IMFGRAPH_MONGO_URI", &c.Store.MongoURI)

	if v, ok := lookup("IMFGRAPH_REQUESTS_PER_MINUTE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "IMFGRAPH_REQUESTS_PER_MINUTE")
		}
		c.Generator.RequestsPerMinute = n
	}
	if v, ok := lookup("IMFGRAPH_TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "IMFGRAPH_TEMPERATURE")
		}
		c.Generator.Temperature = f
	}
	if v, ok := lookup("IMFGRAPH_TASK_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "IMFGRAPH_TASK_TIMEOUT")
		}
		c.Server.TaskTimeout = d
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return err
	}

	g := c.Generator
	if g.Temperature < 0 || g.Temperature > 2 {
		return errors.New(errors.ErrCodeInvalidConfig, "generator temperature must be within [0, 2], got %v", g.Temperature)
	}
	if g.RequestsPerMinute < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "generator requests_per_minute cannot be negative")
	}

	if c.Server.MaxUploadMB <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "server max_upload_mb must be positive")
	}
	switch c.Server.TaskBackend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "task_backend redis requires cache.redis_addr")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown task backend %q (must be memory or redis)", c.Server.TaskBackend)
	}

	switch c.Cache.Backend {
	case BackendNone, BackendFile:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache backend redis requires redis_addr")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q (must be none, file or redis)", c.Cache.Backend)
	}

	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Dir == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "store backend file requires dir")
		}
	case BackendMongo:
		if c.Store.MongoURI == "" || c.Store.Database == "" || c.Store.Collection == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "store backend mongo requires mongo_uri, database and collection")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown store backend %q (must be file or mongo)", c.Store.Backend)
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return c.Server.MaxUploadMB << 20 }
