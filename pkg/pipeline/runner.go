package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/imfgraph/pkg/ai"
	"github.com/matzehuels/imfgraph/pkg/cache"
	"github.com/matzehuels/imfgraph/pkg/convert"
	"github.com/matzehuels/imfgraph/pkg/imf"
	"github.com/matzehuels/imfgraph/pkg/observability"
	"github.com/matzehuels/imfgraph/pkg/recovery"
	"github.com/matzehuels/imfgraph/pkg/render"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner keeps no pipeline results of its own; everything lives in the
// cache. Multiple goroutines can safely use the same Runner with different
// options. Results shared through the cache or an in-flight computation must
// be treated as read-only.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// Generator is required by the generation stages only.
	Generator ai.Generator
	// Model and Temperature are sent with every generation request and are
	// part of the generation cache key. Empty/zero use the generator default.
	Model       string
	Temperature *float64

	group singleflight.Group
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// =============================================================================
// Recover
// =============================================================================

type recovered struct {
	Data    json.RawMessage `json:"data"`
	Retried bool            `json:"retried"`
}

// RecoverWithCacheInfo turns generator output into strict JSON and reports
// whether the result came from the cache.
func (r *Runner) RecoverWithCacheInfo(ctx context.Context, text string, opts Options) (*recovery.Result, bool, error) {
	logger := r.logger(opts)
	cacheKey := r.Keyer.RecoverKey(cache.Hash([]byte(text)))

	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, cacheKey); err == nil && hit {
			var cached recovered
			if err := json.Unmarshal(data, &cached); err == nil {
				observability.Cache().OnCacheHit(ctx, "recover")
				return &recovery.Result{Data: cached.Data, Retried: cached.Retried}, true, nil
			}
		}
		observability.Cache().OnCacheMiss(ctx, "recover")
	}

	res, err := recovery.Recover(text)
	observability.Conversion().OnRecover(ctx, len(text), res != nil && res.Retried, err)
	if err != nil {
		logger.Debug("recovery failed", "bytes", len(text), "error", err)
		return nil, false, err
	}
	if res.Retried {
		logger.Warn("generator output was missing a closing brace")
	}

	if data, err := json.Marshal(recovered{Data: res.Data, Retried: res.Retried}); err == nil {
		if r.Cache.Set(ctx, cacheKey, data, cache.TTLRecover) == nil {
			observability.Cache().OnCacheSet(ctx, "recover", len(data))
		}
	}
	return res, false, nil
}

// Recover is RecoverWithCacheInfo without the cache hit info.
func (r *Runner) Recover(ctx context.Context, text string, opts Options) (*recovery.Result, error) {
	res, _, err := r.RecoverWithCacheInfo(ctx, text, opts)
	return res, err
}

// =============================================================================
// Convert
// =============================================================================

type converted struct {
	Document *imf.Document `json:"document"`
	Issues   []imf.Issue   `json:"issues"`
	Stats    convert.Stats `json:"stats"`
}

// ConvertWithCacheInfo converts a strictly valid relations mapping and
// reports whether the document came from the cache.
//
// A cached document keeps the timestamps of the run that produced it.
func (r *Runner) ConvertWithCacheInfo(ctx context.Context, relations []byte, opts Options) (*convert.Result, bool, error) {
	if err := opts.Validate(); err != nil {
		return nil, false, err
	}
	logger := r.logger(opts)
	cacheKey := r.Keyer.ConvertKey(cache.Hash(relations), opts.ConvertKeyOpts())

	if !opts.Refresh {
		if res, ok := r.cachedConversion(ctx, cacheKey); ok {
			observability.Cache().OnCacheHit(ctx, "convert")
			return res, true, nil
		}
		observability.Cache().OnCacheMiss(ctx, "convert")
	}

	v, err, shared := r.group.Do(cacheKey, func() (any, error) {
		return r.convert(ctx, relations, opts, cacheKey, logger)
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		logger.Debug("joined in-flight conversion", "key", cacheKey)
	}
	return v.(*convert.Result), false, nil
}

// Convert is ConvertWithCacheInfo without the cache hit info.
func (r *Runner) Convert(ctx context.Context, relations []byte, opts Options) (*convert.Result, error) {
	res, _, err := r.ConvertWithCacheInfo(ctx, relations, opts)
	return res, err
}

// ConvertTextWithCacheInfo recovers near-JSON relations text and converts it.
func (r *Runner) ConvertTextWithCacheInfo(ctx context.Context, text string, opts Options) (*convert.Result, bool, error) {
	rec, err := r.Recover(ctx, text, opts)
	if err != nil {
		return nil, false, err
	}
	return r.ConvertWithCacheInfo(ctx, rec.Data, opts)
}

func (r *Runner) cachedConversion(ctx context.Context, key string) (*convert.Result, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		return nil, false
	}
	var cached converted
	if err := json.Unmarshal(data, &cached); err != nil || cached.Document == nil {
		return nil, false
	}
	return &convert.Result{Document: cached.Document, Issues: cached.Issues, Stats: cached.Stats}, true
}

func (r *Runner) convert(ctx context.Context, relations []byte, opts Options, cacheKey string, logger *log.Logger) (*convert.Result, error) {
	comps, err := imf.ParseRelations(relations)
	if err != nil {
		return nil, err
	}

	hooks := observability.Conversion()
	hooks.OnConvertStart(ctx, len(comps))
	start := time.Now()

	res, err := convert.Convert(comps, opts.ConvertOptions())
	if err != nil {
		hooks.OnConvertComplete(ctx, 0, 0, time.Since(start), err)
		return nil, err
	}
	hooks.OnConvertComplete(ctx, len(res.Document.Nodes), len(res.Document.Edges), time.Since(start), nil)

	for _, is := range res.Issues {
		hooks.OnIssue(ctx, string(is.Kind), is.Component, is.Reference)
		logger.Warn("conversion issue", "kind", is.Kind, "component", is.Component, "reference", is.Reference)
	}
	logger.Info("converted relations",
		"products", res.Stats.Products,
		"functions", res.Stats.Functions,
		"edges", len(res.Document.Edges),
		"issues", len(res.Issues),
		"duration", time.Since(start))

	data, err := json.Marshal(converted{Document: res.Document, Issues: res.Issues, Stats: res.Stats})
	if err == nil && r.Cache.Set(ctx, cacheKey, data, cache.TTLConvert) == nil {
		observability.Cache().OnCacheSet(ctx, "convert", len(data))
	}
	return res, nil
}

// =============================================================================
// Render
// =============================================================================

// RenderWithCacheInfo renders a preview of doc and reports whether it came
// from the cache.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, doc *imf.Document, format string, opts Options) ([]byte, bool, error) {
	if err := render.ValidateFormat(format); err != nil {
		return nil, false, err
	}
	docData, err := imf.MarshalDocument(doc)
	if err != nil {
		return nil, false, fmt.Errorf("serialize document for cache key: %w", err)
	}
	optData, _ := json.Marshal(opts.Render)
	cacheKey := r.Keyer.RenderKey(cache.Hash(bytes.Join([][]byte{docData, optData}, []byte{0})), format)

	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, cacheKey); err == nil && hit {
			observability.Cache().OnCacheHit(ctx, "render")
			return data, true, nil
		}
		observability.Cache().OnCacheMiss(ctx, "render")
	}

	out, err := render.Render(ctx, doc, format, opts.Render)
	if err != nil {
		return nil, false, err
	}
	if r.Cache.Set(ctx, cacheKey, out, cache.TTLRender) == nil {
		observability.Cache().OnCacheSet(ctx, "render", len(out))
	}
	return out, false, nil
}

// Render is RenderWithCacheInfo without the cache hit info.
func (r *Runner) Render(ctx context.Context, doc *imf.Document, format string, opts Options) ([]byte, error) {
	out, _, err := r.RenderWithCacheInfo(ctx, doc, format, opts)
	return out, err
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// logger returns the options' logger, falling back to the runner's.
func (r *Runner) logger(opts Options) *log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return r.Logger
}
