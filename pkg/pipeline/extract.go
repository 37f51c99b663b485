package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/matzehuels/imfgraph/pkg/ai"
	"github.com/matzehuels/imfgraph/pkg/cache"
	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/observability"
	"github.com/matzehuels/imfgraph/pkg/recovery"
)

// =============================================================================
// Generate
// =============================================================================

// GenerateWithCacheInfo sends prompt to the generator for the given pass and
// reports whether the response came from the cache.
func (r *Runner) GenerateWithCacheInfo(ctx context.Context, pass ai.Pass, prompt string, opts Options) (string, bool, error) {
	if r.Generator == nil {
		return "", false, errors.New(errors.ErrCodeInvalidConfig, "no text generator configured")
	}
	logger := r.logger(opts)

	keyOpts := cache.GenerationKeyOpts{Pass: string(pass), Model: r.Model}
	if r.Temperature != nil {
		keyOpts.Temperature = *r.Temperature
	}
	cacheKey := r.Keyer.GenerationKey(cache.Hash([]byte(prompt)), keyOpts)

	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, cacheKey); err == nil && hit {
			observability.Cache().OnCacheHit(ctx, "generate")
			return string(data), true, nil
		}
		observability.Cache().OnCacheMiss(ctx, "generate")
	}

	v, err, _ := r.group.Do(cacheKey, func() (any, error) {
		hooks := observability.Generation()
		hooks.OnGenerateStart(ctx, string(pass), r.Model)
		start := time.Now()

		resp, err := r.Generator.Generate(ctx, prompt, r.generateOptions()...)
		if err != nil {
			hooks.OnGenerateComplete(ctx, string(pass), r.Model, 0, 0, time.Since(start), err)
			if errors.GetCode(err) == "" {
				err = errors.Wrap(errors.ErrCodeGeneration, err, "%s pass", pass)
			}
			return nil, err
		}
		hooks.OnGenerateComplete(ctx, string(pass), resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, time.Since(start), nil)
		logger.Info("generated",
			"pass", pass,
			"model", resp.Model,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
			"duration", time.Since(start))

		if r.Cache.Set(ctx, cacheKey, []byte(resp.Text), cache.TTLGeneration) == nil {
			observability.Cache().OnCacheSet(ctx, "generate", len(resp.Text))
		}
		return resp.Text, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

func (r *Runner) generateOptions() []ai.GenerateOption {
	var opts []ai.GenerateOption
	if r.Model != "" {
		opts = append(opts, ai.WithModel(r.Model))
	}
	if r.Temperature != nil {
		opts = append(opts, ai.WithTemperature(*r.Temperature))
	}
	return opts
}

// =============================================================================
// Two-pass extraction
// =============================================================================

// ExtractHierarchy runs the first pass and returns the recovered component
// hierarchy as indented JSON.
func (r *Runner) ExtractHierarchy(ctx context.Context, text string, opts Options) ([]byte, bool, error) {
	out, hit, err := r.GenerateWithCacheInfo(ctx, ai.PassHierarchy, ai.HierarchyPrompt(text), opts)
	if err != nil {
		return nil, false, err
	}
	rec, err := r.Recover(ctx, out, opts)
	if err != nil {
		return nil, hit, errors.Wrap(errors.GetCode(err), err, "component hierarchy")
	}
	return indent(rec.Data), hit, nil
}

// ExtractRelations runs the second pass given the first-pass hierarchy and
// returns the recovered relations mapping as indented JSON.
func (r *Runner) ExtractRelations(ctx context.Context, text string, hierarchy []byte, opts Options) ([]byte, bool, error) {
	compact, err := recovery.Compact(hierarchy)
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeInvalidInput, err, "component hierarchy is not valid JSON")
	}
	out, hit, err := r.GenerateWithCacheInfo(ctx, ai.PassRelations, ai.RelationsPrompt(text, string(compact)), opts)
	if err != nil {
		return nil, false, err
	}
	rec, err := r.Recover(ctx, out, opts)
	if err != nil {
		return nil, hit, errors.Wrap(errors.GetCode(err), err, "relations")
	}
	return indent(rec.Data), hit, nil
}

// ProcessDocument runs both generation passes over document text and
// converts the result. progress is called at the start of each stage.
func (r *Runner) ProcessDocument(ctx context.Context, text string, opts Options, progress ProgressFunc) (*Processed, error) {
	logger := r.logger(opts)
	out := &Processed{}

	progress.report(StageHierarchy)
	start := time.Now()
	hierarchy, hit, err := r.ExtractHierarchy(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	out.Hierarchy = hierarchy
	out.CacheInfo.HierarchyHit = hit
	out.Stats.HierarchyTime = time.Since(start)
	logger.Debug("extracted hierarchy", "bytes", len(hierarchy), "cached", hit)

	progress.report(StageRelations)
	start = time.Now()
	relations, hit, err := r.ExtractRelations(ctx, text, hierarchy, opts)
	if err != nil {
		return nil, err
	}
	out.Relations = relations
	out.CacheInfo.RelationsHit = hit
	out.Stats.RelationsTime = time.Since(start)

	progress.report(StageConverting)
	start = time.Now()
	res, hit, err := r.ConvertWithCacheInfo(ctx, relations, opts)
	if err != nil {
		return nil, err
	}
	out.Conversion = res
	out.CacheInfo.ConvertHit = hit
	out.Stats.ConvertTime = time.Since(start)
	return out, nil
}

// Answer asks a question about document text.
func (r *Runner) Answer(ctx context.Context, text, question string, opts Options) (string, error) {
	if question == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "question is empty")
	}
	out, _, err := r.GenerateWithCacheInfo(ctx, ai.PassChat, ai.ChatPrompt(text, question), opts)
	return out, err
}

// indent pretty-prints valid JSON with four spaces, keeping key order.
func indent(data []byte) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "    "); err != nil {
		return data
	}
	return buf.Bytes()
}
