package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/imfgraph/pkg/observability"
)

// logHooks reports cache and generation events at debug level, so --verbose
// shows where a run spent its time and tokens.
type logHooks struct {
	logger *log.Logger
}

func (h logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "stage", keyType)
}

func (h logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "stage", keyType)
}

func (h logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "stage", keyType, "bytes", size)
}

func (h logHooks) OnGenerateStart(_ context.Context, pass, model string) {
	h.logger.Debug("generating", "pass", pass, "model", model)
}

func (h logHooks) OnGenerateComplete(_ context.Context, pass, model string, promptTokens, completionTokens int64, duration time.Duration, err error) {
	if err != nil {
		h.logger.Debug("generation failed", "pass", pass, "model", model, "error", err)
		return
	}
	h.logger.Debug("generated",
		"pass", pass,
		"model", model,
		"prompt_tokens", promptTokens,
		"completion_tokens", completionTokens,
		"duration", duration.Round(time.Millisecond))
}

// installHooks registers logHooks for the process.
func (c *CLI) installHooks() {
	h := logHooks{logger: c.Logger}
	observability.SetCacheHooks(h)
	observability.SetGenerationHooks(h)
}

var (
	_ observability.CacheHooks      = logHooks{}
	_ observability.GenerationHooks = logHooks{}
)
