// Package observability provides optional instrumentation hooks.
//
// Libraries emit events through the registered hooks; main registers real
// implementations (a metrics exporter, a tracer) at startup. Defaults are
// no-ops, so nothing here pulls in an observability backend.
//
//	observability.SetConversionHooks(&promHooks{})
//
//	observability.Conversion().OnConvertStart(ctx, len(comps))
//	res, err := convert.Convert(comps, opts)
//	observability.Conversion().OnConvertComplete(ctx, nodes, edges, time.Since(start), err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Hook Interfaces
// =============================================================================

// ConversionHooks receives events from recovery and conversion.
type ConversionHooks interface {
	// OnRecover fires after generator output was run through recovery.
	// retried reports that the closing-brace repair was needed.
	OnRecover(ctx context.Context, inputBytes int, retried bool, err error)

	OnConvertStart(ctx context.Context, components int)
	OnConvertComplete(ctx context.Context, nodes, edges int, duration time.Duration, err error)

	// OnIssue fires once per soft finding of a conversion.
	OnIssue(ctx context.Context, kind, component, reference string)
}

// GenerationHooks receives events from the text generator.
type GenerationHooks interface {
	OnGenerateStart(ctx context.Context, pass, model string)
	OnGenerateComplete(ctx context.Context, pass, model string, promptTokens, completionTokens int64, duration time.Duration, err error)
}

// CacheHooks receives events from cache lookups. keyType is the pipeline
// stage ("generate", "recover", "convert", "render").
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// TaskHooks receives events from the background task runner.
type TaskHooks interface {
	OnTaskStart(ctx context.Context, taskID, document string)
	OnTaskComplete(ctx context.Context, taskID, status string, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopConversionHooks ignores all events.
type NoopConversionHooks struct{}

func (NoopConversionHooks) OnRecover(context.Context, int, bool, error)                       {}
func (NoopConversionHooks) OnConvertStart(context.Context, int)                               {}
func (NoopConversionHooks) OnConvertComplete(context.Context, int, int, time.Duration, error) {}
func (NoopConversionHooks) OnIssue(context.Context, string, string, string)                   {}

// NoopGenerationHooks ignores all events.
type NoopGenerationHooks struct{}

func (NoopGenerationHooks) OnGenerateStart(context.Context, string, string) {}
func (NoopGenerationHooks) OnGenerateComplete(context.Context, string, string, int64, int64, time.Duration, error) {
}

// NoopCacheHooks ignores all events.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopTaskHooks ignores all events.
type NoopTaskHooks struct{}

func (NoopTaskHooks) OnTaskStart(context.Context, string, string)                   {}
func (NoopTaskHooks) OnTaskComplete(context.Context, string, string, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	hooksMu         sync.RWMutex
	conversionHooks ConversionHooks = NoopConversionHooks{}
	generationHooks GenerationHooks = NoopGenerationHooks{}
	cacheHooks      CacheHooks      = NoopCacheHooks{}
	taskHooks       TaskHooks       = NoopTaskHooks{}
)

// SetConversionHooks registers conversion hooks. nil is ignored.
func SetConversionHooks(h ConversionHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		conversionHooks = h
	}
}

// SetGenerationHooks registers generation hooks. nil is ignored.
func SetGenerationHooks(h GenerationHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		generationHooks = h
	}
}

// SetCacheHooks registers cache hooks. nil is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetTaskHooks registers task hooks. nil is ignored.
func SetTaskHooks(h TaskHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		taskHooks = h
	}
}

// Conversion returns the registered conversion hooks.
func Conversion() ConversionHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return conversionHooks
}

// Generation returns the registered generation hooks.
func Generation() GenerationHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return generationHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Task returns the registered task hooks.
func Task() TaskHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return taskHooks
}

// Reset restores the no-op defaults. Intended for tests.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	conversionHooks = NoopConversionHooks{}
	generationHooks = NoopGenerationHooks{}
	cacheHooks = NoopCacheHooks{}
	taskHooks = NoopTaskHooks{}
}
