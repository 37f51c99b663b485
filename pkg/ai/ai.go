// Package ai defines the text generator used to turn document text into
// component hierarchies and relations.
//
// A [Generator] is a single-turn prompt → text call. Wrappers add behaviour
// without changing the interface:
//
//	g := ai.WithRetry(ai.NewRateLimited(openaiGen, 30), ai.DefaultRetryPolicy)
//
// Concrete backends live in sub-packages (see ai/openai).
package ai

import (
	"context"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Response, error)
}

// Response is a completion and its token accounting.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Usage counts tokens consumed by one request.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// GenerateOptions holds per-request settings. Zero values mean "use the
// backend default".
type GenerateOptions struct {
	Model         string
	SystemPrompts []string
	Temperature   *float64
}

// GenerateOption configures a request.
type GenerateOption func(*GenerateOptions)

// WithModel overrides the backend's model.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts prepends system messages to the request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &t
	}
}

// ApplyOptions folds opts into a GenerateOptions.
func ApplyOptions(opts ...GenerateOption) GenerateOptions {
	var o GenerateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Response, error) {
	return f(ctx, prompt, ApplyOptions(opts...))
}
