// Package openai implements ai.Generator on the OpenAI chat completions API
// and any server compatible with it.
package openai

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/matzehuels/imfgraph/pkg/ai"
	"github.com/matzehuels/imfgraph/pkg/errors"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gpt-4o-mini"

// Options configures a Generator.
type Options struct {
	BaseURL     string // empty uses the OpenAI endpoint
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration // per request; 0 leaves the client default
}

// Generator calls the chat completions endpoint.
type Generator struct {
	client      openai.Client
	model       string
	temperature float64
}

// New returns a Generator. An API key is required.
func New(opts Options) (*Generator, error) {
	if opts.APIKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "generator API key is not set")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// Retries are handled by ai.WithRetry.
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &Generator{
		client:      openai.NewClient(reqOpts...),
		model:       model,
		temperature: opts.Temperature,
	}, nil
}

// Model returns the default model name.
func (g *Generator) Model() string { return g.model }

// Generate implements ai.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string, opts ...ai.GenerateOption) (*ai.Response, error) {
	o := ai.ApplyOptions(opts...)
	model := g.model
	if o.Model != "" {
		model = o.Model
	}
	temperature := g.temperature
	if o.Temperature != nil {
		temperature = *o.Temperature
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(o.SystemPrompts)+1)
	for _, sp := range o.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    msgs,
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(errors.ErrCodeGeneration, "model %s returned no choices", model)
	}

	return &ai.Response{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
		Usage: ai.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// classify wraps API failures; throttling and server errors are retryable.
func classify(err error) error {
	wrapped := errors.Wrap(errors.ErrCodeGeneration, err, "chat completion")

	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ai.Retryable(errors.Wrap(errors.ErrCodeRateLimited, err, "chat completion"))
		case apiErr.StatusCode >= 500:
			return ai.Retryable(wrapped)
		}
		return wrapped
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeTimeout, err, "chat completion")
	}
	// Transport failures.
	return ai.Retryable(wrapped)
}

var _ ai.Generator = (*Generator)(nil)
