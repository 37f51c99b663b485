package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	imferrors "github.com/matzehuels/imfgraph/pkg/errors"
)

func TestApplyOptions(t *testing.T) {
	o := ApplyOptions(WithModel("m"), WithTemperature(0), WithSystemPrompts("a", "b"))
	if o.Model != "m" {
		t.Errorf("Model = %q", o.Model)
	}
	if o.Temperature == nil || *o.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0", o.Temperature)
	}
	if len(o.SystemPrompts) != 2 {
		t.Errorf("SystemPrompts = %v", o.SystemPrompts)
	}
	if ApplyOptions().Temperature != nil {
		t.Error("Temperature set without option")
	}
}

func TestRetryPolicy(t *testing.T) {
	fast := RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	transient := errors.New("transient")
	permanent := errors.New("permanent")

	tests := []struct {
		name      string
		errs      []error // returned by successive calls; nil means success
		wantCalls int
		wantErr   error
	}{
		{"success", []error{nil}, 1, nil},
		{"recovers", []error{Retryable(transient), nil}, 2, nil},
		{"permanent", []error{permanent, nil}, 1, permanent},
		{"exhausted", []error{Retryable(transient), Retryable(transient), Retryable(transient)}, 3, transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fast.Do(context.Background(), func() error {
				err := tt.errs[calls]
				calls++
				return err
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := RetryPolicy{Attempts: 3, Delay: time.Hour}
	err := p.Do(ctx, func() error { return Retryable(errors.New("x")) })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRetryableNil(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) != nil")
	}
	if IsRetryable(errors.New("x")) {
		t.Error("plain error is retryable")
	}
}

func TestWithRetry(t *testing.T) {
	calls := 0
	g := WithRetry(GeneratorFunc(func(ctx context.Context, prompt string, _ GenerateOptions) (*Response, error) {
		calls++
		if calls == 1 {
			return nil, Retryable(errors.New("busy"))
		}
		return &Response{Text: "ok:" + prompt}, nil
	}), RetryPolicy{Attempts: 2, Delay: time.Millisecond})

	resp, err := g.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "ok:p" || calls != 2 {
		t.Errorf("resp = %q after %d calls", resp.Text, calls)
	}
}

func TestRateLimited(t *testing.T) {
	echo := GeneratorFunc(func(ctx context.Context, prompt string, _ GenerateOptions) (*Response, error) {
		return &Response{Text: prompt}, nil
	})

	if g := NewRateLimited(echo, 0); g == nil {
		t.Fatal("nil generator")
	} else if _, ok := g.(*RateLimited); ok {
		t.Error("perMinute 0 should not wrap")
	}

	g := NewRateLimited(echo, 1)
	if _, err := g.Generate(context.Background(), "first"); err != nil {
		t.Fatalf("first request: %v", err)
	}

	// The second token is a minute away.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Generate(ctx, "second")
	if !imferrors.Is(err, imferrors.ErrCodeRateLimited) {
		t.Errorf("err = %v, want RATE_LIMITED", err)
	}
}

func TestPrompts(t *testing.T) {
	h := HierarchyPrompt("  pump text \n")
	if !strings.HasPrefix(h, "Document:\n\"\"\"\npump text\n\"\"\"") {
		t.Errorf("HierarchyPrompt prefix: %q", h[:40])
	}
	if !strings.Contains(h, "Cooling system_A001") {
		t.Error("HierarchyPrompt is missing the example")
	}

	r := RelationsPrompt("pump text", `{"S_1": {}}`)
	if !strings.Contains(r, `{"S_1": {}}`) || !strings.Contains(r, `"hasTerminal"`) {
		t.Error("RelationsPrompt is missing the hierarchy or relation names")
	}

	c := ChatPrompt("pump text", " what pumps? ")
	if !strings.HasSuffix(c, "Question: what pumps?\n\nAnswer:") {
		t.Errorf("ChatPrompt suffix: %q", c)
	}
}
