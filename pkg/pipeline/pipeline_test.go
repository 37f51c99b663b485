package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/imfgraph/pkg/ai"
	"github.com/matzehuels/imfgraph/pkg/cache"
	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/imf"
	"github.com/matzehuels/imfgraph/pkg/observability"
	"github.com/matzehuels/imfgraph/pkg/render"
)

// Generator output as it typically arrives: fenced, with a missing comma
// and a trailing comma.
const relationsOutput = "```json\n{\n" +
	`"Cooling system_A001": {"tagID": "A001", "partOf": [], "fulfills": ["cool fluid"], "connectedTo": [], "hasTerminal": []}` + "\n" +
	`"pump system_B22": {"tagID": "B22", "partOf": ["Cooling system_A001"], "fulfills": [], "connectedTo": ["tank"], "hasTerminal": [],}` +
	"\n}\n```"

const hierarchyOutput = "Here is the hierarchy:\n" +
	`{"Cooling system_A001": {"pump system_B22": {}}}`

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedTime }
	opts.Logger = log.New(io.Discard)
	return opts
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewRunner(c, nil, log.New(io.Discard))
}

// fakeGenerator answers by pass and counts calls.
type fakeGenerator struct {
	calls atomic.Int32
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ ...ai.GenerateOption) (*ai.Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	text := hierarchyOutput
	switch {
	case strings.Contains(prompt, "Component hierarchy:"):
		text = relationsOutput
	case strings.Contains(prompt, "Question:"):
		text = "The pump system B22."
	}
	return &ai.Response{Text: text, Model: "fake", Usage: ai.Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
}

func TestConvertTextWithCacheInfo(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)

	res, hit, err := r.ConvertTextWithCacheInfo(ctx, relationsOutput, testOptions())
	if err != nil {
		t.Fatalf("ConvertText: %v", err)
	}
	if hit {
		t.Error("first conversion was a cache hit")
	}
	if got := len(res.Document.Nodes); got != 3 {
		t.Errorf("nodes = %d, want 3", got)
	}
	if len(res.Issues) != 1 || res.Issues[0].Kind != imf.IssueUnresolvedConnection {
		t.Errorf("issues = %v, want one unresolved_connection", res.Issues)
	}

	again, hit, err := r.ConvertTextWithCacheInfo(ctx, relationsOutput, testOptions())
	if err != nil {
		t.Fatalf("second ConvertText: %v", err)
	}
	if !hit {
		t.Error("second conversion missed the cache")
	}
	a, _ := imf.MarshalDocument(res.Document)
	b, _ := imf.MarshalDocument(again.Document)
	if string(a) != string(b) {
		t.Error("cached document differs")
	}
	if again.Stats != res.Stats {
		t.Errorf("cached stats = %+v, want %+v", again.Stats, res.Stats)
	}

	opts := testOptions()
	opts.Refresh = true
	if _, hit, _ := r.ConvertTextWithCacheInfo(ctx, relationsOutput, opts); hit {
		t.Error("Refresh still read the cache")
	}
}

func TestConvertOptionsChangeKey(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)
	rec, err := r.Recover(ctx, relationsOutput, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Convert(ctx, rec.Data, testOptions()); err != nil {
		t.Fatal(err)
	}
	wide := testOptions()
	wide.Layout.XGap = 400
	res, hit, err := r.ConvertWithCacheInfo(ctx, rec.Data, wide)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("different geometry hit the cache")
	}
	if b := res.Document.Node("B22"); b == nil || b.Position.X != 0 {
		t.Errorf("B22 = %+v", b)
	}
}

func TestConvertErrors(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)

	bad := testOptions()
	bad.Layout.XGap = 0
	if _, err := r.Convert(ctx, []byte(`{}`), bad); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("bad geometry: err = %v", err)
	}

	missing := []byte(`{"a": {"tagID": "", "partOf": []}}`)
	if _, err := r.Convert(ctx, missing, testOptions()); !errors.Is(err, errors.ErrCodeMissingIdentifier) {
		t.Errorf("missing tagID: err = %v", err)
	}

	if _, _, err := r.ConvertTextWithCacheInfo(ctx, "no json here", testOptions()); !errors.Is(err, errors.ErrCodeMalformedOutput) {
		t.Errorf("no object: err = %v", err)
	}
}

func TestRecoverCachesRetryFlag(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)
	text := `{"a": {"tagID": "A"}`

	first, hit, err := r.RecoverWithCacheInfo(ctx, text, testOptions())
	if err != nil || hit || !first.Retried {
		t.Fatalf("first = %+v, hit=%v, err=%v", first, hit, err)
	}
	second, hit, err := r.RecoverWithCacheInfo(ctx, text, testOptions())
	if err != nil || !hit {
		t.Fatalf("second hit=%v, err=%v", hit, err)
	}
	if !second.Retried || string(second.Data) != string(first.Data) {
		t.Errorf("cached = %+v, want %+v", second, first)
	}
}

func TestConcurrentConvert(t *testing.T) {
	ctx := context.Background()
	r := NewRunner(nil, nil, log.New(io.Discard))
	rec, err := r.Recover(ctx, relationsOutput, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	const n = 8
	docs := make([][]byte, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Convert(ctx, rec.Data, testOptions())
			if err != nil {
				t.Error(err)
				return
			}
			docs[i], _ = imf.MarshalDocument(res.Document)
		}()
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if string(docs[i]) != string(docs[0]) {
			t.Fatalf("result %d differs", i)
		}
	}
}

func TestProcessDocument(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)
	gen := &fakeGenerator{}
	r.Generator = gen

	var stages []int
	out, err := r.ProcessDocument(ctx, "The cooling system A001 has a pump system B22.", testOptions(), func(s Stage) {
		stages = append(stages, s.Progress)
	})
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if want := []int{25, 60, 90}; len(stages) != len(want) || stages[0] != 25 || stages[1] != 60 || stages[2] != 90 {
		t.Errorf("stages = %v, want %v", stages, want)
	}
	if gen.calls.Load() != 2 {
		t.Errorf("generator calls = %d, want 2", gen.calls.Load())
	}
	if !strings.Contains(string(out.Hierarchy), "\n    \"Cooling system_A001\"") {
		t.Errorf("hierarchy not indented:\n%s", out.Hierarchy)
	}
	if out.Conversion.Stats.Products != 2 || out.Conversion.Stats.Functions != 1 {
		t.Errorf("stats = %+v", out.Conversion.Stats)
	}

	again, err := r.ProcessDocument(ctx, "The cooling system A001 has a pump system B22.", testOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if gen.calls.Load() != 2 {
		t.Errorf("second run called the generator (%d calls)", gen.calls.Load())
	}
	if ci := again.CacheInfo; !ci.HierarchyHit || !ci.RelationsHit || !ci.ConvertHit {
		t.Errorf("cache info = %+v, want all hits", ci)
	}
}

func TestGenerateErrors(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)

	if _, _, err := r.GenerateWithCacheInfo(ctx, ai.PassHierarchy, "p", testOptions()); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("no generator: err = %v", err)
	}

	r.Generator = &fakeGenerator{err: stderrors.New("connection reset")}
	if _, err := r.ProcessDocument(ctx, "text", testOptions(), nil); !errors.Is(err, errors.ErrCodeGeneration) {
		t.Errorf("generator failure: err = %v", err)
	}
}

func TestAnswer(t *testing.T) {
	r := newTestRunner(t)
	r.Generator = &fakeGenerator{}

	got, err := r.Answer(context.Background(), "doc", "Which pump?", testOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got != "The pump system B22." {
		t.Errorf("Answer = %q", got)
	}
	if _, err := r.Answer(context.Background(), "doc", "", testOptions()); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("empty question: err = %v", err)
	}
}

func TestRenderWithCacheInfo(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(t)
	res, _, err := r.ConvertTextWithCacheInfo(ctx, relationsOutput, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	dot, hit, err := r.RenderWithCacheInfo(ctx, res.Document, render.FormatDOT, testOptions())
	if err != nil || hit {
		t.Fatalf("first render: hit=%v err=%v", hit, err)
	}
	if !strings.HasPrefix(string(dot), "digraph") {
		t.Errorf("not DOT: %s", dot)
	}
	if _, hit, _ := r.RenderWithCacheInfo(ctx, res.Document, render.FormatDOT, testOptions()); !hit {
		t.Error("second render missed the cache")
	}
	if _, _, err := r.RenderWithCacheInfo(ctx, res.Document, "gif", testOptions()); !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("bad format: err = %v", err)
	}
}

type issueRecorder struct {
	observability.NoopConversionHooks
	mu     sync.Mutex
	issues []string
}

func (h *issueRecorder) OnIssue(_ context.Context, kind, component, reference string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.issues = append(h.issues, kind+":"+component+"->"+reference)
}

func TestConversionHooks(t *testing.T) {
	rec := &issueRecorder{}
	observability.SetConversionHooks(rec)
	defer observability.Reset()

	r := NewRunner(nil, nil, log.New(io.Discard))
	if _, _, err := r.ConvertTextWithCacheInfo(context.Background(), relationsOutput, testOptions()); err != nil {
		t.Fatal(err)
	}
	want := "unresolved_connection:pump system_B22->tank"
	if len(rec.issues) != 1 || rec.issues[0] != want {
		t.Errorf("issues = %v, want [%s]", rec.issues, want)
	}
}
