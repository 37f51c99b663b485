package task

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/pipeline"
)

func newTestRunner(timeout time.Duration) (*Runner, *MemoryStore) {
	store := NewMemoryStore()
	return NewRunner(store, log.New(io.Discard), timeout), store
}

func TestSubmitCompletes(t *testing.T) {
	r, _ := newTestRunner(time.Minute)
	ctx := context.Background()

	var seen []int
	var mu sync.Mutex
	id, err := r.Submit(ctx, "manual.pdf", func(ctx context.Context, progress pipeline.ProgressFunc) (string, error) {
		for _, s := range []pipeline.Stage{pipeline.StageHierarchy, pipeline.StageRelations, pipeline.StageConverting} {
			progress(s)
			mu.Lock()
			seen = append(seen, s.Progress)
			mu.Unlock()
		}
		return "manual.json", nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r.Wait()

	st, err := r.Status(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateCompleted || st.Progress != 100 || st.ProcessedFile != "manual.json" {
		t.Errorf("status = %+v", st)
	}
	if st.Message != "Processing complete!" || st.Document != "manual.pdf" {
		t.Errorf("status = %+v", st)
	}
	if len(seen) != 3 {
		t.Errorf("progress calls = %v", seen)
	}
}

func TestSubmitRecordsInitialStatus(t *testing.T) {
	r, _ := newTestRunner(time.Minute)
	ctx := context.Background()
	release := make(chan struct{})

	id, err := r.Submit(ctx, "doc.pdf", func(ctx context.Context, _ pipeline.ProgressFunc) (string, error) {
		<-release
		return "doc.json", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	st, _ := r.Status(ctx, id)
	if st.State != StateProcessing || st.Progress != 5 || st.Message != "Extracting text..." {
		t.Errorf("initial status = %+v", st)
	}
	close(release)
	r.Wait()
}

func TestSubmitFailure(t *testing.T) {
	r, _ := newTestRunner(time.Minute)
	id, _ := r.Submit(context.Background(), "doc.pdf", func(context.Context, pipeline.ProgressFunc) (string, error) {
		return "", errors.New(errors.ErrCodeMalformedOutput, "no JSON object found in generator output")
	})
	r.Wait()

	st, _ := r.Status(context.Background(), id)
	if st.State != StateError {
		t.Fatalf("state = %s", st.State)
	}
	if st.Message != "no JSON object found in generator output" {
		t.Errorf("message = %q", st.Message)
	}
	if !st.Done() {
		t.Error("error status is not done")
	}
}

func TestSubmitTimeout(t *testing.T) {
	r, _ := newTestRunner(20 * time.Millisecond)
	id, _ := r.Submit(context.Background(), "slow.pdf", func(ctx context.Context, _ pipeline.ProgressFunc) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	r.Wait()

	st, _ := r.Status(context.Background(), id)
	if st.State != StateError || st.Message != "processing timed out after 20ms" {
		t.Errorf("status = %+v", st)
	}
}

func TestSubmitPanic(t *testing.T) {
	r, _ := newTestRunner(time.Minute)
	id, _ := r.Submit(context.Background(), "bad.pdf", func(context.Context, pipeline.ProgressFunc) (string, error) {
		panic("boom")
	})
	r.Wait()

	st, _ := r.Status(context.Background(), id)
	if st.State != StateError || st.Message != "task panicked: boom" {
		t.Errorf("status = %+v", st)
	}
}

func TestStatusNotFound(t *testing.T) {
	r, _ := newTestRunner(time.Minute)
	st, err := r.Status(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateNotFound || st.ID != "missing" {
		t.Errorf("status = %+v", st)
	}
}

func TestShutdown(t *testing.T) {
	r, _ := newTestRunner(time.Minute)
	id, _ := r.Submit(context.Background(), "doc.pdf", func(ctx context.Context, _ pipeline.ProgressFunc) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if st, _ := r.Status(context.Background(), id); st.State != StateError {
		t.Errorf("cancelled task state = %s", st.State)
	}
	if _, err := r.Submit(context.Background(), "late.pdf", nil); !errors.Is(err, errors.ErrCodeUnavailable) {
		t.Errorf("Submit after Shutdown: err = %v", err)
	}
}

func TestSubmitDuringShutdown(t *testing.T) {
	r, _ := newTestRunner(time.Minute)
	job := func(ctx context.Context, _ pipeline.ProgressFunc) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Submit(context.Background(), "doc.pdf", job)
			if err != nil && !errors.Is(err, errors.ErrCodeUnavailable) {
				t.Errorf("Submit: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	wg.Wait()
	r.Wait()

	if _, err := r.Submit(context.Background(), "late.pdf", job); !errors.Is(err, errors.ErrCodeUnavailable) {
		t.Errorf("Submit after Shutdown: err = %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("IMFGRAPH_TEST_REDIS")
	if addr == "" {
		t.Skip("IMFGRAPH_TEST_REDIS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	s := NewRedisStore(rdb, "imfgraph:test:task:", time.Minute)

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("missing: ok=%v err=%v", ok, err)
	}
	want := Status{ID: "t1", State: StateProcessing, Progress: 25, Message: "Identifying components..."}
	if err := s.Put(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, "t1")
	if err != nil || !ok || got != want {
		t.Errorf("Get = %+v, %v, %v", got, ok, err)
	}
	_ = rdb.Del(ctx, "imfgraph:test:task:t1")
}

func TestStatusJSONShape(t *testing.T) {
	data, err := encode(NotFound("x"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"task_id":"x","status":"not_found"}` {
		t.Errorf("json = %s", data)
	}
	if _, err := decode([]byte("{")); err == nil {
		t.Error("decode accepted broken JSON")
	}
}
