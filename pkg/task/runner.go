package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/imfgraph/pkg/errors"
	"github.com/matzehuels/imfgraph/pkg/observability"
	"github.com/matzehuels/imfgraph/pkg/pipeline"
)

// DefaultTimeout bounds one task.
const DefaultTimeout = 10 * time.Minute

// Job is the work of one task. It returns the name of the file it produced.
type Job func(ctx context.Context, progress pipeline.ProgressFunc) (string, error)

// Runner executes jobs in background goroutines.
type Runner struct {
	store   Store
	logger  *log.Logger
	timeout time.Duration
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex // guards closed and wg.Add against Shutdown
	closed bool
}

// NewRunner returns a runner recording statuses in store. A timeout <= 0
// uses DefaultTimeout.
func NewRunner(store Store, logger *log.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:   store,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit records a new processing task for document and starts job. The
// job outlives ctx; it is bounded by the runner's timeout and Shutdown.
func (r *Runner) Submit(ctx context.Context, document string, job Job) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", errors.New(errors.ErrCodeUnavailable, "task runner is shut down")
	}
	r.wg.Add(1)
	r.mu.Unlock()

	id := uuid.NewString()
	if err := r.put(ctx, Status{
		ID:       id,
		State:    StateProcessing,
		Progress: pipeline.StageExtracting.Progress,
		Message:  pipeline.StageExtracting.Message,
		Document: document,
	}); err != nil {
		r.wg.Done()
		return "", errors.Wrap(errors.ErrCodeInternal, err, "record task")
	}

	go r.run(id, document, job)
	return id, nil
}

// Status returns the status of id, or a not_found status.
func (r *Runner) Status(ctx context.Context, id string) (Status, error) {
	st, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return NotFound(id), nil
	}
	return st, nil
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Shutdown cancels running jobs and waits for them, or for ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(id, document string, job Job) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	logger := r.logger.With("task", id, "document", document)
	hooks := observability.Task()
	hooks.OnTaskStart(ctx, id, document)
	start := time.Now()

	progress := func(s pipeline.Stage) {
		err := r.put(ctx, Status{
			ID:       id,
			State:    StateProcessing,
			Progress: s.Progress,
			Message:  s.Message,
			Document: document,
		})
		if err != nil {
			logger.Warn("record progress", "error", err)
		}
		logger.Debug(s.Message, "progress", s.Progress)
	}

	file, err := r.execute(ctx, job, progress)

	final := Status{ID: id, Document: document}
	switch {
	case err == nil:
		final.State = StateCompleted
		final.Progress = pipeline.StageComplete.Progress
		final.Message = pipeline.StageComplete.Message
		final.ProcessedFile = file
		logger.Info("task completed", "file", file, "duration", time.Since(start))
	case ctx.Err() == context.DeadlineExceeded:
		final.State = StateError
		final.Message = fmt.Sprintf("processing timed out after %s", r.timeout)
		logger.Error("task timed out", "timeout", r.timeout)
	default:
		final.State = StateError
		final.Message = errors.UserMessage(err)
		logger.Error("task failed", "error", err)
	}

	// The job context may be done; the final status must still be written.
	putCtx, putCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer putCancel()
	if err := r.put(putCtx, final); err != nil {
		logger.Error("record final status", "error", err)
	}
	hooks.OnTaskComplete(ctx, id, string(final.State), time.Since(start))
}

// execute runs job, turning a panic into an error.
func (r *Runner) execute(ctx context.Context, job Job, progress pipeline.ProgressFunc) (file string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New(errors.ErrCodeInternal, "task panicked: %v", p)
		}
	}()
	return job(ctx, progress)
}

func (r *Runner) put(ctx context.Context, st Status) error {
	st.UpdatedAt = r.now()
	return r.store.Put(ctx, st)
}
