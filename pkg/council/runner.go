package council

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conclave-labs/conclave/pkg/config"
	"github.com/conclave-labs/conclave/pkg/llm"
)

// Task is one model call to dispatch.
type Task struct {
	Model         string
	SystemPrompts []string
	UserPrompt    string
}

// TaskResult is one slot of a RunAll call. Exactly one of Text or Err is
// meaningful; Err always carries an llm.ErrorKind.
type TaskResult struct {
	Model    string
	Text     string
	Err      error
	Attempts int
	Latency  time.Duration
}

// OK reports whether the slot completed with usable text.
func (r TaskResult) OK() bool {
	return r.Err == nil
}

// ErrKind returns the classification of a failed slot ("" when ok).
func (r TaskResult) ErrKind() llm.ErrorKind {
	if r.Err == nil {
		return ""
	}
	return llm.KindOf(r.Err)
}

// StageRunner dispatches a stage's tasks concurrently with a per-task
// deadline and bounded retry of transient/timeout failures. Partial success
// is the normal outcome: RunAll never fails as a whole.
type StageRunner struct {
	client llm.ModelClient
	retry  config.RetryPolicy
}

// NewStageRunner creates a runner over the given model client.
func NewStageRunner(client llm.ModelClient, retry config.RetryPolicy) *StageRunner {
	return &StageRunner{client: client, retry: retry}
}

// RunAll dispatches all tasks concurrently and blocks until every slot is
// resolved. Results preserve input task order regardless of completion
// order. When ctx is cancelled, in-flight tasks are signalled to abort and
// unresolved slots come back with a canceled error.
func (r *StageRunner) RunAll(ctx context.Context, tasks []Task, perTaskTimeout time.Duration) []TaskResult {
	results := make([]TaskResult, len(tasks))

	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = r.runTask(ctx, task, perTaskTimeout)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// RunOne dispatches a single task (used for the chairman, the adjudicator,
// and title generation).
func (r *StageRunner) RunOne(ctx context.Context, task Task, timeout time.Duration) TaskResult {
	return r.runTask(ctx, task, timeout)
}

// runTask runs one task with retries. Only Transient and Timeout errors are
// retried; Permanent errors and run cancellation end the slot immediately.
func (r *StageRunner) runTask(ctx context.Context, task Task, timeout time.Duration) TaskResult {
	result := TaskResult{Model: task.Model}
	start := time.Now()

	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if ctx.Err() != nil {
			result.Err = llm.NewError(llm.ErrorKindCanceled, task.Model, context.Cause(ctx))
			break
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		text, err := r.client.Complete(attemptCtx, llm.CompletionRequest{
			Model:         task.Model,
			SystemPrompts: task.SystemPrompts,
			UserPrompt:    task.UserPrompt,
		})
		cancel()

		if err == nil {
			result.Text = text
			result.Err = nil
			break
		}

		kind := llm.KindOf(err)
		// The attempt context expiring reads as a timeout even when the run
		// itself was cancelled; the parent context is authoritative.
		if ctx.Err() != nil {
			kind = llm.ErrorKindCanceled
		}
		result.Err = ensureClassified(kind, task.Model, err)

		if !kind.Retryable() || attempt == r.retry.MaxAttempts {
			break
		}

		delay := r.backoff(attempt)
		slog.Debug("Retrying model call",
			"model", task.Model, "attempt", attempt, "kind", kind, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			result.Err = llm.NewError(llm.ErrorKindCanceled, task.Model, context.Cause(ctx))
			result.Latency = time.Since(start)
			return result
		}
	}

	result.Latency = time.Since(start)
	return result
}

// backoff returns the sleep before the next attempt: exponential growth
// capped at BackoffCap, with full jitter.
func (r *StageRunner) backoff(attempt int) time.Duration {
	backoff := r.retry.BackoffBase << (attempt - 1)
	if backoff > r.retry.BackoffCap || backoff <= 0 {
		backoff = r.retry.BackoffCap
	}
	if backoff <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(backoff)))
}

// ensureClassified guarantees the slot error is an *llm.Error of the given
// kind so callers can rely on ErrKind.
func ensureClassified(kind llm.ErrorKind, model string, err error) error {
	var me *llm.Error
	if errors.As(err, &me) && me.Kind == kind {
		return err
	}
	return llm.NewError(kind, model, err)
}
