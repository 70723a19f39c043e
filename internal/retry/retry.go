package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"inksync/internal/logger"
	"inksync/internal/model"
	"inksync/internal/store"
)

const (
	backoffBase = 30 * time.Second
	backoffCap  = 15 * time.Minute
)

// TaskStore is the persisted queue underneath the drainer.
type TaskStore interface {
	Pending() ([]model.PushTask, error)
	Delete(id uint) error
	MarkFailed(id uint, attempts int, next time.Time, msg string) error
	Count() (int64, error)
}

// Pusher is the one repository operation a retry needs.
type Pusher interface {
	Push(ctx context.Context, remote, branch string, cred store.Credential) error
}

type Recorder interface {
	Record(workspace string, action model.Action, status model.Status, detail string) error
}

type Config struct {
	Tasks    TaskStore
	Creds    store.CredentialSource
	Recorder Recorder
	// OpenRepo yields a pusher rooted at a task's workspace path.
	OpenRepo func(dir string) Pusher
	// Now is overridable in tests.
	Now func() time.Time
}

// Drainer replays queued push tasks. Nothing drains on its own; the queue
// moves only when Drain is called.
type Drainer struct {
	tasks TaskStore
	creds store.CredentialSource
	rec   Recorder
	open  func(dir string) Pusher
	now   func() time.Time
}

func New(cfg Config) *Drainer {
	d := &Drainer{
		tasks: cfg.Tasks,
		creds: cfg.Creds,
		rec:   cfg.Recorder,
		open:  cfg.OpenRepo,
		now:   cfg.Now,
	}
	if d.now == nil {
		d.now = time.Now
	}

	return d
}

// Summary reports one drain pass.
type Summary struct {
	Attempted int `json:"attempted"`
	Pushed    int `json:"pushed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Drain walks the queue in enqueue order and retries every task whose
// backoff window has passed. A pushed task leaves the queue; a failed one
// stays with more attempts and a longer window.
func (d *Drainer) Drain(ctx context.Context) (Summary, error) {
	tasks, err := d.tasks.Pending()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list push queue: %w", err)
	}

	var sum Summary
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if task.NextAttempt.After(d.now()) {
			sum.Skipped++
			continue
		}

		sum.Attempted++
		if err := d.retry(ctx, task); err != nil {
			sum.Failed++
			d.fail(task, err)
			continue
		}

		sum.Pushed++
		if err := d.tasks.Delete(task.ID); err != nil {
			logger.Log.Warn("failed to drop completed task",
				zap.Uint("id", task.ID),
				zap.Error(err))
		}
		d.record(task, model.StatusSuccess, "")
	}

	logger.Log.Info("push queue drained",
		zap.Int("pushed", sum.Pushed),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped))
	return sum, nil
}

func (d *Drainer) Size() (int64, error) {
	return d.tasks.Count()
}

func (d *Drainer) retry(ctx context.Context, task model.PushTask) error {
	cred, err := d.creds.Lookup(ctx, task.Credential)
	if err != nil {
		return err
	}

	return d.open(task.Workspace).Push(ctx, task.Remote, task.Branch, cred)
}

func (d *Drainer) fail(task model.PushTask, cause error) {
	attempts := task.Attempts + 1
	next := d.now().Add(Backoff(attempts))

	if err := d.tasks.MarkFailed(task.ID, attempts, next, cause.Error()); err != nil {
		logger.Log.Warn("failed to update task",
			zap.Uint("id", task.ID),
			zap.Error(err))
	}
	d.record(task, model.StatusFailed, cause.Error())

	// Waiting out the backoff will not fix a missing token or an open
	// conflict; say so instead of promising a next attempt.
	if store.NeedsUserAction(cause) {
		logger.Log.Warn("push retry blocked until resolved",
			zap.String("workspace", task.Workspace),
			zap.Error(cause))
		return
	}

	logger.Log.Warn("push retry failed",
		zap.String("workspace", task.Workspace),
		zap.Int("attempts", attempts),
		zap.Time("next", next),
		zap.Error(cause))
}

func (d *Drainer) record(task model.PushTask, status model.Status, detail string) {
	if d.rec == nil {
		return
	}

	if detail == "" {
		detail = task.Remote + "/" + task.Branch
	}
	if err := d.rec.Record(task.Workspace, model.ActionRetry, status, detail); err != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(err))
	}
}

// Backoff is the wait enforced after the given number of failed attempts:
// 30s doubling up to 15m.
func Backoff(attempts int) time.Duration {
	wait := backoffBase
	for i := 1; i < attempts; i++ {
		wait *= 2
		if wait >= backoffCap {
			return backoffCap
		}
	}

	return wait
}
