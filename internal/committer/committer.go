package committer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"inksync/internal/logger"
	"inksync/internal/model"
	"inksync/internal/store"
)

const (
	commitTimeFormat = "2006-01-02 15:04:05"

	// shutdownSyncBound caps how long the final best-effort sync may hold
	// up process exit.
	shutdownSyncBound = 10 * time.Second
)

// Flusher drains unsaved documents before a snapshot.
type Flusher interface {
	FlushAll(ctx context.Context) error
	HasUnsaved() bool
}

// Snapshotter is the repository slice a commit pass needs.
type Snapshotter interface {
	HasChanges(ctx context.Context) (bool, error)
	CurrentBranch(ctx context.Context) (string, error)
	SwitchBranch(ctx context.Context, name string) error
	Snapshot(ctx context.Context, message string) (string, error)
}

// SyncRunner is consulted before a pass and kicked after lifecycle
// snapshots. The engine supplies it so conflict publication stays there.
type SyncRunner interface {
	IsSyncing() bool
	Sync(ctx context.Context) (model.SyncResult, error)
	FetchOnly(ctx context.Context) (bool, error)
}

type Recorder interface {
	Record(workspace string, action model.Action, status model.Status, detail string) error
}

type Config struct {
	Repo      Snapshotter
	Saver     Flusher
	Sync      SyncRunner
	Recorder  Recorder
	Workspace string
	Branch    string

	Interval   time.Duration // periodic snapshot interval
	DeferDelay time.Duration // retry delay while a sync holds the guard
	Buffer     int           // trigger channel capacity

	Now func() time.Time
}

// Committer serializes whole-tree snapshots behind a trigger channel. One
// run loop per workspace; triggers never block their caller.
type Committer struct {
	repo       Snapshotter
	saver      Flusher
	sync       SyncRunner
	rec        Recorder
	workspace  string
	branch     string
	interval   time.Duration
	deferDelay time.Duration
	now        func() time.Time

	triggers chan model.CommitTrigger

	mu         sync.Mutex
	timer      *time.Timer
	paused     bool
	commits    int
	lastCommit time.Time
}

func New(cfg Config) *Committer {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = 3 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Committer{
		repo:       cfg.Repo,
		saver:      cfg.Saver,
		sync:       cfg.Sync,
		rec:        cfg.Recorder,
		workspace:  cfg.Workspace,
		branch:     cfg.Branch,
		interval:   cfg.Interval,
		deferDelay: cfg.DeferDelay,
		now:        cfg.Now,
		triggers:   make(chan model.CommitTrigger, cfg.Buffer),
	}
}

// Run drains the trigger channel until the context ends. Commit passes are
// strictly sequential.
func (c *Committer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.disarm()
			return
		case trigger := <-c.triggers:
			c.pass(ctx, trigger)
		}
	}
}

// RequestCommit enqueues a snapshot request without blocking. A full
// channel drops the trigger; the periodic timer or the next lifecycle
// signal covers for it.
func (c *Committer) RequestCommit(trigger model.CommitTrigger) {
	if !trigger.Valid() {
		logger.Log.Warn("ignoring unknown commit trigger",
			zap.String("trigger", string(trigger)))
		return
	}

	select {
	case c.triggers <- trigger:
	default:
		logger.Log.Warn("commit trigger dropped",
			zap.String("workspace", c.workspace),
			zap.String("trigger", string(trigger)))
	}
}

// MarkDirty arms the periodic snapshot timer on the first edit after a
// pass; edits inside an armed window leave the deadline alone. A paused
// committer never arms.
func (c *Committer) MarkDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused || c.timer != nil {
		return
	}

	c.timer = time.AfterFunc(c.interval, func() {
		c.mu.Lock()
		c.timer = nil
		c.mu.Unlock()
		c.RequestCommit(model.TriggerPeriodic)
	})
}

// SetPaused toggles periodic snapshots. Pausing disarms the timer; manual
// triggers keep working.
func (c *Committer) SetPaused(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = v
	if v && c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Shutdown runs the final pass synchronously, then gives one bounded sync
// attempt a chance to publish it. Exit never waits past the bound.
func (c *Committer) Shutdown(ctx context.Context) {
	c.pass(ctx, model.TriggerShutdown)

	if c.sync == nil || c.sync.IsSyncing() {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		syncCtx, cancel := context.WithTimeout(context.Background(), shutdownSyncBound)
		defer cancel()
		if _, err := c.sync.Sync(syncCtx); err != nil {
			logger.Log.Warn("shutdown sync incomplete",
				zap.String("workspace", c.workspace),
				zap.Error(err))
		}
	}()

	select {
	case <-done:
	case <-time.After(shutdownSyncBound):
	}
}

func (c *Committer) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commits
}

func (c *Committer) LastCommit() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastCommit
}

// pass is one commit attempt. While a sync holds the guard the trigger is
// re-enqueued after deferDelay instead of being dropped; the shutdown
// trigger cannot wait and skips instead.
func (c *Committer) pass(ctx context.Context, trigger model.CommitTrigger) {
	if c.sync != nil && c.sync.IsSyncing() {
		if trigger == model.TriggerShutdown {
			logger.Log.Warn("skipping shutdown snapshot during sync",
				zap.String("workspace", c.workspace))
			return
		}

		logger.Log.Debug("commit deferred during sync",
			zap.String("workspace", c.workspace),
			zap.String("trigger", string(trigger)))
		time.AfterFunc(c.deferDelay, func() {
			c.RequestCommit(trigger)
		})
		return
	}

	c.snapshot(ctx, trigger)
	c.after(ctx, trigger)
	c.rearm()
}

func (c *Committer) snapshot(ctx context.Context, trigger model.CommitTrigger) {
	if err := c.saver.FlushAll(ctx); err != nil {
		// Snapshot whatever reached disk; the dirty documents stay dirty.
		logger.Log.Warn("flush before snapshot incomplete",
			zap.String("workspace", c.workspace),
			zap.Error(err))
	}

	if err := c.ensureBranch(ctx); err != nil {
		c.record(model.StatusFailed, err.Error())
		logger.Log.Error("branch check failed",
			zap.String("workspace", c.workspace),
			zap.Error(err))
		return
	}

	changed, err := c.repo.HasChanges(ctx)
	if err != nil {
		c.record(model.StatusFailed, err.Error())
		logger.Log.Error("failed to inspect workspace",
			zap.String("workspace", c.workspace),
			zap.Error(err))
		return
	}

	if !changed {
		c.record(model.StatusSkipped, string(trigger))
		logger.Log.Debug("nothing to commit",
			zap.String("workspace", c.workspace),
			zap.String("trigger", string(trigger)))
		return
	}

	id, err := c.repo.Snapshot(ctx, c.message(trigger))
	if err != nil {
		if errors.Is(err, store.ErrNothingToCommit) {
			c.record(model.StatusSkipped, string(trigger))
			return
		}

		c.record(model.StatusFailed, err.Error())
		logger.Log.Error("snapshot failed",
			zap.String("workspace", c.workspace),
			zap.Error(err))
		return
	}

	c.mu.Lock()
	c.commits++
	c.lastCommit = c.now()
	c.mu.Unlock()

	c.record(model.StatusSuccess, id)
	logger.Log.Info("snapshot created",
		zap.String("workspace", c.workspace),
		zap.String("trigger", string(trigger)),
		zap.String("id", id))
}

// ensureBranch force-switches back when something left the workspace on
// the wrong branch.
func (c *Committer) ensureBranch(ctx context.Context) error {
	current, err := c.repo.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if current == c.branch {
		return nil
	}

	logger.Log.Warn("workspace on wrong branch",
		zap.String("workspace", c.workspace),
		zap.String("current", current),
		zap.String("expected", c.branch))

	return c.repo.SwitchBranch(ctx, c.branch)
}

// after runs the lifecycle follow-up of a pass. Only a foreground resume
// has one: a lightweight refresh to notice remote motion.
func (c *Committer) after(ctx context.Context, trigger model.CommitTrigger) {
	if c.sync == nil || trigger != model.TriggerForegrounded {
		return
	}

	moved, err := c.sync.FetchOnly(ctx)
	if err != nil {
		logger.Log.Warn("fetch refresh failed",
			zap.String("workspace", c.workspace),
			zap.Error(err))
		return
	}
	if moved {
		logger.Log.Info("remote moved ahead",
			zap.String("workspace", c.workspace))
	}
}

// rearm leaves the periodic timer disarmed unless edits arrived during the
// pass.
func (c *Committer) rearm() {
	c.disarm()

	if c.saver.HasUnsaved() {
		c.MarkDirty()
	}
}

func (c *Committer) disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Committer) message(trigger model.CommitTrigger) string {
	stamp := c.now().Format(commitTimeFormat)
	if trigger == model.TriggerShutdown {
		return "Auto-commit on app close: " + stamp
	}

	return "Auto-commit: " + stamp
}

func (c *Committer) record(status model.Status, detail string) {
	if c.rec == nil {
		return
	}

	if err := c.rec.Record(c.workspace, model.ActionCommit, status, detail); err != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(err))
	}
}
