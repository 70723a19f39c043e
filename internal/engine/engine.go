package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"inksync/internal/committer"
	"inksync/internal/conflict"
	"inksync/internal/logger"
	"inksync/internal/model"
	"inksync/internal/retry"
	"inksync/internal/saver"
	"inksync/internal/store"
	"inksync/internal/syncer"
)

// TaskQueue is the engine's slice of the persisted push queue.
type TaskQueue interface {
	Enqueue(task model.PushTask) error
	CountForWorkspace(path string) (int64, error)
}

type Recorder interface {
	Record(workspace string, action model.Action, status model.Status, detail string) error
}

// QueueDrainer replays the queue on demand.
type QueueDrainer interface {
	Drain(ctx context.Context) (retry.Summary, error)
}

type Config struct {
	Workspace model.Workspace
	Docs      store.DocumentStore
	Repo      store.Repository
	Creds     store.CredentialSource
	Tasks     TaskQueue
	History   Recorder
	Drainer   QueueDrainer

	Debounce   time.Duration
	Interval   time.Duration
	DeferDelay time.Duration
	Buffer     int
}

// Engine ties the three tiers of one workspace together: debounced
// document saves, lifecycle snapshots and remote sync with its conflict
// and retry machinery.
type Engine struct {
	ws    model.Workspace
	docs  store.DocumentStore
	repo  store.Repository
	creds store.CredentialSource
	tasks TaskQueue
	rec   Recorder
	drain QueueDrainer

	saver *saver.Saver
	comm  *committer.Committer
	sync  *syncer.Syncer
	coord *conflict.Coordinator

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	startedAt time.Time
	lastSync  time.Time
	syncs     int
	failed    int
}

func New(cfg Config) *Engine {
	e := &Engine{
		ws:    cfg.Workspace,
		docs:  cfg.Docs,
		repo:  cfg.Repo,
		creds: cfg.Creds,
		tasks: cfg.Tasks,
		rec:   cfg.History,
		drain: cfg.Drainer,
	}

	e.saver = saver.New(cfg.Docs, cfg.Debounce)

	e.sync = syncer.New(syncer.Config{
		Repo:      cfg.Repo,
		Creds:     cfg.Creds,
		Queue:     cfg.Tasks,
		Recorder:  cfg.History,
		Workspace: cfg.Workspace.Path,
		Remote:    cfg.Workspace.Remote,
		Branch:    cfg.Workspace.Branch,
	})

	e.coord = conflict.New(conflict.Config{
		Repo:      cfg.Repo,
		Sync:      observedSync{e},
		Recorder:  cfg.History,
		Workspace: cfg.Workspace.Path,
	})

	e.comm = committer.New(committer.Config{
		Repo:       cfg.Repo,
		Saver:      e.saver,
		Sync:       e,
		Recorder:   cfg.History,
		Workspace:  cfg.Workspace.Path,
		Branch:     cfg.Workspace.Branch,
		Interval:   cfg.Interval,
		DeferDelay: cfg.DeferDelay,
		Buffer:     cfg.Buffer,
	})

	e.saver.OnDirty(e.comm.MarkDirty)
	e.saver.OnError(func(rel string, err error) {
		e.record(model.ActionSave, model.StatusFailed, rel+": "+err.Error())
	})

	return e
}

// Start launches the commit loop. The engine keeps running until Shutdown.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.mu.Lock()
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.comm.Run(runCtx)
	}()

	logger.Log.Info("engine started",
		zap.String("workspace", e.ws.Path),
		zap.String("remote", e.ws.Remote),
		zap.String("branch", e.ws.Branch))
}

// Shutdown takes the final snapshot, gives a bounded sync a chance to
// publish it, then stops the loops. Exit never blocks on the remote.
func (e *Engine) Shutdown(ctx context.Context) {
	e.comm.Shutdown(ctx)

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.saver.Stop()

	logger.Log.Info("engine stopped",
		zap.String("workspace", e.ws.Path))
}

func (e *Engine) OnEdit(rel string, content []byte) {
	e.saver.OnEdit(rel, content)
}

func (e *Engine) FlushNow(ctx context.Context, rel string) error {
	return e.saver.Flush(ctx, rel)
}

func (e *Engine) FlushAll(ctx context.Context) error {
	return e.saver.FlushAll(ctx)
}

func (e *Engine) HasUnsaved() bool {
	return e.saver.HasUnsaved()
}

func (e *Engine) RequestCommit(trigger model.CommitTrigger) {
	e.comm.RequestCommit(trigger)
}

// MarkChanged arms the periodic snapshot timer for changes that arrived
// outside the edit path, typically from the filesystem watcher.
func (e *Engine) MarkChanged() {
	e.comm.MarkDirty()
}

// Pause keeps local saves flowing but stops periodic snapshots.
func (e *Engine) Pause() {
	e.comm.SetPaused(true)
	e.setStatus(model.WorkspacePaused)
}

func (e *Engine) Resume() {
	e.comm.SetPaused(false)
	e.setStatus(model.WorkspaceActive)

	if e.saver.HasUnsaved() {
		e.comm.MarkDirty()
	}
}

func (e *Engine) setStatus(status model.WorkspaceStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ws.Status = status
}

// Sync runs one remote attempt and publishes any conflict set to the
// coordinator.
func (e *Engine) Sync(ctx context.Context) (model.SyncResult, error) {
	result, err := e.sync.Sync(ctx)
	e.noteSync(result)

	if result.Status == model.StatusConflict {
		if oerr := e.coord.Open(result.Conflicts); oerr != nil {
			logger.Log.Warn("failed to publish conflicts",
				zap.String("workspace", e.ws.Path),
				zap.Error(oerr))
		}
	}

	return result, err
}

// ContinueSync drives a paused integration directly, for callers that
// resolved the working tree by hand.
func (e *Engine) ContinueSync(ctx context.Context) (model.SyncResult, error) {
	result, err := e.sync.Continue(ctx)
	e.noteSync(result)

	switch {
	case result.Status == model.StatusConflict:
		if oerr := e.coord.Open(result.Conflicts); oerr != nil {
			logger.Log.Warn("failed to publish conflicts",
				zap.String("workspace", e.ws.Path),
				zap.Error(oerr))
		}
	case !e.sync.Paused():
		e.coord.Reset()
	}

	return result, err
}

// AbortSync abandons a paused integration through the coordinator when a
// conflict set is open, directly otherwise.
func (e *Engine) AbortSync(ctx context.Context) error {
	if e.coord.State() != conflict.StateIdle {
		return e.coord.Abort(ctx)
	}

	return e.sync.Abort(ctx)
}

func (e *Engine) FetchOnly(ctx context.Context) (bool, error) {
	return e.sync.FetchOnly(ctx)
}

func (e *Engine) IsSyncing() bool {
	return e.sync.IsSyncing()
}

// ResolveAll applies the decisions and continues the paused sync.
func (e *Engine) ResolveAll(ctx context.Context, items []model.ResolutionItem) (model.SyncResult, error) {
	result, err := e.coord.ResolveAll(ctx, items)
	e.noteSync(result)
	return result, err
}

func (e *Engine) AbortResolution(ctx context.Context) error {
	return e.coord.Abort(ctx)
}

func (e *Engine) Conflicts() []model.ConflictFile {
	return e.coord.Files()
}

func (e *Engine) ConflictState() conflict.State {
	return e.coord.State()
}

// EnqueueFailedPush records a push task for this workspace by hand.
func (e *Engine) EnqueueFailedPush(reason string) error {
	return e.tasks.Enqueue(model.PushTask{
		Workspace:  e.ws.Path,
		Remote:     e.ws.Remote,
		Branch:     e.ws.Branch,
		Credential: e.ws.Remote,
		EnqueuedAt: time.Now(),
		LastError:  reason,
	})
}

func (e *Engine) DrainQueue(ctx context.Context) (retry.Summary, error) {
	if e.drain == nil {
		return retry.Summary{}, fmt.Errorf("no queue drainer configured")
	}

	return e.drain.Drain(ctx)
}

func (e *Engine) QueueSize() int {
	n, err := e.tasks.CountForWorkspace(e.ws.Path)
	if err != nil {
		logger.Log.Warn("failed to count queue",
			zap.Error(err))
		return 0
	}

	return int(n)
}

// DeleteDocument removes a document, snapshots the deletion and pushes
// best-effort. Rejected while a sync holds the workspace.
func (e *Engine) DeleteDocument(ctx context.Context, rel string) error {
	if e.sync.IsSyncing() {
		return store.ErrSyncInProgress
	}

	if err := e.docs.Remove(ctx, rel); err != nil {
		return err
	}
	e.saver.Forget(rel)

	if _, err := e.repo.Snapshot(ctx, "Delete "+path.Base(rel)); err != nil {
		if !errors.Is(err, store.ErrNothingToCommit) {
			return err
		}
	}

	e.bestEffortPush(ctx)
	return nil
}

// RenameDocument moves a document, snapshots the move and pushes
// best-effort. Rejected while a sync holds the workspace.
func (e *Engine) RenameDocument(ctx context.Context, oldRel, newRel string) error {
	if e.sync.IsSyncing() {
		return store.ErrSyncInProgress
	}

	if err := e.docs.Rename(ctx, oldRel, newRel); err != nil {
		return err
	}
	e.saver.Forget(oldRel)

	message := fmt.Sprintf("Rename %s to %s", path.Base(oldRel), path.Base(newRel))
	if _, err := e.repo.Snapshot(ctx, message); err != nil {
		if !errors.Is(err, store.ErrNothingToCommit) {
			return err
		}
	}

	e.bestEffortPush(ctx)
	return nil
}

func (e *Engine) SnapshotLog(ctx context.Context, limit int) ([]model.SnapshotInfo, error) {
	return e.repo.History(ctx, limit)
}

// Status assembles the point-in-time view served over the daemon API.
func (e *Engine) Status() model.WorkspaceSnapshot {
	e.mu.Lock()
	startedAt := e.startedAt
	lastSync := e.lastSync
	syncs := e.syncs
	failed := e.failed
	status := e.ws.Status
	e.mu.Unlock()

	snap := model.WorkspaceSnapshot{
		WorkspaceID: e.ws.ID,
		Path:        e.ws.Path,
		Remote:      e.ws.Remote,
		Branch:      e.ws.Branch,
		Status:      status,
		Syncing:     e.sync.IsSyncing(),
		Unsaved:     e.saver.HasUnsaved(),
		Conflict:    e.coord.State().String(),
		Conflicts:   e.coord.Files(),
		QueueLen:    e.QueueSize(),
		StartedAt:   startedAt,
		Commits:     e.comm.Commits(),
		Syncs:       syncs,
		Failed:      failed,
	}

	if t := e.comm.LastCommit(); !t.IsZero() {
		snap.LastCommit = &t
	}
	if !lastSync.IsZero() {
		snap.LastSync = &lastSync
	}

	return snap
}

func (e *Engine) Workspace() model.Workspace {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ws
}

// bestEffortPush publishes the tip without failing the caller; a rejected
// or unreachable remote leaves a queued task behind instead.
func (e *Engine) bestEffortPush(ctx context.Context) {
	cred, err := e.creds.Lookup(ctx, e.ws.Remote)
	if err != nil {
		logger.Log.Debug("push skipped",
			zap.String("workspace", e.ws.Path),
			zap.Error(err))
		return
	}

	if err := e.repo.Push(ctx, e.ws.Remote, e.ws.Branch, cred); err != nil {
		if qerr := e.EnqueueFailedPush(err.Error()); qerr != nil {
			logger.Log.Warn("failed to queue push retry",
				zap.String("workspace", e.ws.Path),
				zap.Error(qerr))
		}
		logger.Log.Warn("push failed",
			zap.String("workspace", e.ws.Path),
			zap.Error(err))
	}
}

func (e *Engine) noteSync(result model.SyncResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch result.Status {
	case model.StatusSuccess:
		e.syncs++
		e.lastSync = time.Now()
	case model.StatusFailed:
		e.failed++
	}
}

func (e *Engine) record(action model.Action, status model.Status, detail string) {
	if e.rec == nil {
		return
	}

	if err := e.rec.Record(e.ws.Path, action, status, detail); err != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(err))
	}
}

// observedSync lets the coordinator continue the sync while outcomes still
// land in the engine counters.
type observedSync struct {
	e *Engine
}

func (o observedSync) Continue(ctx context.Context) (model.SyncResult, error) {
	result, err := o.e.sync.Continue(ctx)
	o.e.noteSync(result)
	return result, err
}

func (o observedSync) Abort(ctx context.Context) error {
	return o.e.sync.Abort(ctx)
}

func (o observedSync) Paused() bool {
	return o.e.sync.Paused()
}
