package syncer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"inksync/internal/logger"
	"inksync/internal/model"
	"inksync/internal/store"
)

// TaskQueue receives push tasks that could not reach the remote.
type TaskQueue interface {
	Enqueue(task model.PushTask) error
}

// Recorder persists engine history rows.
type Recorder interface {
	Record(workspace string, action model.Action, status model.Status, detail string) error
}

type Config struct {
	Repo      store.Repository
	Creds     store.CredentialSource
	Queue     TaskQueue
	Recorder  Recorder
	Workspace string
	Remote    string
	Branch    string
}

// Syncer runs the remote leg: fetch, integrate local snapshots on top of
// the remote tip, push. Conflicts pause the integration and keep the sync
// guard held until Continue completes it or Abort unwinds it.
type Syncer struct {
	repo      store.Repository
	creds     store.CredentialSource
	queue     TaskQueue
	rec       Recorder
	workspace string
	remote    string
	branch    string

	g guard
}

func New(cfg Config) *Syncer {
	return &Syncer{
		repo:      cfg.Repo,
		creds:     cfg.Creds,
		queue:     cfg.Queue,
		rec:       cfg.Recorder,
		workspace: cfg.Workspace,
		remote:    cfg.Remote,
		branch:    cfg.Branch,
	}
}

func (s *Syncer) IsSyncing() bool {
	return s.g.held()
}

func (s *Syncer) Paused() bool {
	return s.g.paused()
}

// Sync performs one full attempt. On conflict the returned result carries
// the conflict set and the guard stays held in the paused state.
func (s *Syncer) Sync(ctx context.Context) (model.SyncResult, error) {
	if !s.g.tryAcquire() {
		return model.SyncResult{}, store.ErrSyncInProgress
	}

	result, err := s.attempt(ctx)

	switch result.Status {
	case model.StatusConflict:
		s.g.pause()
		s.record(model.ActionSync, model.StatusConflict, conflictDetail(result.Conflicts))
	default:
		s.g.release()
		s.record(model.ActionSync, result.Status, result.Reason)
	}

	return result, err
}

func (s *Syncer) attempt(ctx context.Context) (model.SyncResult, error) {
	cred, err := s.creds.Lookup(ctx, s.remote)
	if err != nil {
		return failed(err), err
	}

	if err := s.repo.Fetch(ctx, s.remote, s.branch, cred); err != nil {
		return failed(err), err
	}

	ahead, behind, err := s.repo.Divergence(ctx, s.remote, s.branch)
	if err != nil {
		return failed(err), err
	}

	logger.Log.Debug("divergence",
		zap.String("workspace", s.workspace),
		zap.Int("ahead", ahead),
		zap.Int("behind", behind))

	if behind > 0 {
		files, err := s.repo.Integrate(ctx, s.remote, s.branch)
		if err != nil {
			return failed(err), err
		}

		if len(files) > 0 {
			logger.Log.Info("sync paused on conflicts",
				zap.String("workspace", s.workspace),
				zap.Int("files", len(files)))
			return model.SyncResult{Status: model.StatusConflict, Conflicts: files}, nil
		}
	}

	if ahead == 0 {
		// Nothing of ours to publish; either already up to date or the
		// integration was a pure fast-forward.
		return model.SyncResult{Status: model.StatusSuccess}, nil
	}

	return s.push(ctx, cred)
}

// Continue drives a paused integration after resolutions were staged. A
// second conflict round pauses again; completion pushes and releases.
func (s *Syncer) Continue(ctx context.Context) (model.SyncResult, error) {
	if !s.g.resume() {
		return model.SyncResult{}, store.ErrBadState
	}

	files, err := s.repo.ContinueIntegrate(ctx)
	if err != nil {
		if errors.Is(err, store.ErrBadState) {
			// The store has no paused integration; drop the guard so the
			// workspace is not wedged.
			s.g.release()
		} else {
			s.g.pause()
		}
		return failed(err), err
	}

	if len(files) > 0 {
		s.g.pause()
		s.record(model.ActionSync, model.StatusConflict, conflictDetail(files))
		return model.SyncResult{Status: model.StatusConflict, Conflicts: files}, nil
	}

	cred, err := s.creds.Lookup(ctx, s.remote)
	if err != nil {
		s.g.release()
		s.record(model.ActionSync, model.StatusFailed, err.Error())
		return failed(err), err
	}

	result, err := s.push(ctx, cred)
	s.g.release()
	s.record(model.ActionSync, result.Status, result.Reason)
	return result, err
}

// Abort abandons a paused integration and restores the pre-sync state.
// The only way to cancel once conflicts paused a sync.
func (s *Syncer) Abort(ctx context.Context) error {
	if !s.g.paused() {
		return store.ErrBadState
	}

	if err := s.repo.AbortIntegrate(ctx); err != nil {
		if errors.Is(err, store.ErrBadState) {
			s.g.release()
		}
		return err
	}

	s.g.release()
	s.record(model.ActionSync, model.StatusSkipped, "aborted by user")

	logger.Log.Info("sync aborted",
		zap.String("workspace", s.workspace))
	return nil
}

// FetchOnly refreshes remote refs without integrating and reports whether
// the remote moved ahead.
func (s *Syncer) FetchOnly(ctx context.Context) (bool, error) {
	if !s.g.tryAcquire() {
		return false, store.ErrSyncInProgress
	}
	defer s.g.release()

	cred, err := s.creds.Lookup(ctx, s.remote)
	if err != nil {
		return false, err
	}

	if err := s.repo.Fetch(ctx, s.remote, s.branch, cred); err != nil {
		return false, err
	}

	_, behind, err := s.repo.Divergence(ctx, s.remote, s.branch)
	if err != nil {
		return false, err
	}

	return behind > 0, nil
}

func (s *Syncer) push(ctx context.Context, cred store.Credential) (model.SyncResult, error) {
	if err := s.repo.Push(ctx, s.remote, s.branch, cred); err != nil {
		s.enqueueRetry(err)
		return failed(err), err
	}

	logger.Log.Info("pushed",
		zap.String("workspace", s.workspace),
		zap.String("remote", s.remote),
		zap.String("branch", s.branch))

	return model.SyncResult{Status: model.StatusSuccess}, nil
}

func (s *Syncer) enqueueRetry(cause error) {
	if s.queue == nil {
		return
	}

	task := model.PushTask{
		Workspace:  s.workspace,
		Remote:     s.remote,
		Branch:     s.branch,
		Credential: s.remote,
		EnqueuedAt: time.Now(),
		LastError:  cause.Error(),
	}

	if err := s.queue.Enqueue(task); err != nil {
		logger.Log.Warn("failed to queue push retry",
			zap.String("workspace", s.workspace),
			zap.Error(err))
		return
	}

	logger.Log.Info("push queued for retry",
		zap.String("workspace", s.workspace),
		zap.String("remote", s.remote),
		zap.Error(cause))
}

func (s *Syncer) record(action model.Action, status model.Status, detail string) {
	if s.rec == nil {
		return
	}

	if err := s.rec.Record(s.workspace, action, status, detail); err != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(err))
	}
}

func failed(err error) model.SyncResult {
	return model.SyncResult{Status: model.StatusFailed, Reason: err.Error()}
}

func conflictDetail(files []model.ConflictFile) string {
	if len(files) == 1 {
		return files[0].Path
	}

	return files[0].Path + " and others"
}
