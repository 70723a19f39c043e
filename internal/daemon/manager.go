package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"inksync/internal/config"
	"inksync/internal/credential"
	"inksync/internal/engine"
	"inksync/internal/logger"
	"inksync/internal/model"
	"inksync/internal/repository"
	"inksync/internal/retry"
	"inksync/internal/store"
	"inksync/internal/store/gitcli"
)

// Manager owns one engine per registered workspace plus the shared push
// queue drainer. All daemon API calls land here.
type Manager struct {
	mu      sync.RWMutex
	engines map[uint]*runner

	cfg     *config.Config
	wsRepo  *repository.WorkspaceRepository
	tasks   *repository.TaskRepository
	hist    *repository.HistoryRepository
	creds   store.CredentialSource
	drainer *retry.Drainer
}

// runner pairs a running engine with the watcher feeding it.
type runner struct {
	eng     *engine.Engine
	watcher *Watcher
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		engines: make(map[uint]*runner),
		cfg:     cfg,
		wsRepo:  repository.NewWorkspaceRepository(),
		tasks:   repository.NewTaskRepository(cfg.QueueCapacity),
		hist:    repository.NewHistoryRepository(),
		creds:   credential.New(""),
	}

	m.drainer = retry.New(retry.Config{
		Tasks:    m.tasks,
		Creds:    m.creds,
		Recorder: m.hist,
		OpenRepo: m.openPusher,
	})

	return m
}

// StartAll boots engines for every registered workspace that is not
// stopped. Individual failures are logged, not fatal; one broken
// workspace must not keep the daemon down.
func (m *Manager) StartAll() error {
	workspaces, err := m.wsRepo.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load workspaces: %w", err)
	}

	started := 0
	for _, ws := range workspaces {
		if ws.Status == model.WorkspaceStopped {
			continue
		}

		if err := m.StartWorkspace(ws); err != nil {
			logger.Log.Error("failed to start workspace",
				zap.Uint("id", ws.ID),
				zap.String("path", ws.Path),
				zap.Error(err))
			continue
		}
		started++
	}

	logger.Log.Info("workspaces started",
		zap.Int("count", started))
	return nil
}

// Register adds a workspace and starts its engine. The directory is
// initialized as a repository when it is not one yet.
func (m *Manager) Register(ctx context.Context, path, remote, branch, remoteURL string) (model.Workspace, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return model.Workspace{}, fmt.Errorf("invalid workspace path: %w", err)
	}

	if remote == "" {
		remote = m.cfg.Remote
	}
	if branch == "" {
		branch = m.cfg.Branch
	}

	repo, err := gitcli.New(abs)
	if err != nil {
		return model.Workspace{}, err
	}

	if err := repo.Verify(ctx); err != nil {
		if err := repo.Init(ctx, branch); err != nil {
			return model.Workspace{}, fmt.Errorf("failed to initialize workspace: %w", err)
		}
	}

	if remoteURL != "" {
		if err := repo.AddRemote(ctx, remote, remoteURL); err != nil {
			return model.Workspace{}, err
		}
	}

	if changed, err := repo.HasChanges(ctx); err == nil && changed {
		if _, err := repo.Snapshot(ctx, "Initialize workspace"); err != nil {
			logger.Log.Warn("failed to snapshot existing files",
				zap.String("path", abs),
				zap.Error(err))
		}
	}

	ws, err := m.wsRepo.Add(abs, remote, branch)
	if err != nil {
		return model.Workspace{}, fmt.Errorf("failed to register workspace: %w", err)
	}

	if err := m.StartWorkspace(ws); err != nil {
		return ws, err
	}

	return ws, nil
}

// StartWorkspace wires an engine and a watcher for one workspace row.
// A paused row starts paused: saves flow, periodic snapshots wait.
func (m *Manager) StartWorkspace(ws model.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[ws.ID]; exists {
		return fmt.Errorf("workspace %d already running", ws.ID)
	}

	docs, err := store.NewFSDocuments(ws.Path)
	if err != nil {
		return err
	}

	repo, err := gitcli.New(ws.Path)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{
		Workspace:  ws,
		Docs:       docs,
		Repo:       repo,
		Creds:      m.creds,
		Tasks:      m.tasks,
		History:    m.hist,
		Drainer:    m.drainer,
		Debounce:   m.cfg.Debounce,
		Interval:   m.cfg.CommitInterval,
		DeferDelay: m.cfg.DeferDelay,
		Buffer:     m.cfg.BufferSize,
	})

	watcher, err := NewWatcher(ws.Path, m.cfg.IgnoreList, m.cfg.BufferSize)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}

	eng.Start(context.Background())
	if ws.Status == model.WorkspacePaused {
		eng.Pause()
	}

	go func() {
		for range watcher.Events() {
			eng.MarkChanged()
		}
	}()

	m.engines[ws.ID] = &runner{eng: eng, watcher: watcher}
	return nil
}

// Stop shuts one engine down: watcher first so no further changes arm
// the timer, then the engine's final snapshot and bounded sync.
func (m *Manager) Stop(ctx context.Context, id uint) error {
	m.mu.Lock()
	r, exists := m.engines[id]
	if exists {
		delete(m.engines, id)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("workspace %d not running", id)
	}

	r.watcher.Stop()
	r.eng.Shutdown(ctx)
	return nil
}

// Remove stops the workspace and deletes its registration.
func (m *Manager) Remove(ctx context.Context, id uint) error {
	if err := m.Stop(ctx, id); err != nil {
		logger.Log.Debug("workspace not running",
			zap.Uint("id", id))
	}

	return m.wsRepo.Delete(id)
}

func (m *Manager) Pause(id uint) error {
	eng, err := m.Engine(id)
	if err != nil {
		return err
	}

	eng.Pause()
	return m.wsRepo.UpdateStatus(id, model.WorkspacePaused)
}

func (m *Manager) Resume(id uint) error {
	eng, err := m.Engine(id)
	if err != nil {
		return err
	}

	eng.Resume()
	return m.wsRepo.UpdateStatus(id, model.WorkspaceActive)
}

// StopAll shuts every engine down, for daemon shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	runners := make([]*runner, 0, len(m.engines))
	for id, r := range m.engines {
		runners = append(runners, r)
		delete(m.engines, id)
	}
	m.mu.Unlock()

	for _, r := range runners {
		r.watcher.Stop()
		r.eng.Shutdown(ctx)
	}

	logger.Log.Info("all workspaces stopped",
		zap.Int("count", len(runners)))
}

func (m *Manager) Engine(id uint) (*engine.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, exists := m.engines[id]
	if !exists {
		return nil, fmt.Errorf("workspace %d not running", id)
	}

	return r.eng, nil
}

// Snapshots returns the status of every running engine, ordered by id.
func (m *Manager) Snapshots() []model.WorkspaceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.WorkspaceSnapshot, 0, len(m.engines))
	for _, r := range m.engines {
		result = append(result, r.eng.Status())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].WorkspaceID < result[j].WorkspaceID
	})
	return result
}

func (m *Manager) Workspaces() ([]model.Workspace, error) {
	return m.wsRepo.GetAll()
}

func (m *Manager) Queue() ([]model.PushTask, error) {
	return m.tasks.Pending()
}

func (m *Manager) QueueSize() (int64, error) {
	return m.drainer.Size()
}

func (m *Manager) Drain(ctx context.Context) (retry.Summary, error) {
	return m.drainer.Drain(ctx)
}

func (m *Manager) History(limit int) ([]model.SyncHistory, error) {
	return m.hist.GetRecent(limit)
}

func (m *Manager) HistoryStats() (repository.Stats, error) {
	return m.hist.GetStats()
}

// openPusher routes a queued retry through the live engine when the
// workspace is running, so the replay fetches and integrates before it
// publishes. A stopped workspace gets a plain repository push.
func (m *Manager) openPusher(dir string) retry.Pusher {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.engines {
		if r.eng.Workspace().Path == dir {
			return enginePusher{eng: r.eng}
		}
	}

	repo, err := gitcli.New(dir)
	if err != nil {
		return errPusher{err: err}
	}

	return repo
}

// enginePusher replays a queued push as a full sync attempt.
type enginePusher struct {
	eng *engine.Engine
}

func (p enginePusher) Push(ctx context.Context, _, _ string, _ store.Credential) error {
	result, err := p.eng.Sync(ctx)
	if err != nil {
		return err
	}

	if result.Status == model.StatusConflict {
		return store.ErrConflict
	}

	return nil
}

type errPusher struct {
	err error
}

func (p errPusher) Push(context.Context, string, string, store.Credential) error {
	return p.err
}
