package conflict

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"inksync/internal/logger"
	"inksync/internal/model"
	"inksync/internal/store"
)

// State tracks where a conflict set sits in its resolution lifecycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateOpen      State = "OPEN"
	StateResolving State = "RESOLVING"
	StateSubmitted State = "SUBMITTED"
)

func (s State) String() string {
	return string(s)
}

// SyncDriver is the slice of the synchronizer the coordinator drives once
// decisions are staged.
type SyncDriver interface {
	Continue(ctx context.Context) (model.SyncResult, error)
	Abort(ctx context.Context) error
	Paused() bool
}

// Resolver applies a single decision by writing and staging content.
type Resolver interface {
	Resolve(ctx context.Context, item model.ResolutionItem) error
}

type Recorder interface {
	Record(workspace string, action model.Action, status model.Status, detail string) error
}

type Config struct {
	Repo      Resolver
	Sync      SyncDriver
	Recorder  Recorder
	Workspace string
}

// Coordinator owns the conflict set of one workspace and walks it through
// Idle, Open, Resolving and Submitted. The state doubles as the re-entry
// guard: a second ResolveAll or Abort while one is in flight is rejected.
type Coordinator struct {
	repo      Resolver
	sync      SyncDriver
	rec       Recorder
	workspace string

	mu    sync.Mutex
	state State
	files []model.ConflictFile
}

func New(cfg Config) *Coordinator {
	return &Coordinator{
		repo:      cfg.Repo,
		sync:      cfg.Sync,
		rec:       cfg.Recorder,
		workspace: cfg.Workspace,
		state:     StateIdle,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Files returns a copy of the open conflict set.
func (c *Coordinator) Files() []model.ConflictFile {
	c.mu.Lock()
	defer c.mu.Unlock()

	files := make([]model.ConflictFile, len(c.files))
	copy(files, c.files)
	return files
}

// Open publishes a fresh conflict set. A later round may replace an
// already open set; mid-resolution the transition is rejected.
func (c *Coordinator) Open(files []model.ConflictFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle && c.state != StateOpen {
		return fmt.Errorf("%w: cannot open conflicts in state %s", store.ErrBadState, c.state)
	}

	c.state = StateOpen
	c.files = append([]model.ConflictFile(nil), files...)

	logger.Log.Info("conflicts opened",
		zap.String("workspace", c.workspace),
		zap.Int("files", len(files)))
	return nil
}

// ResolveAll applies one decision per open file, then continues the paused
// sync. A clean continue closes the set; a second conflict round re-enters
// Open with the new files. Decisions for paths no longer open are ignored
// so a repeated submission stays harmless.
func (c *Coordinator) ResolveAll(ctx context.Context, items []model.ResolutionItem) (model.SyncResult, error) {
	open, err := c.begin(items)
	if err != nil {
		return model.SyncResult{}, err
	}

	decisions := make(map[string]model.ResolutionItem, len(items))
	for _, item := range items {
		decisions[item.Path] = item
	}

	for _, file := range open {
		if _, ok := decisions[file.Path]; !ok {
			c.reopen()
			return model.SyncResult{}, fmt.Errorf("%w: no decision for %s", store.ErrBadState, file.Path)
		}
	}

	for _, file := range open {
		item := decisions[file.Path]

		if err := c.repo.Resolve(ctx, item); err != nil {
			c.reopen()
			return model.SyncResult{}, fmt.Errorf("failed to resolve %s: %w", file.Path, err)
		}

		logger.Log.Debug("conflict resolved",
			zap.String("workspace", c.workspace),
			zap.String("path", file.Path),
			zap.String("choice", string(item.Choice)))
	}

	c.setState(StateSubmitted)

	result, err := c.sync.Continue(ctx)
	c.settle(result, err)
	c.record(result, err, len(open))

	return result, err
}

// Abort abandons the open set and the paused integration underneath it.
func (c *Coordinator) Abort(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateOpen && c.state != StateResolving {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot abort in state %s", store.ErrBadState, state)
	}
	c.mu.Unlock()

	if err := c.sync.Abort(ctx); err != nil {
		if c.sync.Paused() {
			return err
		}
		// The paused integration is already gone; clear our side too.
	}

	c.mu.Lock()
	c.state = StateIdle
	c.files = nil
	c.mu.Unlock()

	logger.Log.Info("conflicts aborted",
		zap.String("workspace", c.workspace))
	return nil
}

// Reset force-closes the set after the integration settled outside the
// coordinator.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateIdle
	c.files = nil
}

// begin validates the entry transition and snapshots the open set.
func (c *Coordinator) begin(items []model.ResolutionItem) ([]model.ConflictFile, error) {
	for _, item := range items {
		if !item.Choice.Valid() {
			return nil, fmt.Errorf("%w: invalid choice %q for %s", store.ErrBadState, item.Choice, item.Path)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return nil, fmt.Errorf("%w: cannot resolve in state %s", store.ErrBadState, c.state)
	}

	c.state = StateResolving

	open := make([]model.ConflictFile, len(c.files))
	copy(open, c.files)
	return open, nil
}

// settle maps the continue outcome back onto the state machine.
func (c *Coordinator) settle(result model.SyncResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case result.Status == model.StatusConflict:
		c.state = StateOpen
		c.files = append([]model.ConflictFile(nil), result.Conflicts...)
	case err != nil && c.sync.Paused():
		// Continue failed with the integration still pending; the set
		// stays open for another attempt or an abort.
		c.state = StateOpen
	default:
		c.state = StateIdle
		c.files = nil
	}
}

func (c *Coordinator) reopen() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateResolving {
		c.state = StateOpen
	}
}

func (c *Coordinator) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = state
}

func (c *Coordinator) record(result model.SyncResult, err error, resolved int) {
	if c.rec == nil {
		return
	}

	status := result.Status
	detail := fmt.Sprintf("%d files", resolved)
	if err != nil {
		status = model.StatusFailed
		detail = err.Error()
	}

	if recErr := c.rec.Record(c.workspace, model.ActionResolve, status, detail); recErr != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(recErr))
	}
}
