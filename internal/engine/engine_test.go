package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"inksync/internal/conflict"
	"inksync/internal/model"
	"inksync/internal/retry"
	"inksync/internal/store"
)

// fakeStore backs both the document store and the repository so snapshots
// can capture the documents they would contain.
type fakeStore struct {
	mu sync.Mutex

	docs  map[string][]byte
	dirty bool

	branch    string
	ahead     int
	behind    int
	conflicts []model.ConflictFile
	contSets  [][]model.ConflictFile
	pushErrs  []error

	snapshots []snapshot
	resolved  []model.ResolutionItem
	fetches   int
	pushes    int
	aborts    int
}

type snapshot struct {
	message string
	docs    map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   map[string][]byte{},
		branch: "main",
	}
}

func (f *fakeStore) Write(_ context.Context, rel string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[rel] = append([]byte(nil), content...)
	f.dirty = true
	return nil
}

func (f *fakeStore) Read(_ context.Context, rel string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.docs[rel]
	if !ok {
		return nil, store.ErrSaveFailed
	}
	return append([]byte(nil), content...), nil
}

func (f *fakeStore) Remove(_ context.Context, rel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, rel)
	f.dirty = true
	return nil
}

func (f *fakeStore) Rename(_ context.Context, oldRel, newRel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[newRel] = f.docs[oldRel]
	delete(f.docs, oldRel)
	f.dirty = true
	return nil
}

func (f *fakeStore) Verify(context.Context) error                    { return nil }
func (f *fakeStore) Init(context.Context, string) error              { return nil }
func (f *fakeStore) AddRemote(context.Context, string, string) error { return nil }

func (f *fakeStore) HasChanges(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty, nil
}

func (f *fakeStore) CurrentBranch(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branch, nil
}

func (f *fakeStore) SwitchBranch(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branch = name
	return nil
}

func (f *fakeStore) Snapshot(_ context.Context, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return "", store.ErrNothingToCommit
	}

	docs := make(map[string][]byte, len(f.docs))
	for k, v := range f.docs {
		docs[k] = append([]byte(nil), v...)
	}
	f.snapshots = append(f.snapshots, snapshot{message: message, docs: docs})
	f.dirty = false
	f.ahead++
	return fmt.Sprintf("s%d", len(f.snapshots)), nil
}

func (f *fakeStore) History(_ context.Context, limit int) ([]model.SnapshotInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SnapshotInfo
	for i := len(f.snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, model.SnapshotInfo{
			ID:      fmt.Sprintf("s%d", i+1),
			Message: f.snapshots[i].message,
		})
	}
	return out, nil
}

func (f *fakeStore) Fetch(_ context.Context, _, _ string, _ store.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return nil
}

func (f *fakeStore) Divergence(context.Context, string, string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ahead, f.behind, nil
}

func (f *fakeStore) Integrate(context.Context, string, string) ([]model.ConflictFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files := f.conflicts
	f.conflicts = nil
	if len(files) == 0 {
		f.behind = 0
	}
	return files, nil
}

func (f *fakeStore) ContinueIntegrate(context.Context) ([]model.ConflictFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.contSets) == 0 {
		f.behind = 0
		return nil, nil
	}
	next := f.contSets[0]
	f.contSets = f.contSets[1:]
	return next, nil
}

func (f *fakeStore) AbortIntegrate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	return nil
}

func (f *fakeStore) Integrating(context.Context) (bool, error) { return false, nil }

func (f *fakeStore) Push(context.Context, string, string, store.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pushErrs) > 0 {
		err := f.pushErrs[0]
		f.pushErrs = f.pushErrs[1:]
		if err != nil {
			return err
		}
	}
	f.pushes++
	f.ahead = 0
	return nil
}

func (f *fakeStore) Resolve(_ context.Context, item model.ResolutionItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, item)
	return nil
}

func (f *fakeStore) snapshotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

func (f *fakeStore) lastSnapshot() snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snapshots) == 0 {
		return snapshot{}
	}
	return f.snapshots[len(f.snapshots)-1]
}

func (f *fakeStore) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes
}

// memQueue is the persisted push queue for tests, serving both the engine
// and the drainer.
type memQueue struct {
	mu     sync.Mutex
	nextID uint
	tasks  []model.PushTask
}

func (m *memQueue) Enqueue(task model.PushTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		t := &m.tasks[i]
		if t.Workspace == task.Workspace && t.Remote == task.Remote && t.Branch == task.Branch {
			t.EnqueuedAt = task.EnqueuedAt
			t.LastError = task.LastError
			t.Attempts = 0
			t.NextAttempt = time.Time{}
			return nil
		}
	}
	m.nextID++
	task.ID = m.nextID
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memQueue) CountForWorkspace(path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tasks {
		if t.Workspace == path {
			n++
		}
	}
	return n, nil
}

func (m *memQueue) Pending() ([]model.PushTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PushTask, len(m.tasks))
	copy(out, m.tasks)
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out, nil
}

func (m *memQueue) Delete(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tasks {
		if t.ID == id {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memQueue) MarkFailed(id uint, attempts int, next time.Time, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks[i].Attempts = attempts
			m.tasks[i].NextAttempt = next
			m.tasks[i].LastError = msg
		}
	}
	return nil
}

func (m *memQueue) Count() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.tasks)), nil
}

type staticCreds struct {
	err error
}

func (s *staticCreds) Lookup(context.Context, string) (store.Credential, error) {
	return store.Credential{Username: "token", Token: "secret"}, s.err
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v", timeout)
}

func newTestEngine(t *testing.T, fs *fakeStore, queue *memQueue, creds store.CredentialSource) *Engine {
	t.Helper()

	drainer := retry.New(retry.Config{
		Tasks:    queue,
		Creds:    creds,
		OpenRepo: func(string) retry.Pusher { return fs },
	})

	e := New(Config{
		Workspace: model.Workspace{
			Path:   "/ws",
			Remote: "origin",
			Branch: "main",
			Status: model.WorkspaceActive,
		},
		Docs:       fs,
		Repo:       fs,
		Creds:      creds,
		Tasks:      queue,
		Drainer:    drainer,
		Debounce:   10 * time.Millisecond,
		Interval:   time.Hour,
		DeferDelay: 10 * time.Millisecond,
		Buffer:     8,
	})

	e.Start(context.Background())
	t.Cleanup(func() { e.Shutdown(context.Background()) })
	return e
}

func TestEditDebouncesIntoCommit(t *testing.T) {
	fs := newFakeStore()
	e := newTestEngine(t, fs, &memQueue{}, &staticCreds{})

	e.OnEdit("notes/a.md", []byte("first line"))

	waitFor(t, time.Second, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		_, ok := fs.docs["notes/a.md"]
		return ok
	})

	e.RequestCommit(model.TriggerBackgrounded)
	waitFor(t, time.Second, func() bool { return fs.snapshotCount() == 1 })

	snap := fs.lastSnapshot()
	if !strings.HasPrefix(snap.message, "Auto-commit: ") {
		t.Errorf("message = %q, want Auto-commit prefix", snap.message)
	}
	if string(snap.docs["notes/a.md"]) != "first line" {
		t.Errorf("snapshot content = %q, want the flushed edit", snap.docs["notes/a.md"])
	}
}

func TestSyncSuccessUpdatesStatus(t *testing.T) {
	fs := newFakeStore()
	fs.ahead = 1
	e := newTestEngine(t, fs, &memQueue{}, &staticCreds{})

	result, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if result.Status != model.StatusSuccess {
		t.Fatalf("status = %s, want %s", result.Status, model.StatusSuccess)
	}

	status := e.Status()
	if status.Syncs != 1 {
		t.Errorf("Syncs = %d, want 1", status.Syncs)
	}
	if status.LastSync == nil {
		t.Error("LastSync not set after success")
	}
	if status.Syncing {
		t.Error("Syncing = true after completed sync")
	}
}

func TestSyncWithoutCredentialFails(t *testing.T) {
	fs := newFakeStore()
	fs.ahead = 1
	e := newTestEngine(t, fs, &memQueue{}, &staticCreds{err: store.ErrNoCredential})

	result, err := e.Sync(context.Background())
	if !errors.Is(err, store.ErrNoCredential) {
		t.Fatalf("error = %v, want ErrNoCredential", err)
	}
	if result.Status != model.StatusFailed {
		t.Errorf("status = %s, want %s", result.Status, model.StatusFailed)
	}
	if e.Status().Failed != 1 {
		t.Errorf("Failed = %d, want 1", e.Status().Failed)
	}
}

func TestConflictResolveContinueReleases(t *testing.T) {
	fs := newFakeStore()
	fs.ahead = 1
	fs.behind = 1
	fs.conflicts = []model.ConflictFile{{Path: "notes/a.md"}}
	e := newTestEngine(t, fs, &memQueue{}, &staticCreds{})

	result, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if result.Status != model.StatusConflict {
		t.Fatalf("status = %s, want %s", result.Status, model.StatusConflict)
	}
	if e.ConflictState() != conflict.StateOpen {
		t.Fatalf("conflict state = %s, want %s", e.ConflictState(), conflict.StateOpen)
	}
	if !e.IsSyncing() {
		t.Fatal("guard released while integration paused")
	}

	resolved, err := e.ResolveAll(context.Background(), []model.ResolutionItem{
		{Path: "notes/a.md", Choice: model.ChoiceOurs},
	})
	if err != nil {
		t.Fatalf("ResolveAll returned error: %v", err)
	}
	if resolved.Status != model.StatusSuccess {
		t.Fatalf("status = %s, want %s", resolved.Status, model.StatusSuccess)
	}

	fs.mu.Lock()
	applied := len(fs.resolved)
	fs.mu.Unlock()
	if applied != 1 {
		t.Errorf("resolved = %d, want 1", applied)
	}
	if fs.pushCount() != 1 {
		t.Errorf("pushes = %d, want 1 after continue", fs.pushCount())
	}
	if e.IsSyncing() {
		t.Error("guard still held after continue completed")
	}
	if e.ConflictState() != conflict.StateIdle {
		t.Errorf("conflict state = %s, want %s", e.ConflictState(), conflict.StateIdle)
	}
}

func TestAbortSyncRestoresIdle(t *testing.T) {
	fs := newFakeStore()
	fs.ahead = 1
	fs.behind = 1
	fs.conflicts = []model.ConflictFile{{Path: "notes/a.md"}}
	e := newTestEngine(t, fs, &memQueue{}, &staticCreds{})

	if _, err := e.Sync(context.Background()); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if err := e.AbortSync(context.Background()); err != nil {
		t.Fatalf("AbortSync returned error: %v", err)
	}

	fs.mu.Lock()
	aborts := fs.aborts
	fs.mu.Unlock()
	if aborts != 1 {
		t.Errorf("aborts = %d, want 1", aborts)
	}
	if e.IsSyncing() {
		t.Error("guard still held after abort")
	}
	if e.ConflictState() != conflict.StateIdle {
		t.Errorf("conflict state = %s, want %s", e.ConflictState(), conflict.StateIdle)
	}
}

func TestPushFailureEnqueuesAndDrains(t *testing.T) {
	fs := newFakeStore()
	fs.ahead = 1
	fs.pushErrs = []error{store.ErrNetwork}
	queue := &memQueue{}
	e := newTestEngine(t, fs, queue, &staticCreds{})

	result, err := e.Sync(context.Background())
	if !errors.Is(err, store.ErrNetwork) {
		t.Fatalf("error = %v, want ErrNetwork", err)
	}
	if result.Status != model.StatusFailed {
		t.Fatalf("status = %s, want %s", result.Status, model.StatusFailed)
	}
	if e.QueueSize() != 1 {
		t.Fatalf("queue size = %d, want 1", e.QueueSize())
	}

	sum, err := e.DrainQueue(context.Background())
	if err != nil {
		t.Fatalf("DrainQueue returned error: %v", err)
	}
	if sum.Pushed != 1 {
		t.Fatalf("drained = %+v, want 1 pushed", sum)
	}
	if e.QueueSize() != 0 {
		t.Errorf("queue size = %d, want 0 after drain", e.QueueSize())
	}
	if fs.pushCount() != 1 {
		t.Errorf("pushes = %d, want 1", fs.pushCount())
	}
}

func TestRepeatedFailureKeepsSingleTask(t *testing.T) {
	fs := newFakeStore()
	fs.ahead = 1
	fs.pushErrs = []error{store.ErrNetwork, store.ErrNetwork}
	queue := &memQueue{}
	e := newTestEngine(t, fs, queue, &staticCreds{})

	for i := 0; i < 2; i++ {
		if _, err := e.Sync(context.Background()); !errors.Is(err, store.ErrNetwork) {
			t.Fatalf("sync %d error = %v, want ErrNetwork", i, err)
		}
	}

	if e.QueueSize() != 1 {
		t.Errorf("queue size = %d, want deduplicated single task", e.QueueSize())
	}
}

func TestDeleteDocumentSnapshotsAndPushes(t *testing.T) {
	fs := newFakeStore()
	fs.docs["notes/a.md"] = []byte("body")
	e := newTestEngine(t, fs, &memQueue{}, &staticCreds{})

	if err := e.DeleteDocument(context.Background(), "notes/a.md"); err != nil {
		t.Fatalf("DeleteDocument returned error: %v", err)
	}

	if fs.snapshotCount() != 1 {
		t.Fatalf("snapshots = %d, want 1", fs.snapshotCount())
	}
	if got := fs.lastSnapshot().message; got != "Delete a.md" {
		t.Errorf("message = %q, want %q", got, "Delete a.md")
	}
	if _, ok := fs.lastSnapshot().docs["notes/a.md"]; ok {
		t.Error("snapshot still contains the deleted document")
	}
	if fs.pushCount() != 1 {
		t.Errorf("pushes = %d, want best-effort push", fs.pushCount())
	}
}

func TestRenameDocumentSnapshots(t *testing.T) {
	fs := newFakeStore()
	fs.docs["notes/a.md"] = []byte("body")
	e := newTestEngine(t, fs, &memQueue{}, &staticCreds{})

	if err := e.RenameDocument(context.Background(), "notes/a.md", "notes/b.md"); err != nil {
		t.Fatalf("RenameDocument returned error: %v", err)
	}

	if got := fs.lastSnapshot().message; got != "Rename a.md to b.md" {
		t.Errorf("message = %q, want %q", got, "Rename a.md to b.md")
	}
	if _, ok := fs.lastSnapshot().docs["notes/b.md"]; !ok {
		t.Error("snapshot missing the renamed document")
	}
}

func TestShutdownCommitsPendingEdits(t *testing.T) {
	fs := newFakeStore()
	queue := &memQueue{}
	creds := &staticCreds{}

	drainer := retry.New(retry.Config{
		Tasks:    queue,
		Creds:    creds,
		OpenRepo: func(string) retry.Pusher { return fs },
	})
	e := New(Config{
		Workspace: model.Workspace{Path: "/ws", Remote: "origin", Branch: "main", Status: model.WorkspaceActive},
		Docs:      fs,
		Repo:      fs,
		Creds:     creds,
		Tasks:     queue,
		Drainer:   drainer,
		Debounce:  time.Hour,
		Interval:  time.Hour,
	})
	e.Start(context.Background())

	e.OnEdit("notes/a.md", []byte("unsaved"))
	e.Shutdown(context.Background())

	if fs.snapshotCount() != 1 {
		t.Fatalf("snapshots = %d, want 1 at shutdown", fs.snapshotCount())
	}
	snap := fs.lastSnapshot()
	if !strings.HasPrefix(snap.message, "Auto-commit on app close: ") {
		t.Errorf("message = %q, want app close prefix", snap.message)
	}
	if string(snap.docs["notes/a.md"]) != "unsaved" {
		t.Errorf("snapshot content = %q, want the flushed edit", snap.docs["notes/a.md"])
	}
	if fs.pushCount() != 1 {
		t.Errorf("pushes = %d, want the best-effort shutdown push", fs.pushCount())
	}
}

func TestSnapshotLog(t *testing.T) {
	fs := newFakeStore()
	fs.docs["notes/a.md"] = []byte("body")
	fs.dirty = true
	e := newTestEngine(t, fs, &memQueue{}, &staticCreds{})

	e.RequestCommit(model.TriggerBackgrounded)
	waitFor(t, time.Second, func() bool { return fs.snapshotCount() == 1 })

	log, err := e.SnapshotLog(context.Background(), 10)
	if err != nil {
		t.Fatalf("SnapshotLog returned error: %v", err)
	}
	if len(log) != 1 {
		t.Fatalf("log entries = %d, want 1", len(log))
	}
	if !strings.HasPrefix(log[0].Message, "Auto-commit: ") {
		t.Errorf("message = %q, want Auto-commit prefix", log[0].Message)
	}
}
