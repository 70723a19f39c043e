package gitcli

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"inksync/internal/model"
	"inksync/internal/store"
)

func requireGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}

	return strings.TrimSpace(string(out))
}

// newTestRepo initializes a workspace repository with a fixed identity so
// commits work regardless of the machine's git config.
func newTestRepo(t *testing.T) (*Repo, context.Context) {
	t.Helper()

	ctx := context.Background()
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Init(ctx, "main"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	gitRun(t, r.Dir(), "config", "user.name", "Test")
	gitRun(t, r.Dir(), "config", "user.email", "test@localhost")

	return r, ctx
}

func writeFile(t *testing.T, r *Repo, rel, content string) {
	t.Helper()

	abs := filepath.Join(r.Dir(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, r *Repo, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(r.Dir(), filepath.FromSlash(rel)))
	if err != nil {
		t.Fatal(err)
	}

	return string(data)
}

// setupDiverged builds a workspace whose note.md was edited both locally
// and on the remote since the last shared snapshot.
func setupDiverged(t *testing.T, ctx context.Context) *Repo {
	t.Helper()

	bare := t.TempDir()
	gitRun(t, bare, "init", "--bare", "-b", "main", ".")

	r, _ := newTestRepo(t)
	writeFile(t, r, "note.md", "base\n")
	if _, err := r.Snapshot(ctx, "Base"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := r.AddRemote(ctx, "origin", bare); err != nil {
		t.Fatalf("AddRemote: %v", err)
	}
	if err := r.Push(ctx, "origin", "main", store.Credential{}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	// A second checkout advances the remote with a different edit.
	other := t.TempDir()
	gitRun(t, other, "clone", bare, ".")
	gitRun(t, other, "config", "user.name", "Other")
	gitRun(t, other, "config", "user.email", "other@localhost")
	if err := os.WriteFile(filepath.Join(other, "note.md"), []byte("remote version\n"), 0644); err != nil {
		t.Fatal(err)
	}
	gitRun(t, other, "commit", "-am", "Remote edit")
	gitRun(t, other, "push", "origin", "main")

	writeFile(t, r, "note.md", "local version\n")
	if _, err := r.Snapshot(ctx, "Local edit"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if err := r.Fetch(ctx, "origin", "main", store.Credential{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	return r
}

func TestVerifyAndInit(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := r.Verify(ctx); !errors.Is(err, store.ErrNoRepository) {
		t.Fatalf("Verify on empty dir = %v, want ErrNoRepository", err)
	}

	if err := r.Init(ctx, "main"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := r.Verify(ctx); err != nil {
		t.Fatalf("Verify after init = %v", err)
	}

	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch = %q, want main", branch)
	}
}

func TestSnapshotAndHistory(t *testing.T) {
	requireGit(t)
	r, ctx := newTestRepo(t)

	changed, err := r.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges: %v", err)
	}
	if changed {
		t.Fatal("HasChanges = true on empty repo")
	}

	writeFile(t, r, "note.md", "hello\n")
	if changed, _ = r.HasChanges(ctx); !changed {
		t.Fatal("HasChanges = false with untracked file")
	}

	id, err := r.Snapshot(ctx, "First snapshot")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(id) != 40 {
		t.Errorf("snapshot id = %q, want full hash", id)
	}

	if _, err := r.Snapshot(ctx, "Empty"); !errors.Is(err, store.ErrNothingToCommit) {
		t.Fatalf("Snapshot on clean tree = %v, want ErrNothingToCommit", err)
	}

	snaps, err := r.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("History returned %d entries, want 1", len(snaps))
	}
	if snaps[0].ID != id || snaps[0].Message != "First snapshot" {
		t.Errorf("History[0] = %+v", snaps[0])
	}
}

func TestSwitchBranchSelfHeals(t *testing.T) {
	requireGit(t)
	r, ctx := newTestRepo(t)

	writeFile(t, r, "note.md", "x\n")
	if _, err := r.Snapshot(ctx, "Base"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	gitRun(t, r.Dir(), "checkout", "--detach")
	if branch, _ := r.CurrentBranch(ctx); branch != "" {
		t.Fatalf("CurrentBranch = %q on detached head, want empty", branch)
	}

	if err := r.SwitchBranch(ctx, "main"); err != nil {
		t.Fatalf("SwitchBranch: %v", err)
	}
	if branch, _ := r.CurrentBranch(ctx); branch != "main" {
		t.Errorf("CurrentBranch = %q after switch, want main", branch)
	}

	// A missing branch is created at the current head.
	if err := r.SwitchBranch(ctx, "scratch"); err != nil {
		t.Fatalf("SwitchBranch to new branch: %v", err)
	}
	if branch, _ := r.CurrentBranch(ctx); branch != "scratch" {
		t.Errorf("CurrentBranch = %q, want scratch", branch)
	}
}

func TestPushAndDivergence(t *testing.T) {
	requireGit(t)
	r, ctx := newTestRepo(t)

	bare := t.TempDir()
	gitRun(t, bare, "init", "--bare", "-b", "main", ".")
	if err := r.AddRemote(ctx, "origin", bare); err != nil {
		t.Fatalf("AddRemote: %v", err)
	}

	// Unborn remote branch is not an error.
	if err := r.Fetch(ctx, "origin", "main", store.Credential{}); err != nil {
		t.Fatalf("Fetch of unborn branch = %v", err)
	}

	writeFile(t, r, "note.md", "v1\n")
	if _, err := r.Snapshot(ctx, "One"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	ahead, behind, err := r.Divergence(ctx, "origin", "main")
	if err != nil {
		t.Fatalf("Divergence: %v", err)
	}
	if ahead != 1 || behind != 0 {
		t.Fatalf("Divergence before push = %d/%d, want 1/0", ahead, behind)
	}

	if err := r.Push(ctx, "origin", "main", store.Credential{}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	ahead, behind, _ = r.Divergence(ctx, "origin", "main")
	if ahead != 0 || behind != 0 {
		t.Fatalf("Divergence after push = %d/%d, want 0/0", ahead, behind)
	}

	writeFile(t, r, "note.md", "v2\n")
	if _, err := r.Snapshot(ctx, "Two"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := r.Push(ctx, "origin", "main", store.Credential{}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	gitRun(t, r.Dir(), "reset", "--hard", "HEAD~1")
	ahead, behind, _ = r.Divergence(ctx, "origin", "main")
	if ahead != 0 || behind != 1 {
		t.Errorf("Divergence after reset = %d/%d, want 0/1", ahead, behind)
	}
}

func TestIntegrateWithoutConflict(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	r := setupDiverged(t, ctx)

	// The local edit touches a different file this time.
	gitRun(t, r.Dir(), "reset", "--hard", "HEAD~1")
	writeFile(t, r, "other.md", "separate\n")
	if _, err := r.Snapshot(ctx, "Other edit"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	files, err := r.Integrate(ctx, "origin", "main")
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("Integrate returned conflicts %v, want none", files)
	}

	if got := readFile(t, r, "note.md"); got != "remote version\n" {
		t.Errorf("note.md = %q after integrate", got)
	}
	if got := readFile(t, r, "other.md"); got != "separate\n" {
		t.Errorf("other.md = %q after integrate", got)
	}
}

func TestIntegrateConflictResolveOurs(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	r := setupDiverged(t, ctx)

	files, err := r.Integrate(ctx, "origin", "main")
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if len(files) != 1 || files[0].Path != "note.md" {
		t.Fatalf("conflicts = %v, want note.md", files)
	}
	if files[0].IsBinary {
		t.Error("note.md flagged binary")
	}

	busy, err := r.Integrating(ctx)
	if err != nil || !busy {
		t.Fatalf("Integrating = %v, %v, want true", busy, err)
	}

	if err := r.Resolve(ctx, model.ResolutionItem{Path: "note.md", Choice: model.ChoiceOurs}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	rest, err := r.ContinueIntegrate(ctx)
	if err != nil {
		t.Fatalf("ContinueIntegrate: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("conflicts after continue = %v", rest)
	}

	if busy, _ := r.Integrating(ctx); busy {
		t.Error("Integrating = true after continue")
	}
	if got := readFile(t, r, "note.md"); got != "local version\n" {
		t.Errorf("note.md = %q, want local version kept", got)
	}

	if err := r.Push(ctx, "origin", "main", store.Credential{}); err != nil {
		t.Errorf("Push after integrate: %v", err)
	}
}

func TestIntegrateConflictResolveTheirs(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	r := setupDiverged(t, ctx)

	if _, err := r.Integrate(ctx, "origin", "main"); err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	if err := r.Resolve(ctx, model.ResolutionItem{Path: "note.md", Choice: model.ChoiceTheirs}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if _, err := r.ContinueIntegrate(ctx); err != nil {
		t.Fatalf("ContinueIntegrate: %v", err)
	}

	if got := readFile(t, r, "note.md"); got != "remote version\n" {
		t.Errorf("note.md = %q, want remote version taken", got)
	}
}

func TestIntegrateConflictCopyBoth(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	r := setupDiverged(t, ctx)

	if _, err := r.Integrate(ctx, "origin", "main"); err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	if err := r.Resolve(ctx, model.ResolutionItem{Path: "note.md", Choice: model.ChoiceCopyBoth}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := r.ContinueIntegrate(ctx); err != nil {
		t.Fatalf("ContinueIntegrate: %v", err)
	}

	if got := readFile(t, r, "note.md"); got != "remote version\n" {
		t.Errorf("note.md = %q, want remote version at original path", got)
	}

	copies, err := filepath.Glob(filepath.Join(r.Dir(), "note_conflict_*.md"))
	if err != nil || len(copies) != 1 {
		t.Fatalf("conflict copies = %v, %v, want exactly one", copies, err)
	}

	data, err := os.ReadFile(copies[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "local version\n" {
		t.Errorf("conflict copy = %q, want local version", data)
	}
}

func TestAbortIntegrate(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	r := setupDiverged(t, ctx)

	if _, err := r.Integrate(ctx, "origin", "main"); err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	if err := r.AbortIntegrate(ctx); err != nil {
		t.Fatalf("AbortIntegrate: %v", err)
	}

	if busy, _ := r.Integrating(ctx); busy {
		t.Error("Integrating = true after abort")
	}
	if got := readFile(t, r, "note.md"); got != "local version\n" {
		t.Errorf("note.md = %q, want pre-integration content restored", got)
	}

	if err := r.AbortIntegrate(ctx); !errors.Is(err, store.ErrBadState) {
		t.Errorf("AbortIntegrate with nothing paused = %v, want ErrBadState", err)
	}
}
