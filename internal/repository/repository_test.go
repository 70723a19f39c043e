package repository

import (
	"path/filepath"
	"testing"
	"time"

	"inksync/internal/db"
	"inksync/internal/model"
)

func initDB(t *testing.T) {
	t.Helper()

	if err := db.Init(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("db.Init: %v", err)
	}
}

func enqueue(t *testing.T, r *TaskRepository, workspace string, at time.Time, lastErr string) {
	t.Helper()

	err := r.Enqueue(model.PushTask{
		Workspace:  workspace,
		Remote:     "origin",
		Branch:     "main",
		EnqueuedAt: at,
		LastError:  lastErr,
	})
	if err != nil {
		t.Fatalf("Enqueue(%s): %v", workspace, err)
	}
}

func TestTaskQueueDedup(t *testing.T) {
	initDB(t)
	repo := NewTaskRepository(10)
	base := time.Now()

	enqueue(t, repo, "/ws/a", base, "first failure")
	enqueue(t, repo, "/ws/a", base.Add(time.Second), "second failure")

	count, err := repo.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("Count = %d after re-enqueue, want 1", count)
	}

	tasks, err := repo.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if tasks[0].LastError != "second failure" {
		t.Errorf("LastError = %q, want refreshed value", tasks[0].LastError)
	}
}

func TestTaskQueueCapacityEvictsOldest(t *testing.T) {
	initDB(t)
	repo := NewTaskRepository(2)
	base := time.Now()

	enqueue(t, repo, "/ws/a", base, "")
	enqueue(t, repo, "/ws/b", base.Add(time.Second), "")
	enqueue(t, repo, "/ws/c", base.Add(2*time.Second), "")

	tasks, err := repo.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("queue holds %d tasks, want 2", len(tasks))
	}
	if tasks[0].Workspace != "/ws/b" || tasks[1].Workspace != "/ws/c" {
		t.Errorf("queue = [%s, %s], want oldest evicted", tasks[0].Workspace, tasks[1].Workspace)
	}
}

func TestTaskQueueDeleteThenReenqueue(t *testing.T) {
	initDB(t)
	repo := NewTaskRepository(10)
	base := time.Now()

	enqueue(t, repo, "/ws/a", base, "")

	tasks, _ := repo.Pending()
	if err := repo.Delete(tasks[0].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if count, _ := repo.Count(); count != 0 {
		t.Fatalf("Count = %d after delete, want 0", count)
	}

	// The row is gone for real, so the same target can queue again.
	enqueue(t, repo, "/ws/a", base.Add(time.Second), "")
	if count, _ := repo.Count(); count != 1 {
		t.Errorf("Count = %d after re-enqueue, want 1", count)
	}
}

func TestTaskQueueMarkFailed(t *testing.T) {
	initDB(t)
	repo := NewTaskRepository(10)

	enqueue(t, repo, "/ws/a", time.Now(), "")

	tasks, _ := repo.Pending()
	next := time.Now().Add(time.Minute)
	if err := repo.MarkFailed(tasks[0].ID, 3, next, "network down"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	tasks, _ = repo.Pending()
	if tasks[0].Attempts != 3 || tasks[0].LastError != "network down" {
		t.Errorf("task = attempts %d, last error %q", tasks[0].Attempts, tasks[0].LastError)
	}
	if tasks[0].NextAttempt.Before(next.Add(-time.Second)) {
		t.Errorf("NextAttempt = %v, want about %v", tasks[0].NextAttempt, next)
	}
}

func TestTaskQueueCountForWorkspace(t *testing.T) {
	initDB(t)
	repo := NewTaskRepository(10)
	base := time.Now()

	enqueue(t, repo, "/ws/a", base, "")
	enqueue(t, repo, "/ws/b", base.Add(time.Second), "")

	count, err := repo.CountForWorkspace("/ws/a")
	if err != nil {
		t.Fatalf("CountForWorkspace: %v", err)
	}
	if count != 1 {
		t.Errorf("CountForWorkspace = %d, want 1", count)
	}
}

func TestWorkspaceRepository(t *testing.T) {
	initDB(t)
	repo := NewWorkspaceRepository()

	ws, err := repo.Add("/ws/a", "origin", "main")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ws.ID == 0 {
		t.Fatal("Add returned zero ID")
	}
	if ws.Status != model.WorkspaceActive {
		t.Errorf("Status = %s, want ACTIVE", ws.Status)
	}

	got, err := repo.GetByPath("/ws/a")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if got.ID != ws.ID {
		t.Errorf("GetByPath ID = %d, want %d", got.ID, ws.ID)
	}

	if err := repo.UpdateStatus(ws.ID, model.WorkspacePaused); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ = repo.GetByID(ws.ID)
	if got.Status != model.WorkspacePaused {
		t.Errorf("Status = %s after update, want PAUSED", got.Status)
	}

	if err := repo.Delete(ws.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ws.ID); err == nil {
		t.Error("GetByID succeeded after delete")
	}
}

func TestHistoryStatsAndRecent(t *testing.T) {
	initDB(t)
	repo := NewHistoryRepository()

	records := []struct {
		action model.Action
		status model.Status
	}{
		{model.ActionSync, model.StatusSuccess},
		{model.ActionPush, model.StatusFailed},
		{model.ActionCommit, model.StatusSkipped},
	}
	for _, rec := range records {
		if err := repo.Record("/ws/a", rec.action, rec.status, ""); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	stats, err := repo.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 3 || stats.Success != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	recent, err := repo.GetRecent(2)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("GetRecent returned %d entries, want 2", len(recent))
	}

	failed, err := repo.GetFailed()
	if err != nil {
		t.Fatalf("GetFailed: %v", err)
	}
	if len(failed) != 1 || failed[0].Action != model.ActionPush {
		t.Errorf("GetFailed = %+v", failed)
	}
}
