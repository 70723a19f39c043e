package model

import "time"

// SnapshotInfo describes one whole-tree snapshot in the workspace log.
type SnapshotInfo struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// WorkspaceSnapshot is the point-in-time view of a running engine served
// over the status API.
type WorkspaceSnapshot struct {
	WorkspaceID uint            `json:"workspace_id"`
	Path        string          `json:"path"`
	Remote      string          `json:"remote"`
	Branch      string          `json:"branch"`
	Status      WorkspaceStatus `json:"status"`
	Syncing     bool            `json:"syncing"`
	Unsaved     bool            `json:"unsaved"`
	Conflict    string          `json:"conflict_state"`
	Conflicts   []ConflictFile  `json:"conflicts,omitempty"`
	QueueLen    int             `json:"queue_len"`
	StartedAt   time.Time       `json:"started_at"`
	LastCommit  *time.Time      `json:"last_commit"`
	LastSync    *time.Time      `json:"last_sync"`
	Commits     int             `json:"commits"`
	Syncs       int             `json:"syncs"`
	Failed      int             `json:"failed"`
}
