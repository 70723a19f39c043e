package model

// Status is the recorded outcome of an engine action.
type Status string

const (
	StatusSuccess  Status = "SUCCESS"
	StatusSkipped  Status = "SKIPPED"
	StatusConflict Status = "CONFLICT"
	StatusFailed   Status = "FAILED"
)

// SyncResult is the outcome of one remote sync attempt. Conflicts is
// populated only when Status is CONFLICT; the integration stays paused
// until the conflicts are resolved or the sync is aborted.
type SyncResult struct {
	Status    Status         `json:"status"`
	Conflicts []ConflictFile `json:"conflicts,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}
