package store

import (
	"context"

	"inksync/internal/model"
)

// Credential authenticates remote operations. Username may be empty for
// token-only hosts.
type Credential struct {
	Username string
	Token    string
}

// CredentialSource resolves the credential for a named remote. Lookup
// returns ErrNoCredential when none is configured; callers treat that as
// "sync unavailable", never as a crash.
type CredentialSource interface {
	Lookup(ctx context.Context, remote string) (Credential, error)
}

// DocumentStore persists single documents inside a workspace. Paths are
// workspace-relative with forward slashes.
type DocumentStore interface {
	Write(ctx context.Context, rel string, content []byte) error
	Read(ctx context.Context, rel string) ([]byte, error)
	Remove(ctx context.Context, rel string) error
	Rename(ctx context.Context, oldRel, newRel string) error
}

// Repository is the versioned store underneath a workspace. The engine only
// sees this surface; snapshotting, transport and merge machinery live
// behind it.
type Repository interface {
	// Workspace setup and inspection.
	Verify(ctx context.Context) error
	Init(ctx context.Context, branch string) error
	AddRemote(ctx context.Context, name, url string) error
	HasChanges(ctx context.Context) (bool, error)
	CurrentBranch(ctx context.Context) (string, error)
	SwitchBranch(ctx context.Context, name string) error

	// Snapshots.
	Snapshot(ctx context.Context, message string) (string, error)
	History(ctx context.Context, limit int) ([]model.SnapshotInfo, error)

	// Remote synchronization. Integrate replays local snapshots on top of
	// the fetched remote tip; a non-empty conflict set means the
	// integration is paused and must be continued or aborted.
	Fetch(ctx context.Context, remote, branch string, cred Credential) error
	Divergence(ctx context.Context, remote, branch string) (ahead, behind int, err error)
	Integrate(ctx context.Context, remote, branch string) ([]model.ConflictFile, error)
	ContinueIntegrate(ctx context.Context) ([]model.ConflictFile, error)
	AbortIntegrate(ctx context.Context) error
	Integrating(ctx context.Context) (bool, error)
	Push(ctx context.Context, remote, branch string, cred Credential) error

	// Resolve applies one conflict decision: content is written and staged
	// so a later ContinueIntegrate can pick it up.
	Resolve(ctx context.Context, item model.ResolutionItem) error
}
