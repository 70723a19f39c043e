package gitcli

import (
	"context"
	"strconv"
	"strings"
	"time"

	"inksync/internal/model"
)

func (r *Repo) HasChanges(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}

	return out != "", nil
}

// Snapshot stages the whole tree and commits it. Returns the snapshot id,
// or ErrNothingToCommit when the tree matches the previous snapshot.
func (r *Repo) Snapshot(ctx context.Context, message string) (string, error) {
	if _, err := r.run(ctx, "add", "-A"); err != nil {
		return "", err
	}

	if _, err := r.run(ctx, "commit", "-m", message); err != nil {
		if !identityMissing(err) {
			return "", err
		}

		if err := r.setFallbackIdentity(ctx); err != nil {
			return "", err
		}
		if _, err := r.run(ctx, "commit", "-m", message); err != nil {
			return "", err
		}
	}

	return r.run(ctx, "rev-parse", "HEAD")
}

func identityMissing(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "auto-detect email address") ||
		strings.Contains(msg, "empty ident name")
}

// setFallbackIdentity configures a repo-local identity so snapshots work
// on machines without a global git config.
func (r *Repo) setFallbackIdentity(ctx context.Context) error {
	if _, err := r.run(ctx, "config", "user.name", "Inksync"); err != nil {
		return err
	}

	_, err := r.run(ctx, "config", "user.email", "inksync@localhost")
	return err
}

func (r *Repo) History(ctx context.Context, limit int) ([]model.SnapshotInfo, error) {
	out, err := r.run(ctx, "log", "-n", strconv.Itoa(limit), "--pretty=format:%H%x09%at%x09%s")
	if err != nil {
		if strings.Contains(err.Error(), "does not have any commits") {
			return nil, nil
		}
		return nil, err
	}

	var snaps []model.SnapshotInfo
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		sec, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}

		snaps = append(snaps, model.SnapshotInfo{
			ID:      parts[0],
			Message: parts[2],
			Time:    time.Unix(sec, 0),
		})
	}

	return snaps, nil
}
