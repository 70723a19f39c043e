package gitcli

import (
	"context"
	"strings"

	"inksync/internal/store"
)

func (r *Repo) Verify(ctx context.Context) error {
	out, err := r.run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return err
	}

	if out != "true" {
		return store.ErrNoRepository
	}

	return nil
}

func (r *Repo) Init(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "init", "-b", branch)
	return err
}

func (r *Repo) AddRemote(ctx context.Context, name, url string) error {
	_, err := r.run(ctx, "remote", "add", name, url)
	if err != nil && strings.Contains(err.Error(), "already exists") {
		_, err = r.run(ctx, "remote", "set-url", name, url)
	}

	return err
}

// CurrentBranch returns "" for a detached head; callers treat that as a
// branch mismatch and switch back.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, "branch", "--show-current")
}

// SwitchBranch force-checks-out the branch, creating it at the current
// head when it went missing. Keeps the workspace usable after outside
// tools left it detached or elsewhere.
func (r *Repo) SwitchBranch(ctx context.Context, name string) error {
	_, err := r.run(ctx, "checkout", "-f", name)
	if err != nil && strings.Contains(err.Error(), "did not match any") {
		_, err = r.run(ctx, "checkout", "-f", "-b", name)
	}

	return err
}
