package gitcli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"inksync/internal/store"
)

// Repo drives the versioned store through the git CLI. Every operation is
// a child process rooted at the workspace directory; failures are mapped
// onto the store sentinel errors by inspecting the output.
type Repo struct {
	dir string
}

func New(dir string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace path: %w", err)
	}

	return &Repo{dir: abs}, nil
}

func (r *Repo) Dir() string {
	return r.dir
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, classify(output, err)
	}

	return output, nil
}

// output captures stdout raw, for commands whose output is content rather
// than text to parse.
func (r *Repo) output(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, classify(strings.TrimSpace(stderr.String()), err)
	}

	return out, nil
}

func classify(output string, err error) error {
	lower := strings.ToLower(output)

	switch {
	case strings.Contains(lower, "does not appear to be a git repository"),
		strings.Contains(lower, "no such remote"),
		strings.Contains(lower, "no configured push destination"):
		return fmt.Errorf("%w: %s", store.ErrNoRemote, firstLine(output))

	case strings.Contains(lower, "not a git repository"):
		return store.ErrNoRepository

	case strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "could not read username"),
		strings.Contains(lower, "invalid username or"):
		return fmt.Errorf("%w: %s", store.ErrAuthFailed, firstLine(output))

	case strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection timed out"),
		strings.Contains(lower, "unable to access"):
		return fmt.Errorf("%w: %s", store.ErrNetwork, firstLine(output))

	case strings.Contains(lower, "nothing to commit"),
		strings.Contains(lower, "no changes added to commit"):
		return store.ErrNothingToCommit

	case strings.Contains(lower, "[rejected]"),
		strings.Contains(lower, "non-fast-forward"),
		strings.Contains(lower, "fetch first"):
		return fmt.Errorf("%w: %s", store.ErrPushRejected, firstLine(output))

	case strings.Contains(lower, "no rebase in progress"),
		strings.Contains(lower, "cannot rebase"),
		strings.Contains(lower, "you have unstaged changes"),
		strings.Contains(lower, "your local changes"):
		return fmt.Errorf("%w: %s", store.ErrBadState, firstLine(output))

	case strings.Contains(lower, "conflict"):
		return fmt.Errorf("%w: %s", store.ErrConflict, firstLine(output))
	}

	return fmt.Errorf("git: %v (%s)", err, firstLine(output))
}

func firstLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "fatal:") || strings.HasPrefix(line, "error:") {
			return line
		}
	}

	if i := strings.IndexByte(output, '\n'); i >= 0 {
		return strings.TrimSpace(output[:i])
	}

	return output
}
