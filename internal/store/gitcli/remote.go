package gitcli

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"

	"inksync/internal/store"
)

// authArgs passes the credential as a per-invocation header so the token
// never lands in the remote URL on disk.
func authArgs(cred store.Credential) []string {
	if cred.Token == "" {
		return nil
	}

	user := cred.Username
	if user == "" {
		user = "token"
	}

	basic := base64.StdEncoding.EncodeToString([]byte(user + ":" + cred.Token))
	return []string{"-c", "http.extraHeader=Authorization: Basic " + basic}
}

func (r *Repo) Fetch(ctx context.Context, remote, branch string, cred store.Credential) error {
	args := append(authArgs(cred), "fetch", remote, branch)
	_, err := r.run(ctx, args...)
	if err != nil && strings.Contains(err.Error(), "couldn't find remote ref") {
		// Remote branch not born yet; the first push will create it.
		return nil
	}

	return err
}

// Divergence counts snapshots only we have (ahead) and only the remote has
// (behind), relative to the last fetch.
func (r *Repo) Divergence(ctx context.Context, remote, branch string) (int, int, error) {
	remoteRef := remote + "/" + branch

	if _, err := r.run(ctx, "rev-parse", "--verify", "--quiet", remoteRef); err != nil {
		// No remote tip: everything local counts as ahead.
		out, err := r.run(ctx, "rev-list", "--count", branch)
		if err != nil {
			return 0, 0, nil
		}

		ahead, _ := strconv.Atoi(out)
		return ahead, 0, nil
	}

	out, err := r.run(ctx, "rev-list", "--left-right", "--count", branch+"..."+remoteRef)
	if err != nil {
		return 0, 0, err
	}

	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, nil
	}

	ahead, _ := strconv.Atoi(fields[0])
	behind, _ := strconv.Atoi(fields[1])
	return ahead, behind, nil
}

func (r *Repo) Push(ctx context.Context, remote, branch string, cred store.Credential) error {
	args := append(authArgs(cred), "push", remote, branch)
	_, err := r.run(ctx, args...)
	return err
}
