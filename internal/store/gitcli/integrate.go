package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"inksync/internal/model"
	"inksync/internal/store"
	"inksync/internal/util"
)

const copyNameFormat = "20060102_150405"

// Integrate replays local snapshots on top of the fetched remote tip. A
// non-empty conflict set means the replay is paused and must be continued
// or aborted.
func (r *Repo) Integrate(ctx context.Context, remote, branch string) ([]model.ConflictFile, error) {
	_, err := r.run(ctx, "rebase", remote+"/"+branch)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return r.conflictFiles(ctx)
		}
		return nil, err
	}

	return nil, nil
}

func (r *Repo) ContinueIntegrate(ctx context.Context) ([]model.ConflictFile, error) {
	_, err := r.run(ctx, "-c", "core.editor=true", "rebase", "--continue")
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return r.conflictFiles(ctx)
		}
		return nil, err
	}

	return nil, nil
}

func (r *Repo) AbortIntegrate(ctx context.Context) error {
	_, err := r.run(ctx, "rebase", "--abort")
	return err
}

func (r *Repo) Integrating(ctx context.Context) (bool, error) {
	for _, name := range []string{"rebase-merge", "rebase-apply"} {
		out, err := r.run(ctx, "rev-parse", "--git-path", name)
		if err != nil {
			return false, err
		}

		p := out
		if !filepath.IsAbs(p) {
			p = filepath.Join(r.dir, p)
		}

		if _, err := os.Stat(p); err == nil {
			return true, nil
		}
	}

	return false, nil
}

func (r *Repo) conflictFiles(ctx context.Context) ([]model.ConflictFile, error) {
	out, err := r.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}

	var files []model.ConflictFile
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		files = append(files, model.ConflictFile{
			Path:     line,
			IsBinary: model.IsBinaryPath(line),
		})
	}

	return files, nil
}

// Resolve applies one conflict decision and stages the result. During a
// replay the index holds the remote side as stage 2 ("ours") and the local
// side as stage 3 ("theirs"), so the flags below are inverted on purpose.
func (r *Repo) Resolve(ctx context.Context, item model.ResolutionItem) error {
	switch item.Choice {
	case model.ChoiceOurs:
		return r.takeStage(ctx, item.Path, "--theirs")

	case model.ChoiceTheirs:
		return r.takeStage(ctx, item.Path, "--ours")

	case model.ChoiceCopyBoth:
		local, err := r.output(ctx, "show", ":3:"+item.Path)
		if err != nil {
			return err
		}

		copyName := model.ConflictCopyName(item.Path, time.Now().Format(copyNameFormat))
		abs := filepath.Join(r.dir, filepath.FromSlash(copyName))
		if err := util.AtomicWrite(abs, bytes.NewReader(local)); err != nil {
			return fmt.Errorf("%w: %v", store.ErrSaveFailed, err)
		}

		if err := r.takeStage(ctx, item.Path, "--ours"); err != nil {
			return err
		}

		_, err = r.run(ctx, "add", "--", copyName)
		return err

	default:
		return fmt.Errorf("%w: unknown choice %q", store.ErrBadState, item.Choice)
	}
}

func (r *Repo) takeStage(ctx context.Context, path, side string) error {
	if _, err := r.run(ctx, "checkout", side, "--", path); err != nil {
		// Delete/modify conflict: the chosen side has no version, so the
		// decision is to drop the file.
		if strings.Contains(err.Error(), "does not have") {
			_, err = r.run(ctx, "rm", "-f", "--", path)
		}
		return err
	}

	_, err := r.run(ctx, "add", "--", path)
	return err
}
