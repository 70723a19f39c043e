package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"inksync/internal/credential"
	"inksync/internal/logger"
	"inksync/internal/model"
	"inksync/internal/repository"
	"inksync/internal/store"
	"inksync/internal/store/gitcli"
	"inksync/internal/syncer"
)

var syncDir string

var syncCmd = &cobra.Command{
	Use:   "sync [id]",
	Short: "Sync a workspace with its remote",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncDir != "" {
			return syncOnce(syncDir)
		}
		if len(args) != 1 {
			return fmt.Errorf("workspace id required, or --dir for a one-shot sync")
		}

		result, err := postWorkspaceOp(args[0], "/sync")
		if err != nil {
			return err
		}

		if result.Status == string(model.StatusConflict) {
			printConflicts(args[0], result.Conflicts)
			return nil
		}

		fmt.Println("synced")
		return nil
	},
}

var syncContinueCmd = &cobra.Command{
	Use:   "continue [id]",
	Short: "Continue a sync paused on conflicts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := postWorkspaceOp(args[0], "/sync/continue")
		if err != nil {
			return err
		}

		if result.Status == string(model.StatusConflict) {
			printConflicts(args[0], result.Conflicts)
			return nil
		}

		fmt.Println("sync continued and pushed")
		return nil
	},
}

var syncAbortCmd = &cobra.Command{
	Use:   "abort [id]",
	Short: "Abort a sync paused on conflicts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := postWorkspaceOp(args[0], "/sync/abort"); err != nil {
			return err
		}

		fmt.Println("sync aborted")
		return nil
	},
}

type syncResponse struct {
	Status    string               `json:"status"`
	Conflicts []model.ConflictFile `json:"conflicts"`
	Reason    string               `json:"reason"`
	Error     string               `json:"error"`
}

func postWorkspaceOp(id, suffix string) (syncResponse, error) {
	resp, err := http.Post(daemonURL("/workspaces/"+id+suffix), "application/json", nil)
	if err != nil {
		return syncResponse{}, fmt.Errorf("daemon not running: %w", err)
	}

	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	var result syncResponse
	_ = json.NewDecoder(resp.Body).Decode(&result)

	if result.Error != "" {
		return result, fmt.Errorf("%s", result.Error)
	}

	return result, nil
}

func printConflicts(id string, files []model.ConflictFile) {
	fmt.Println("sync paused on conflicts:")
	for _, f := range files {
		marker := ""
		if f.IsBinary {
			marker = " (binary)"
		}
		fmt.Printf("  %s%s\n", f.Path, marker)
	}
	fmt.Printf("run 'inksync conflicts resolve %s' to pick versions, or 'inksync sync abort %s'\n", id, id)
}

// syncOnce runs one direct attempt against the directory, without the
// daemon. A conflict leaves the integration paused in the repository.
func syncOnce(dir string) error {
	defer logger.Sync()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	repo, err := gitcli.New(abs)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if busy, err := repo.Integrating(ctx); err == nil && busy {
		return fmt.Errorf("an integration is already paused in %s, resolve or abort it first", abs)
	}

	remote, branch := cfg.Remote, cfg.Branch
	if ws, err := repository.NewWorkspaceRepository().GetByPath(abs); err == nil {
		remote, branch = ws.Remote, ws.Branch
	}

	s := syncer.New(syncer.Config{
		Repo:      repo,
		Creds:     credential.New(""),
		Queue:     repository.NewTaskRepository(cfg.QueueCapacity),
		Recorder:  repository.NewHistoryRepository(),
		Workspace: abs,
		Remote:    remote,
		Branch:    branch,
	})

	result, err := s.Sync(ctx)
	if err != nil {
		switch {
		case store.NeedsUserAction(err):
			fmt.Println("hint: configure a token with 'inksync auth set-token " + remote + "'")
		case store.IsRetryable(err):
			fmt.Println("hint: the push was queued, run 'inksync queue drain' once the remote is reachable")
		}
		return err
	}

	if result.Status == model.StatusConflict {
		fmt.Println("sync paused on conflicts:")
		for _, f := range result.Conflicts {
			fmt.Printf("  %s\n", f.Path)
		}
		fmt.Println("resolve them from the daemon, or abort the integration")
		return nil
	}

	fmt.Println("synced")
	return nil
}

func init() {
	syncCmd.Flags().StringVar(&syncDir, "dir", "", "sync a directory once without the daemon")
	syncCmd.AddCommand(syncContinueCmd, syncAbortCmd)
	rootCmd.AddCommand(syncCmd)
}
