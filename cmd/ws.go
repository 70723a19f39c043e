package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var wsCmd = &cobra.Command{
	Use:   "ws",
	Short: "Manage workspaces",
}

var wsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all workspaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/workspaces"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Workspaces []struct {
				ID     uint   `json:"id"`
				Path   string `json:"path"`
				Remote string `json:"remote"`
				Branch string `json:"branch"`
				Status string `json:"status"`
			} `json:"workspaces"`
			Running map[string]struct {
				Syncs    int `json:"syncs"`
				Failed   int `json:"failed"`
				QueueLen int `json:"queue_len"`
			} `json:"running"`
		}

		_ = json.NewDecoder(resp.Body).Decode(&result)

		if len(result.Workspaces) == 0 {
			fmt.Println("no workspaces configured")
			return nil
		}

		fmt.Printf("%-4s %-8s %-40s %-20s %s\n", "ID", "STATUS", "PATH", "REMOTE", "SYNCED/FAILED/QUEUED")
		for _, w := range result.Workspaces {
			syncs, failed, queued := 0, 0, 0
			if r, ok := result.Running[fmt.Sprint(w.ID)]; ok {
				syncs = r.Syncs
				failed = r.Failed
				queued = r.QueueLen
			}
			target := w.Remote + "/" + w.Branch
			fmt.Printf("%-4d %-8s %-40s %-20s %d/%d/%d\n", w.ID, w.Status, w.Path, target, syncs, failed, queued)
		}

		return nil
	},
}

var (
	wsAddRemote string
	wsAddBranch string
	wsAddURL    string
)

var wsAddCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Register a workspace and start watching it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}

		body := fmt.Sprintf(`{"path":%q, "remote":%q, "branch":%q, "remote_url":%q}`,
			abs, wsAddRemote, wsAddBranch, wsAddURL)
		resp, err := http.Post(
			daemonURL("/workspaces"),
			"application/json",
			strings.NewReader(body))

		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&result)

		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("add failed: %v", result["error"])
		}

		fmt.Printf("workspace added: id=%v path=%s\n", result["ID"], abs)
		return nil
	},
}

var wsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Stop and unregister a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, _ := http.NewRequest(http.MethodDelete, daemonURL("/workspaces/"+args[0]), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		fmt.Printf("workspace %s removed\n", args[0])
		return nil
	},
}

var wsPauseCmd = &cobra.Command{
	Use:   "pause [id]",
	Short: "Pause periodic snapshots for a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Post(daemonURL("/workspaces/"+args[0]+"/pause"), "application/json", nil)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		fmt.Printf("workspace %s paused\n", args[0])
		return nil
	},
}

var wsResumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Resume periodic snapshots for a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Post(daemonURL("/workspaces/"+args[0]+"/resume"), "application/json", nil)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		fmt.Printf("workspace %s resumed\n", args[0])
		return nil
	},
}

func init() {
	wsAddCmd.Flags().StringVar(&wsAddRemote, "remote", "", "remote name (defaults to config)")
	wsAddCmd.Flags().StringVar(&wsAddBranch, "branch", "", "branch name (defaults to config)")
	wsAddCmd.Flags().StringVar(&wsAddURL, "url", "", "remote URL to configure")

	wsCmd.AddCommand(wsListCmd, wsAddCmd, wsRemoveCmd, wsPauseCmd, wsResumeCmd)
	rootCmd.AddCommand(wsCmd)
}
