package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"inksync/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Workspaces []model.WorkspaceSnapshot `json:"workspaces"`
			QueueLen   int64                     `json:"queue_len"`
			History    struct {
				Total  int64
				Failed int64
			} `json:"history"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		if len(result.Workspaces) == 0 {
			fmt.Println("no active workspaces")
			return nil
		}

		fmt.Printf("%-6s %-8s %-36s %-10s %-6s %s\n",
			"ID", "STATUS", "PATH", "CONFLICT", "QUEUE", "LAST SYNC")

		for _, snap := range result.Workspaces {
			lastSync := "-"
			if snap.LastSync != nil {
				lastSync = snap.LastSync.Format("2006-01-02 15:04:05")
			}

			fmt.Printf("%-6d %-8s %-36s %-10s %-6d %s\n",
				snap.WorkspaceID, snap.Status, snap.Path, snap.Conflict, snap.QueueLen, lastSync)

			uptime := time.Since(snap.StartedAt).Round(time.Second)
			fmt.Printf("       commits: %d  syncs: %d  failed: %d  uptime: %s\n",
				snap.Commits, snap.Syncs, snap.Failed, uptime)

			if snap.Unsaved {
				fmt.Println("       unsaved changes pending")
			}
		}

		if result.QueueLen > 0 {
			fmt.Printf("\npending pushes: %d\n", result.QueueLen)
		}
		if result.History.Total > 0 {
			fmt.Printf("history: %d actions recorded, %d failed\n",
				result.History.Total, result.History.Failed)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
