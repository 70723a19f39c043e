package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the push retry queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued pushes",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/queue"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Tasks []struct {
				ID          uint
				Workspace   string
				Remote      string
				Branch      string
				Attempts    int
				NextAttempt time.Time
				LastError   string
			} `json:"tasks"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&result)

		if len(result.Tasks) == 0 {
			fmt.Println("queue is empty")
			return nil
		}

		fmt.Printf("%-4s %-36s %-20s %-8s %s\n", "ID", "WORKSPACE", "TARGET", "TRIES", "NEXT ATTEMPT")
		for _, t := range result.Tasks {
			next := "-"
			if !t.NextAttempt.IsZero() {
				next = t.NextAttempt.Format("2006-01-02 15:04:05")
			}

			target := t.Remote + "/" + t.Branch
			fmt.Printf("%-4d %-36s %-20s %-8d %s\n", t.ID, t.Workspace, target, t.Attempts, next)
			if t.LastError != "" {
				fmt.Printf("     last error: %s\n", t.LastError)
			}
		}

		return nil
	},
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Retry every queued push now",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Post(daemonURL("/queue/drain"), "application/json", nil)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Attempted int    `json:"attempted"`
			Pushed    int    `json:"pushed"`
			Skipped   int    `json:"skipped"`
			Failed    int    `json:"failed"`
			Error     string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&result)

		if result.Error != "" {
			return fmt.Errorf("%s", result.Error)
		}

		fmt.Printf("drained: %d pushed, %d failed, %d waiting on backoff\n",
			result.Pushed, result.Failed, result.Skipped)
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd, queueDrainCmd)
	rootCmd.AddCommand(queueCmd)
}
