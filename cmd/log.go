package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"inksync/internal/model"
)

var logN int

var logCmd = &cobra.Command{
	Use:   "log [id]",
	Short: "Show the snapshot log of a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fmt.Sprintf("%s?n=%d", daemonURL("/workspaces/"+args[0]+"/log"), logN)
		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		if resp.StatusCode != http.StatusOK {
			var apiErr map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&apiErr)
			return fmt.Errorf("%s", apiErr["error"])
		}

		var entries []model.SnapshotInfo
		if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("no snapshots yet")
			return nil
		}

		for _, e := range entries {
			id := e.ID
			if len(id) > 8 {
				id = id[:8]
			}
			fmt.Printf("%s  %s  %s\n",
				id,
				e.Time.Format("2006-01-02 15:04:05"),
				e.Message)
		}

		return nil
	},
}

func init() {
	logCmd.Flags().IntVar(&logN, "n", 20, "number of snapshots to show")
	rootCmd.AddCommand(logCmd)
}
