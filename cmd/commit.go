package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var commitTrigger string

var commitCmd = &cobra.Command{
	Use:   "commit [id]",
	Short: "Request a snapshot of a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := fmt.Sprintf(`{"trigger":%q}`, strings.ToUpper(commitTrigger))
		resp, err := http.Post(
			daemonURL("/workspaces/"+args[0]+"/commit"),
			"application/json",
			strings.NewReader(body))

		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&result)

		if msg, ok := result["error"]; ok {
			return fmt.Errorf("%s", msg)
		}

		fmt.Println("commit requested")
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVar(&commitTrigger, "trigger", "BACKGROUNDED",
		"lifecycle trigger (PERIODIC, BACKGROUNDED, FOREGROUNDED, SHUTDOWN)")
	rootCmd.AddCommand(commitCmd)
}
