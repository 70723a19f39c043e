package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"inksync/internal/model"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Inspect and resolve sync conflicts",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list [id]",
	Short: "List open conflicts for a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/workspaces/" + args[0] + "/conflicts"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			State string               `json:"state"`
			Files []model.ConflictFile `json:"files"`
			Error string               `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&result)

		if result.Error != "" {
			return fmt.Errorf("%s", result.Error)
		}

		if len(result.Files) == 0 {
			fmt.Println("no open conflicts")
			return nil
		}

		fmt.Printf("state: %s\n", result.State)
		for _, f := range result.Files {
			marker := ""
			if f.IsBinary {
				marker = " (binary)"
			}
			fmt.Printf("  %s%s\n", f.Path, marker)
		}

		return nil
	},
}

var (
	resolveOurs   []string
	resolveTheirs []string
	resolveBoth   []string
)

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve [id]",
	Short: "Resolve all open conflicts and continue the sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var items []model.ResolutionItem
		for _, p := range resolveOurs {
			items = append(items, model.ResolutionItem{Path: p, Choice: model.ChoiceOurs})
		}
		for _, p := range resolveTheirs {
			items = append(items, model.ResolutionItem{Path: p, Choice: model.ChoiceTheirs})
		}
		for _, p := range resolveBoth {
			items = append(items, model.ResolutionItem{Path: p, Choice: model.ChoiceCopyBoth})
		}

		if len(items) == 0 {
			return fmt.Errorf("no decisions given, use --ours, --theirs or --both")
		}

		body, err := json.Marshal(map[string]any{"items": items})
		if err != nil {
			return err
		}

		resp, err := http.Post(
			daemonURL("/workspaces/"+args[0]+"/conflicts/resolve"),
			"application/json",
			bytes.NewReader(body))

		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result syncResponse
		_ = json.NewDecoder(resp.Body).Decode(&result)

		if result.Error != "" {
			return fmt.Errorf("%s", result.Error)
		}

		if result.Status == string(model.StatusConflict) {
			fmt.Println("new conflicts after continuing:")
			for _, f := range result.Conflicts {
				fmt.Printf("  %s\n", f.Path)
			}
			return nil
		}

		fmt.Println("conflicts resolved, sync continued")
		return nil
	},
}

func init() {
	conflictsResolveCmd.Flags().StringSliceVar(&resolveOurs, "ours", nil, "keep the local version of these paths")
	conflictsResolveCmd.Flags().StringSliceVar(&resolveTheirs, "theirs", nil, "take the remote version of these paths")
	conflictsResolveCmd.Flags().StringSliceVar(&resolveBoth, "both", nil, "keep both versions of these paths")

	conflictsCmd.AddCommand(conflictsListCmd, conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}
