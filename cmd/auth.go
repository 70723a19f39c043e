package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"inksync/internal/credential"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage remote credentials",
}

var (
	authUsername string
	authToken    string
)

var authSetCmd = &cobra.Command{
	Use:   "set-token [remote]",
	Short: "Store an access token for a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if authToken == "" {
			return fmt.Errorf("--token is required")
		}

		source := credential.New("")
		token := &oauth2.Token{AccessToken: authToken}
		if err := source.Save(args[0], authUsername, token); err != nil {
			return err
		}

		fmt.Printf("credential stored for remote %q\n", args[0])
		return nil
	},
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes with stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		remotes, err := credential.New("").Remotes()
		if err != nil {
			return err
		}

		if len(remotes) == 0 {
			fmt.Println("no credentials stored")
			return nil
		}

		for _, name := range remotes {
			fmt.Println(name)
		}

		return nil
	},
}

func init() {
	authSetCmd.Flags().StringVar(&authUsername, "username", "", "username for the remote, if any")
	authSetCmd.Flags().StringVar(&authToken, "token", "", "access token")

	authCmd.AddCommand(authSetCmd, authListCmd)
	rootCmd.AddCommand(authCmd)
}
