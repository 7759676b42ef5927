package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the session key and delegation chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWire(cmd.Context(), nil)
			if err != nil {
				return err
			}
			if err := w.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
