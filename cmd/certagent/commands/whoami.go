package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the session state and effective principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWire(cmd.Context(), nil)
			if err != nil {
				return err
			}
			who, err := w.Whoami()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:       %s\n", who.State)
			if who.SessionKey != "" {
				fmt.Fprintf(out, "Session key: %s\n", who.SessionKey)
			}
			if who.Expiration != "" {
				fmt.Fprintf(out, "Expires:     %s\n", who.Expiration)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Principal:   %s\n", who.Principal)
			return nil
		},
	}
}
