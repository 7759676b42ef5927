package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"certagent/internal/domain"
)

func callCmd() *cobra.Command {
	var (
		scope  string
		argHex string
		argStr string
	)
	cmd := &cobra.Command{
		Use:   "call <method>",
		Short: "Submit a call and wait for its certified reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseScope(scope)
			if err != nil {
				return err
			}
			arg := []byte(argStr)
			if argHex != "" {
				if arg, err = hex.DecodeString(argHex); err != nil {
					return fmt.Errorf("--arg-hex: %w", err)
				}
			}
			w, err := openWire(cmd.Context(), nil)
			if err != nil {
				return err
			}
			id, res, err := w.Call(cmd.Context(), target, args[0], arg)
			if id != (domain.RequestID{}) {
				fmt.Fprintf(cmd.OutOrStdout(), "Request: %s\n", id)
			}
			if err != nil {
				return err
			}
			printReply(cmd, res.Reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "canister principal (default replica.scope)")
	cmd.Flags().StringVar(&argHex, "arg-hex", "", "call argument as hex")
	cmd.Flags().StringVar(&argStr, "arg", "", "call argument as text")
	return cmd
}

func parseScope(s string) (domain.Principal, error) {
	if s == "" {
		return nil, nil
	}
	p, err := domain.ParsePrincipal(s)
	if err != nil {
		return nil, fmt.Errorf("--scope: %w", err)
	}
	return p, nil
}

func printReply(cmd *cobra.Command, reply []byte) {
	fmt.Fprintf(cmd.OutOrStdout(), "Reply:   %s\n", hex.EncodeToString(reply))
}
