package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"certagent/internal/domain"
)

func pollCmd() *cobra.Command {
	var (
		scope string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "poll <request-id>...",
		Short: "Wait for the certified outcome of submitted calls",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseScope(scope)
			if err != nil {
				return err
			}
			ids := make([]domain.RequestID, len(args))
			for i, a := range args {
				if ids[i], err = domain.ParseRequestID(a); err != nil {
					return err
				}
			}
			w, err := openWire(cmd.Context(), nil)
			if err != nil {
				return err
			}

			if len(ids) == 1 {
				res, err := w.Poll(cmd.Context(), target, ids[0])
				if err != nil {
					return err
				}
				printReply(cmd, res.Reply)
				return nil
			}

			outcomes, err := w.PollAll(cmd.Context(), target, ids, limit)
			if err != nil {
				return err
			}
			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s  error: %v\n", o.RequestID, o.Err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %x\n", o.RequestID, o.Result.Reply)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d calls failed", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "canister principal (default replica.scope)")
	cmd.Flags().IntVar(&limit, "parallel", 4, "maximum concurrent polls")
	return cmd
}
