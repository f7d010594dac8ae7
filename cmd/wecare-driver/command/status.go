package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"wecare/internal/modules/ride"
	"wecare/internal/types"
)

func newStatusCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status <ride-id> <status>",
		Short: "Request a status change for one of your rides",
		Long: `Request a status change. The change is recorded locally first; when
the API is unreachable it is queued and replayed by "drain" or "run".
Valid targets: EN_ROUTE_TO_PICKUP, ARRIVED_AT_PICKUP, IN_PROGRESS,
COMPLETED, REJECTED.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := ride.ParseStatus(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newAgent(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			a.ctrl.Load(ctx)
			id := types.ID(args[0])
			if err := a.ctrl.RequestStatusChange(ctx, id, target); err != nil {
				return err
			}
			if a.queue.Len() > 0 {
				if _, err := a.ctrl.Drain(ctx); err != nil {
					return err
				}
			}

			s, _ := a.ctrl.Status(id)
			fmt.Fprintln(cmd.OutOrStdout(), statusLine(args[0], s, a.ctrl.View().PendingSync))
			return nil
		},
	}
}
