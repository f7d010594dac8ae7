package command

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newQueueCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List status changes waiting to be sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newAgent(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			pending := a.queue.Pending()
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintln(out, "no pending changes")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ENQUEUED\tRIDE\tTARGET\tID")
			for _, m := range pending {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.EnqueuedAt.Format(time.RFC3339), m.RideID, m.TargetStatus, m.ID)
			}
			return tw.Flush()
		},
	}
}

func newDrainCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Send queued status changes once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newAgent(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.ctrl.Drain(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sent: %d, rejected: %d, remaining: %d\n", len(res.Sent), len(res.Rejected), res.Remaining)
			for _, r := range res.Rejected {
				fmt.Fprintf(out, "rejected %s -> %s: %v\n", r.Mutation.RideID, r.Mutation.TargetStatus, r.Err)
			}
			if res.Halted != nil {
				fmt.Fprintf(out, "stopped: %v\n", res.Halted)
			}
			return nil
		},
	}
}
