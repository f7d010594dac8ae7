package command

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wecare/internal/modules/jobs"
	"wecare/internal/modules/ride"
)

func newJobsCommand(g *globals) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Load and print today's active jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newAgent(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			a.ctrl.Load(cmd.Context())
			v := a.ctrl.View()
			if all {
				v.Jobs = a.ctrl.Rides()
			}
			printView(cmd.OutOrStdout(), v, all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include other days and finished rides")
	return cmd
}

func printView(w io.Writer, v jobs.View, all bool) {
	var flags []string
	if v.Stale {
		flags = append(flags, "stale")
	}
	if v.PendingSync {
		flags = append(flags, fmt.Sprintf("pending sync: %d", v.QueueLen+v.InFlight))
	}
	if v.Conflicts > 0 {
		flags = append(flags, fmt.Sprintf("conflicts: %d", v.Conflicts))
	}
	synced := "never"
	if !v.LastSyncedAt.IsZero() {
		synced = v.LastSyncedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "synced: %s", synced)
	if len(flags) > 0 {
		fmt.Fprintf(w, " (%s)", strings.Join(flags, ", "))
	}
	fmt.Fprintln(w)

	if len(v.Jobs) == 0 {
		if all {
			fmt.Fprintln(w, "no rides")
		} else {
			fmt.Fprintln(w, "no active jobs today")
		}
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRIDE\tPATIENT\tPICKUP\tDESTINATION\tSTATUS\tNEEDS")
	for _, r := range v.Jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.AppointmentTime.Format("2006-01-02 15:04"),
			r.ID, r.PatientName, r.PickupLocation, r.Destination, r.Status,
			strings.Join(r.SpecialNeeds, ","))
	}
	_ = tw.Flush()
}

func statusLine(id string, s ride.Status, pending bool) string {
	if pending {
		return fmt.Sprintf("%s: %s (pending sync)", id, s)
	}
	return fmt.Sprintf("%s: %s", id, s)
}
