package command

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wecare/internal/client"
	"wecare/internal/modules/jobs"
	"wecare/internal/types"
)

func newRunCommand(g *globals) *cobra.Command {
	var (
		noPoll bool
		noPush bool
		report time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep the job list in sync until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newAgent(ctx, g, jobs.WithPolling(!noPoll))
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ctrl.Start(ctx); err != nil {
				return err
			}
			defer a.ctrl.Stop()

			eg, ctx := errgroup.WithContext(ctx)
			if !noPush {
				wsURL, err := notifierURL(g.cfg.Sync.WSURL, g.cfg.Sync.BackendURL, a.driverID)
				if err != nil {
					return err
				}
				n := client.NewNotifier(wsURL, g.cfg.Sync.Token, func(ctx context.Context, _ types.ID) {
					a.ctrl.Load(ctx)
				}, g.log)
				eg.Go(func() error {
					n.Run(ctx)
					return nil
				})
			}
			if report > 0 {
				eg.Go(func() error {
					ticker := time.NewTicker(report)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return nil
						case <-ticker.C:
							printView(cmd.OutOrStdout(), a.ctrl.View(), false)
						}
					}
				})
			}
			<-ctx.Done()
			return eg.Wait()
		},
	}
	cmd.Flags().BoolVar(&noPoll, "no-poll", false, "only reload on push notifications")
	cmd.Flags().BoolVar(&noPush, "no-push", false, "do not listen for push notifications")
	cmd.Flags().DurationVar(&report, "report", 0, "print the job list at this interval (0 disables)")
	return cmd
}
