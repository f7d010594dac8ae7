// Package command provides the driver agent's cobra commands. Every command
// works against the driver's durable queue and job cache, so a status change
// made offline by "status" is replayed later by "drain" or "run".
//
//	wecare-driver run                          # poll, drain and listen until interrupted
//	wecare-driver jobs [--all]                 # today's active jobs
//	wecare-driver status <ride-id> <status>    # request a status change
//	wecare-driver queue                        # pending changes
//	wecare-driver drain                        # replay pending changes once
package command

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"wecare/internal/config"
	"wecare/internal/infra"
)

type globals struct {
	cfgPath string
	cfg     config.Config
	log     *slog.Logger
}

func NewRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "wecare-driver",
		Short: "Driver agent for WeCare patient transport",
		Long: `Driver agent for WeCare patient transport.
It keeps today's job list in sync with the dispatch API and records
status changes locally first, replaying them when the network is back.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if g.cfgPath == "" {
				g.cfgPath = os.Getenv("WECARE_CONFIG")
			}
			cfg, err := config.Load(g.cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Sync.RequireDriver(); err != nil {
				return err
			}
			g.cfg = cfg
			g.log = infra.NewLoggerTo(cmd.ErrOrStderr(), "wecare-driver", cfg.Log.Level)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&g.cfgPath, "config", "c", "", "config file path")

	root.AddCommand(
		newRunCommand(g),
		newJobsCommand(g),
		newStatusCommand(g),
		newQueueCommand(g),
		newDrainCommand(g),
	)
	return root
}
