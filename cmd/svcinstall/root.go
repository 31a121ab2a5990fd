package main

import (
	"github.com/spf13/cobra"

	"github.com/conn-castle/service-install/internal/messages"
)

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           messages.RootUse,
		Short:         messages.RootShort,
		Long:          messages.RootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogging()
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", a.logLevel, messages.RootFlagLogLevel)
	flags.StringVar(&a.logFormat, "log-format", a.logFormat, messages.RootFlagLogFormat)
	flags.DurationVar(&a.lockWait, "lock-wait", a.lockWait, messages.RootFlagLockWait)

	cmd.AddCommand(
		newInstallCmd(a),
		newPlanCmd(a),
		newRemoveCmd(a),
		newStatusCmd(a),
		newDoctorCmd(a),
	)
	return cmd
}
