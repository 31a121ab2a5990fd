package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conn-castle/service-install/internal/messages"
)

func newStatusCmd(a *app) *cobra.Command {
	var flags removeFlags

	cmd := &cobra.Command{
		Use:   messages.StatusUse,
		Short: messages.StatusShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := a.installer(0)
			if err != nil {
				return err
			}
			existing, err := inst.Status(cmd.Context(), flags.spec(args[0]))
			if err != nil {
				return err
			}
			if existing == nil {
				if _, err := fmt.Fprintf(a.stdout, messages.CLINotInstalledFmt, args[0]); err != nil {
					return err
				}
				return &SilentExitError{Code: exitFailure}
			}
			h := existing.Handle
			state := a.palette.warn.Sprint(h.State.String())
			if h.State.Running {
				state = a.palette.ok.Sprint(h.State.String())
			}
			lines := []string{
				fmt.Sprintf(messages.CLIStatusBackendFmt, h.Backend),
				fmt.Sprintf(messages.CLIStatusUnitFmt, h.Primary),
				fmt.Sprintf(messages.CLIStatusExecFmt, h.ExecPath),
				fmt.Sprintf(messages.CLIStatusOwnerFmt, h.CreatedByUs),
				fmt.Sprintf(messages.CLIStatusStateFmt, state),
			}
			for _, artifact := range existing.Registration.Artifacts {
				lines = append(lines, fmt.Sprintf(messages.CLIStatusArtifactFmt, artifact.Path))
			}
			for _, line := range lines {
				if _, err := fmt.Fprint(a.stdout, line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
