package main

import (
	"github.com/spf13/cobra"

	"github.com/conn-castle/service-install/internal/backend"
	"github.com/conn-castle/service-install/internal/install"
	"github.com/conn-castle/service-install/internal/lock"
	"github.com/conn-castle/service-install/internal/messages"
)

// removeFlags identify an installed service.
type removeFlags struct {
	runAs   string
	system  bool
	backend string
}

func (f *removeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.runAs, "run-as", "", messages.FlagRunAs)
	cmd.Flags().BoolVar(&f.system, "system", false, messages.FlagSystem)
	cmd.Flags().StringVar(&f.backend, "backend", "", messages.FlagBackend)
}

func (f *removeFlags) spec(name string) install.RemoveSpec {
	scope := backend.ScopeUser
	if f.system {
		scope = backend.ScopeSystem
	}
	return install.RemoveSpec{Name: name, RunAs: f.runAs, Scope: scope, Backend: f.backend}
}

func newRemoveCmd(a *app) *cobra.Command {
	var flags removeFlags
	var bestEffort bool

	cmd := &cobra.Command{
		Use:   messages.RemoveUse,
		Short: messages.RemoveShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := flags.spec(args[0])
			inst, err := a.installer(0)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return lock.With(ctx, a.lockDir, spec.Name, a.lockWait, func() error {
				plan, err := inst.PrepareRemove(ctx, spec)
				if err != nil {
					return err
				}
				if err := a.renderPlan(plan, false); err != nil {
					return err
				}
				if err := a.confirmApply(len(plan.Steps), plan.Name); err != nil {
					return err
				}
				var report install.Report
				if bestEffort {
					report, err = inst.ExecuteBestEffort(ctx, plan)
				} else {
					report, err = inst.Execute(ctx, plan)
				}
				if renderErr := a.renderReport(report); renderErr != nil && err == nil {
					err = renderErr
				}
				return err
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&bestEffort, "best-effort", false, messages.FlagBestEffort)
	cmd.Flags().BoolVarP(&a.yes, "yes", "y", false, messages.RootFlagYes)
	return cmd
}
